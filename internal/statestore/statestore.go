package statestore

import (
	"context"
	"fmt"
	"time"
)

// Status is the externally visible stage of one account's sync run.
// The values form the public progress contract consumed by polling
// clients; they only ever move forward, never back.
type Status string

const (
	// StatusFetching is set when the pipeline acquires its key and starts
	// calling the aggregator.
	StatusFetching Status = "FETCHING_TRANSACTIONS"
	// StatusClassifying is set once fetched transactions are persisted and
	// category assignment begins.
	StatusClassifying Status = "CLASSIFYING_CATEGORIES"
	// StatusAnalyzing is set while periodic summaries are recomputed.
	StatusAnalyzing Status = "ANALYZING_DATA"
	// StatusDone is the terminal state. It stays readable until the key's
	// TTL expires, after which a new sync may start.
	StatusDone Status = "DONE"
)

// Store is a shared key-value store with per-key expiry. The sync
// pipeline uses one key per (member, account) both as a distributed
// mutual-exclusion lock and as the progress channel a client can poll.
// Absence of a key means no sync is in flight for that account.
type Store interface {
	// TryAcquire atomically sets key to initial only if the key is absent
	// or expired. It returns true when the caller now owns the run for
	// this key. A false return is the normal lock-contention outcome, not
	// an error; callers must skip the run, not retry.
	TryAcquire(ctx context.Context, key string, initial Status, ttl time.Duration) (bool, error)

	// SetStatus unconditionally overwrites an already-owned key and
	// refreshes its expiry. Used to advance through pipeline stages.
	SetStatus(ctx context.Context, key string, status Status, ttl time.Duration) error

	// Get returns the current status for key, or ok=false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (Status, bool, error)
}

// SyncKey builds the lock/progress key for one (member, account) pair.
// The key doubles as the job id clients poll for progress, so its format
// is part of the external contract.
func SyncKey(memberID, accountNumber string) string {
	return fmt.Sprintf("transaction:%s:%s", memberID, accountNumber)
}
