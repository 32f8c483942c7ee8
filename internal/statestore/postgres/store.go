package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avolkov/finsync/internal/statestore"
)

// Store is a Postgres-backed implementation of statestore.Store. The
// sync_status table holds one row per key with an expires_at column;
// TryAcquire relies on a single upsert statement so the set-if-absent is
// atomic across processes, which makes the lock effective for
// multi-instance deployments.
//
// Expected schema:
//
//	CREATE TABLE sync_status (
//	    key        TEXT PRIMARY KEY,
//	    status     TEXT NOT NULL,
//	    expires_at TIMESTAMPTZ NOT NULL
//	);
type Store struct {
	db *sql.DB
}

// NewStore creates a new Postgres state store over an open connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// TryAcquire implements statestore.Store. The ON CONFLICT clause only
// overwrites rows whose expiry has passed, so a live row makes the
// statement affect zero rows and the caller loses the acquire.
func (s *Store) TryAcquire(ctx context.Context, key string, initial statestore.Status, ttl time.Duration) (bool, error) {
	const query = `
		INSERT INTO sync_status (key, status, expires_at)
		VALUES ($1, $2, now() + $3 * interval '1 second')
		ON CONFLICT (key) DO UPDATE
		SET status = EXCLUDED.status, expires_at = EXCLUDED.expires_at
		WHERE sync_status.expires_at <= now()`

	res, err := s.db.ExecContext(ctx, query, key, string(initial), ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("TryAcquire: upserting %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("TryAcquire: rows affected for %s: %w", key, err)
	}
	return n > 0, nil
}

// SetStatus implements statestore.Store.
func (s *Store) SetStatus(ctx context.Context, key string, status statestore.Status, ttl time.Duration) error {
	const query = `
		INSERT INTO sync_status (key, status, expires_at)
		VALUES ($1, $2, now() + $3 * interval '1 second')
		ON CONFLICT (key) DO UPDATE
		SET status = EXCLUDED.status, expires_at = EXCLUDED.expires_at`

	if _, err := s.db.ExecContext(ctx, query, key, string(status), ttl.Seconds()); err != nil {
		return fmt.Errorf("SetStatus: upserting %s: %w", key, err)
	}
	return nil
}

// Get implements statestore.Store. Expired rows read as absent; cleanup
// of dead rows is left to TryAcquire's overwrite path.
func (s *Store) Get(ctx context.Context, key string) (statestore.Status, bool, error) {
	const query = `SELECT status FROM sync_status WHERE key = $1 AND expires_at > now()`

	var status string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("Get: querying %s: %w", key, err)
	}
	return statestore.Status(status), true, nil
}

// Ensure Store implements the statestore.Store interface.
var _ statestore.Store = (*Store)(nil)
