package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/avolkov/finsync/internal/domain"
)

// WindowResolver determines the transaction date range to request for
// one account, preferring an incremental window when prior data exists.
type WindowResolver struct {
	txs TransactionStore
	now func() time.Time
}

// NewWindowResolver creates a resolver over the given transaction store.
func NewWindowResolver(txs TransactionStore) *WindowResolver {
	return &WindowResolver{txs: txs, now: time.Now}
}

// Resolve fills the request's date fields in place. When the account has
// a recorded last transaction date D, the window becomes D plus one day
// through today: the last known day is assumed fully synced, so the
// boundary day is not re-fetched. When no prior data exists,
// caller-supplied dates are left untouched and absent fields fall
// through to the request builder's defaults.
func (r *WindowResolver) Resolve(ctx context.Context, memberID string, account domain.Account, req *SyncRequest) error {
	last, ok, err := r.txs.LastTransactionDate(ctx, memberID, account.ID)
	if err != nil {
		return fmt.Errorf("Resolve: last transaction date for account %s: %w", account.AccountNumber, err)
	}
	if !ok {
		return nil
	}

	start := truncateToDay(last).AddDate(0, 0, 1)
	end := truncateToDay(r.now())
	req.StartDate = &start
	req.EndDate = &end
	return nil
}
