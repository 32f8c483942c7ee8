package syncer

import (
	"context"
	"time"

	"github.com/avolkov/finsync/internal/domain"
	"github.com/shopspring/decimal"
)

// RawTransaction is one ledger entry exactly as returned by the external
// banking-data aggregator, before it is persisted as a TransactionRecord.
type RawTransaction struct {
	Date         time.Time
	Time         string
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	BalanceAfter decimal.Decimal
	Description  string
}

// Fetcher performs the network call to the aggregator for one account.
// A transport or remote-service failure must surface as an error, never
// as a silent empty result.
type Fetcher interface {
	Fetch(ctx context.Context, memberID string, req FetchRequest) ([]RawTransaction, error)
}

// AccountStore resolves the accounts a sync invocation operates on.
type AccountStore interface {
	// AccountsByMember returns every account owned by the member.
	AccountsByMember(ctx context.Context, memberID string) ([]domain.Account, error)

	// AccountByNumber returns the member's account with the given number.
	AccountByNumber(ctx context.Context, memberID, accountNumber string) (domain.Account, error)
}

// TransactionStore is the persistence seam the pipeline writes through.
type TransactionStore interface {
	// LastTransactionDate returns the most recent stored transaction date
	// for the account, with ok=false when no transactions exist yet.
	LastTransactionDate(ctx context.Context, memberID, accountID string) (time.Time, bool, error)

	// SaveTransactions persists fetched raw transactions for the account
	// and returns the created records. Saving an empty list is a no-op.
	SaveTransactions(ctx context.Context, account domain.Account, raws []RawTransaction) ([]domain.TransactionRecord, error)
}

// Categorizer assigns spending categories to persisted transactions. It
// receives the sync status key so it can publish finer-grained progress
// of its own; it may be long-running.
type Categorizer interface {
	Categorize(ctx context.Context, statusKey string, records []domain.TransactionRecord) error
}

// SummaryComputer derives daily/weekly/monthly aggregates from the
// persisted, categorized transactions of one account.
type SummaryComputer interface {
	Compute(ctx context.Context, memberID, accountID string) error
}

// EventPublisher receives a notification after an account's pipeline
// reaches DONE. Optional; a nil publisher disables events.
type EventPublisher interface {
	Publish(topic string, event any) error
}
