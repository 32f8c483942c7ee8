package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecord represents one ledger entry as stored in the
// transactions table. Records are created by the persister from fetched
// aggregator data; the categorizer later fills CategoryID. Records are
// never deleted by the sync pipeline.
type TransactionRecord struct {
	ID            string // internal UUID
	MemberID      string
	AccountID     string
	AccountNumber string

	TransactionDate time.Time // date portion only, truncated to midnight
	TransactionTime string    // "HH:MM:SS" as reported by the aggregator

	Debit        decimal.Decimal // money out, zero when none
	Credit       decimal.Decimal // money in, zero when none
	BalanceAfter decimal.Decimal

	Description string  // free-text counterparty description
	CategoryID  *string // nil until classified
}

// Summary is one periodic rollup row for a (member, account) pair.
type Summary struct {
	MemberID    string
	AccountID   string
	Period      SummaryPeriod
	PeriodStart time.Time
	TotalIn     decimal.Decimal
	TotalOut    decimal.Decimal
	Net         decimal.Decimal
	Count       int
	ComputedAt  time.Time
}

// SummaryPeriod is the granularity of a Summary row.
type SummaryPeriod string

const (
	PeriodDaily   SummaryPeriod = "daily"
	PeriodWeekly  SummaryPeriod = "weekly"
	PeriodMonthly SummaryPeriod = "monthly"
)
