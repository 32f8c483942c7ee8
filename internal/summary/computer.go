// Package summary rolls persisted transactions up into daily, weekly and
// monthly aggregates per account.
package summary

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/avolkov/finsync/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransactionReader supplies the transactions to aggregate.
type TransactionReader interface {
	TransactionsByAccount(ctx context.Context, memberID, accountID string) ([]domain.TransactionRecord, error)
}

// SummaryWriter persists the computed rollup rows.
type SummaryWriter interface {
	ReplaceSummaries(ctx context.Context, memberID, accountID string, summaries []domain.Summary) error
}

// Computer derives periodic summaries for one account. It implements
// the pipeline's SummaryComputer seam. Recomputation is full, not
// incremental: every run replaces the account's rollup rows from the
// complete transaction history.
type Computer struct {
	reader TransactionReader
	writer SummaryWriter
	log    zerolog.Logger
	now    func() time.Time
}

// NewComputer creates a summary computer over the given reader/writer.
func NewComputer(reader TransactionReader, writer SummaryWriter, log zerolog.Logger) *Computer {
	return &Computer{reader: reader, writer: writer, log: log, now: time.Now}
}

// Compute loads the account's transactions, aggregates them by day, ISO
// week and month, and replaces the stored summary rows.
func (c *Computer) Compute(ctx context.Context, memberID, accountID string) error {
	records, err := c.reader.TransactionsByAccount(ctx, memberID, accountID)
	if err != nil {
		return fmt.Errorf("Compute: loading transactions for account %s: %w", accountID, err)
	}

	summaries := Aggregate(memberID, accountID, records, c.now())
	if err := c.writer.ReplaceSummaries(ctx, memberID, accountID, summaries); err != nil {
		return fmt.Errorf("Compute: storing summaries for account %s: %w", accountID, err)
	}

	c.log.Info().
		Str("member_id", memberID).
		Str("account_id", accountID).
		Int("transactions", len(records)).
		Int("rows", len(summaries)).
		Msg("Summaries recomputed")
	return nil
}

// Aggregate buckets records into daily, weekly and monthly rows. Rows
// come back ordered by period then period start. Exposed for tests.
func Aggregate(memberID, accountID string, records []domain.TransactionRecord, computedAt time.Time) []domain.Summary {
	buckets := make(map[string]*domain.Summary)

	add := func(period domain.SummaryPeriod, start time.Time, r domain.TransactionRecord) {
		key := string(period) + "|" + start.Format("2006-01-02")
		row, ok := buckets[key]
		if !ok {
			row = &domain.Summary{
				MemberID:    memberID,
				AccountID:   accountID,
				Period:      period,
				PeriodStart: start,
				TotalIn:     decimal.Zero,
				TotalOut:    decimal.Zero,
				Net:         decimal.Zero,
				ComputedAt:  computedAt,
			}
			buckets[key] = row
		}
		row.TotalIn = row.TotalIn.Add(r.Credit)
		row.TotalOut = row.TotalOut.Add(r.Debit)
		row.Net = row.Net.Add(r.Credit).Sub(r.Debit)
		row.Count++
	}

	for _, r := range records {
		day := time.Date(r.TransactionDate.Year(), r.TransactionDate.Month(), r.TransactionDate.Day(), 0, 0, 0, 0, time.UTC)
		add(domain.PeriodDaily, day, r)
		add(domain.PeriodWeekly, startOfISOWeek(day), r)
		add(domain.PeriodMonthly, time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC), r)
	}

	out := make([]domain.Summary, 0, len(buckets))
	for _, row := range buckets {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].PeriodStart.Before(out[j].PeriodStart)
	})
	return out
}

// startOfISOWeek returns the Monday of the day's ISO week.
func startOfISOWeek(day time.Time) time.Time {
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, 1-weekday)
}
