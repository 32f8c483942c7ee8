package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avolkov/finsync/internal/domain"
)

// windowTxStore stubs only the cursor query used by the resolver.
type windowTxStore struct {
	last    time.Time
	hasLast bool
	err     error
}

func (s *windowTxStore) LastTransactionDate(ctx context.Context, memberID, accountID string) (time.Time, bool, error) {
	return s.last, s.hasLast, s.err
}

func (s *windowTxStore) SaveTransactions(ctx context.Context, account domain.Account, raws []RawTransaction) ([]domain.TransactionRecord, error) {
	return nil, nil
}

func TestResolve_IncrementalWindow(t *testing.T) {
	last := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)

	r := NewWindowResolver(&windowTxStore{last: last, hasLast: true})
	r.now = func() time.Time { return now }

	req := &SyncRequest{}
	account := domain.Account{ID: "acc-1", AccountNumber: "1002-345"}
	if err := r.Resolve(context.Background(), "member-1", account, req); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if req.StartDate == nil {
		t.Fatal("StartDate not filled")
	}
	if want := last.AddDate(0, 0, 1); !req.StartDate.Equal(want) {
		t.Errorf("StartDate = %v, want last date + 1 day %v", *req.StartDate, want)
	}
	if req.EndDate == nil {
		t.Fatal("EndDate not filled")
	}
	if want := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC); !req.EndDate.Equal(want) {
		t.Errorf("EndDate = %v, want today %v", *req.EndDate, want)
	}
}

func TestResolve_IncrementalWindowOverridesCallerDates(t *testing.T) {
	last := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	callerStart := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	r := NewWindowResolver(&windowTxStore{last: last, hasLast: true})
	r.now = func() time.Time { return now }

	req := &SyncRequest{StartDate: &callerStart}
	if err := r.Resolve(context.Background(), "member-1", domain.Account{ID: "acc-1"}, req); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if want := last.AddDate(0, 0, 1); !req.StartDate.Equal(want) {
		t.Errorf("StartDate = %v, want incremental window %v", *req.StartDate, want)
	}
}

func TestResolve_FirstSyncLeavesCallerDatesUntouched(t *testing.T) {
	callerStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	callerEnd := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	r := NewWindowResolver(&windowTxStore{hasLast: false})

	req := &SyncRequest{StartDate: &callerStart, EndDate: &callerEnd}
	if err := r.Resolve(context.Background(), "member-1", domain.Account{ID: "acc-1"}, req); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !req.StartDate.Equal(callerStart) || !req.EndDate.Equal(callerEnd) {
		t.Errorf("caller range changed: start %v end %v", *req.StartDate, *req.EndDate)
	}
}

func TestResolve_FirstSyncLeavesEmptyRequestForDefaults(t *testing.T) {
	r := NewWindowResolver(&windowTxStore{hasLast: false})

	req := &SyncRequest{}
	if err := r.Resolve(context.Background(), "member-1", domain.Account{ID: "acc-1"}, req); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// The builder, not the resolver, owns the first-sync defaults.
	if req.StartDate != nil || req.EndDate != nil {
		t.Errorf("resolver filled dates on first sync: start %v end %v", req.StartDate, req.EndDate)
	}
}

func TestResolve_CursorQueryErrorPropagates(t *testing.T) {
	r := NewWindowResolver(&windowTxStore{err: errors.New("connection refused")})

	err := r.Resolve(context.Background(), "member-1", domain.Account{ID: "acc-1"}, &SyncRequest{})
	if err == nil {
		t.Fatal("expected error from cursor query")
	}
}
