package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avolkov/finsync/internal/domain"
	"github.com/avolkov/finsync/internal/statestore"
	"github.com/avolkov/finsync/internal/statestore/inmemory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callLog records collaborator invocations in order, per account.
type callLog struct {
	mu    sync.Mutex
	calls map[string][]string
}

func newCallLog() *callLog {
	return &callLog{calls: make(map[string][]string)}
}

func (l *callLog) record(account, stage string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[account] = append(l.calls[account], stage)
}

func (l *callLog) forAccount(account string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls[account]...)
}

type fakeAccounts struct {
	accounts []domain.Account
}

func (f *fakeAccounts) AccountsByMember(ctx context.Context, memberID string) ([]domain.Account, error) {
	return f.accounts, nil
}

func (f *fakeAccounts) AccountByNumber(ctx context.Context, memberID, accountNumber string) (domain.Account, error) {
	for _, a := range f.accounts {
		if a.AccountNumber == accountNumber {
			return a, nil
		}
	}
	return domain.Account{}, fmt.Errorf("account %s not found", accountNumber)
}

type fakeTxStore struct {
	log  *callLog
	last map[string]time.Time // accountID -> last stored date
}

func (f *fakeTxStore) LastTransactionDate(ctx context.Context, memberID, accountID string) (time.Time, bool, error) {
	last, ok := f.last[accountID]
	return last, ok, nil
}

func (f *fakeTxStore) SaveTransactions(ctx context.Context, account domain.Account, raws []RawTransaction) ([]domain.TransactionRecord, error) {
	f.log.record(account.AccountNumber, "save")
	records := make([]domain.TransactionRecord, len(raws))
	for i, raw := range raws {
		records[i] = domain.TransactionRecord{
			ID:              fmt.Sprintf("%s-%d", account.AccountNumber, i),
			MemberID:        account.MemberID,
			AccountID:       account.ID,
			AccountNumber:   account.AccountNumber,
			TransactionDate: raw.Date,
			Debit:           raw.Debit,
			Credit:          raw.Credit,
			Description:     raw.Description,
		}
	}
	return records, nil
}

type fakeFetcher struct {
	log    *callLog
	raws   map[string][]RawTransaction // account number -> result
	errors map[string]error            // account number -> failure
}

func (f *fakeFetcher) Fetch(ctx context.Context, memberID string, req FetchRequest) ([]RawTransaction, error) {
	f.log.record(req.AccountNumber, "fetch")
	if err := f.errors[req.AccountNumber]; err != nil {
		return nil, err
	}
	return f.raws[req.AccountNumber], nil
}

type fakeCategorizer struct {
	log *callLog
	err error
}

func (f *fakeCategorizer) Categorize(ctx context.Context, statusKey string, records []domain.TransactionRecord) error {
	account := ""
	if len(records) > 0 {
		account = records[0].AccountNumber
	} else {
		account = statusKey
	}
	f.log.record(account, "categorize")
	return f.err
}

type fakeSummary struct {
	log      *callLog
	accounts *fakeAccounts
	err      error
}

func (f *fakeSummary) Compute(ctx context.Context, memberID, accountID string) error {
	for _, a := range f.accounts.accounts {
		if a.ID == accountID {
			f.log.record(a.AccountNumber, "summarize")
			return f.err
		}
	}
	f.log.record(accountID, "summarize")
	return f.err
}

type harness struct {
	orch     *Orchestrator
	state    *inmemory.Store
	log      *callLog
	accounts *fakeAccounts
	fetcher  *fakeFetcher
	categor  *fakeCategorizer
	summary  *fakeSummary
}

func newHarness(t *testing.T, accounts ...domain.Account) *harness {
	t.Helper()

	log := newCallLog()
	fa := &fakeAccounts{accounts: accounts}
	ff := &fakeFetcher{log: log, raws: map[string][]RawTransaction{}, errors: map[string]error{}}
	fc := &fakeCategorizer{log: log}
	fs := &fakeSummary{log: log, accounts: fa}
	state := inmemory.NewStore()

	orch := NewOrchestrator(
		fa,
		&fakeTxStore{log: log, last: map[string]time.Time{}},
		ff,
		fc,
		fs,
		state,
		nil,
		Config{StatusTTL: time.Minute, MaxConcurrent: 4},
		zerolog.Nop(),
	)
	return &harness{orch: orch, state: state, log: log, accounts: fa, fetcher: ff, categor: fc, summary: fs}
}

func account(n int) domain.Account {
	return domain.Account{
		ID:            fmt.Sprintf("acc-%d", n),
		MemberID:      "member-1",
		AccountNumber: fmt.Sprintf("100%d-11", n),
		Organization:  "0004",
	}
}

func sampleRaws() []RawTransaction {
	return []RawTransaction{
		{
			Date:        time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			Time:        "10:15:00",
			Debit:       decimal.NewFromInt(42),
			Description: "COFFEE HOUSE",
		},
	}
}

func TestSync_SingleAccountHappyPath(t *testing.T) {
	a := account(1)
	h := newHarness(t, a)
	h.fetcher.raws[a.AccountNumber] = sampleRaws()

	handles, err := h.orch.Sync(context.Background(), "member-1", &SyncRequest{AccountNumber: a.AccountNumber})
	require.NoError(t, err)
	require.Len(t, handles, 1)
	require.NoError(t, handles[0].Wait(context.Background()))

	// Collaborators ran in order, exactly once each.
	assert.Equal(t, []string{"fetch", "save", "categorize", "summarize"}, h.log.forAccount(a.AccountNumber))

	status, ok, err := h.state.Get(context.Background(), statestore.SyncKey("member-1", a.AccountNumber))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, statestore.StatusDone, status)
}

func TestSync_LockContentionSkipsSilently(t *testing.T) {
	a := account(1)
	h := newHarness(t, a)

	// Simulate another sync in flight for this account.
	key := statestore.SyncKey("member-1", a.AccountNumber)
	acquired, err := h.state.TryAcquire(context.Background(), key, statestore.StatusFetching, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	handles, err := h.orch.Sync(context.Background(), "member-1", &SyncRequest{AccountNumber: a.AccountNumber})
	require.NoError(t, err)
	require.Len(t, handles, 1)

	// The loser exits without error and without touching any collaborator.
	assert.NoError(t, handles[0].Wait(context.Background()))
	assert.Empty(t, h.log.forAccount(a.AccountNumber))

	status, ok, _ := h.state.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, statestore.StatusFetching, status, "status must not advance for a skipped run")
}

func TestSync_FetchFailureAborts(t *testing.T) {
	a := account(1)
	h := newHarness(t, a)
	h.fetcher.errors[a.AccountNumber] = errors.New("aggregator unreachable")

	handles, err := h.orch.Sync(context.Background(), "member-1", &SyncRequest{AccountNumber: a.AccountNumber})
	require.NoError(t, err)
	require.Len(t, handles, 1)

	werr := handles[0].Wait(context.Background())
	require.Error(t, werr)
	assert.Contains(t, werr.Error(), "aggregator unreachable")

	// Nothing past the fetch ran.
	assert.Equal(t, []string{"fetch"}, h.log.forAccount(a.AccountNumber))

	// The key is left at the first stage to expire by TTL.
	status, ok, _ := h.state.Get(context.Background(), statestore.SyncKey("member-1", a.AccountNumber))
	require.True(t, ok)
	assert.Equal(t, statestore.StatusFetching, status)
}

func TestSync_CategorizeFailureLeavesClassifying(t *testing.T) {
	a := account(1)
	h := newHarness(t, a)
	h.fetcher.raws[a.AccountNumber] = sampleRaws()
	h.categor.err = errors.New("category store down")

	handles, err := h.orch.Sync(context.Background(), "member-1", &SyncRequest{AccountNumber: a.AccountNumber})
	require.NoError(t, err)
	require.Len(t, handles, 1)

	werr := handles[0].Wait(context.Background())
	require.Error(t, werr)
	assert.Contains(t, werr.Error(), "category store down")

	// The fetched transactions were already persisted; only the summary
	// stage is skipped.
	assert.Equal(t, []string{"fetch", "save", "categorize"}, h.log.forAccount(a.AccountNumber))

	// The key stays mid-stage and expires by TTL.
	status, ok, _ := h.state.Get(context.Background(), statestore.SyncKey("member-1", a.AccountNumber))
	require.True(t, ok)
	assert.Equal(t, statestore.StatusClassifying, status)
}

func TestSync_SummaryFailureLeavesAnalyzing(t *testing.T) {
	a := account(1)
	h := newHarness(t, a)
	h.fetcher.raws[a.AccountNumber] = sampleRaws()
	h.summary.err = errors.New("summary write failed")

	handles, err := h.orch.Sync(context.Background(), "member-1", &SyncRequest{AccountNumber: a.AccountNumber})
	require.NoError(t, err)
	require.Len(t, handles, 1)

	werr := handles[0].Wait(context.Background())
	require.Error(t, werr)
	assert.Contains(t, werr.Error(), "summary write failed")

	assert.Equal(t, []string{"fetch", "save", "categorize", "summarize"}, h.log.forAccount(a.AccountNumber))

	status, ok, _ := h.state.Get(context.Background(), statestore.SyncKey("member-1", a.AccountNumber))
	require.True(t, ok)
	assert.Equal(t, statestore.StatusAnalyzing, status, "status must not reach DONE after a summary fault")
}

func TestSync_EmptyFetchStillCompletes(t *testing.T) {
	a := account(1)
	h := newHarness(t, a)
	// No raws registered: the fetcher returns an empty list.

	require.NoError(t, h.orch.SyncAndWait(context.Background(), "member-1", &SyncRequest{AccountNumber: a.AccountNumber}))

	status, ok, _ := h.state.Get(context.Background(), statestore.SyncKey("member-1", a.AccountNumber))
	require.True(t, ok)
	assert.Equal(t, statestore.StatusDone, status)
}

func TestSync_AllAccountsConcurrently(t *testing.T) {
	accounts := make([]domain.Account, 10)
	for i := range accounts {
		accounts[i] = account(i)
	}
	h := newHarness(t, accounts...)
	for _, a := range accounts {
		h.fetcher.raws[a.AccountNumber] = sampleRaws()
	}

	handles, err := h.orch.Sync(context.Background(), "member-1", nil)
	require.NoError(t, err)
	require.Len(t, handles, 10)

	for _, handle := range handles {
		require.NoError(t, handle.Wait(context.Background()))
	}

	for _, a := range accounts {
		assert.Equal(t, []string{"fetch", "save", "categorize", "summarize"}, h.log.forAccount(a.AccountNumber),
			"account %s collaborators must run exactly once each", a.AccountNumber)

		status, ok, _ := h.state.Get(context.Background(), statestore.SyncKey("member-1", a.AccountNumber))
		require.True(t, ok)
		assert.Equal(t, statestore.StatusDone, status)
	}
}

func TestSync_OneFailureDoesNotAbortSiblings(t *testing.T) {
	accounts := []domain.Account{account(1), account(2), account(3)}
	h := newHarness(t, accounts...)
	for _, a := range accounts {
		h.fetcher.raws[a.AccountNumber] = sampleRaws()
	}
	h.fetcher.errors[accounts[1].AccountNumber] = errors.New("boom")

	handles, err := h.orch.Sync(context.Background(), "member-1", nil)
	require.NoError(t, err)

	var failures int
	for _, handle := range handles {
		if handle.Wait(context.Background()) != nil {
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	for _, a := range []domain.Account{accounts[0], accounts[2]} {
		status, ok, _ := h.state.Get(context.Background(), statestore.SyncKey("member-1", a.AccountNumber))
		require.True(t, ok)
		assert.Equal(t, statestore.StatusDone, status, "sibling %s must still complete", a.AccountNumber)
	}
}

func TestSync_UnknownAccountFails(t *testing.T) {
	h := newHarness(t, account(1))

	_, err := h.orch.Sync(context.Background(), "member-1", &SyncRequest{AccountNumber: "no-such"})
	require.Error(t, err)
}

func TestSyncAndWait_ReturnsFirstFault(t *testing.T) {
	a := account(1)
	h := newHarness(t, a)
	h.fetcher.errors[a.AccountNumber] = errors.New("boom")

	err := h.orch.SyncAndWait(context.Background(), "member-1", nil)
	require.Error(t, err)
}
