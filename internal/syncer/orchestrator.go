package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/avolkov/finsync/internal/domain"
	"github.com/avolkov/finsync/internal/statestore"
	"github.com/rs/zerolog"
)

// Config holds the orchestrator's tunables. Passed in at construction;
// nothing here is process-global.
type Config struct {
	// StatusTTL is the expiry applied to the lock/status key on every
	// write. Must comfortably exceed the worst-case pipeline duration so
	// two processes never both believe they own the same account.
	StatusTTL time.Duration

	// MaxConcurrent bounds how many account pipelines run at once.
	MaxConcurrent int
}

// DefaultConfig returns the tunables used when the caller does not
// provide their own.
func DefaultConfig() Config {
	return Config{
		StatusTTL:     10 * time.Minute,
		MaxConcurrent: 5,
	}
}

// TopicSyncCompleted is the event topic published after an account's
// pipeline reaches DONE.
const TopicSyncCompleted = "account_sync_completed"

// SyncCompletedEvent is the payload published on TopicSyncCompleted.
type SyncCompletedEvent struct {
	MemberID      string    `json:"member_id"`
	AccountID     string    `json:"account_id"`
	AccountNumber string    `json:"account_number"`
	Fetched       int       `json:"fetched"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Orchestrator runs the per-account transaction sync pipeline:
// acquire the status key, resolve the incremental window, fetch from the
// aggregator, persist, categorize, summarize, publishing progress
// through the state store at each stage. Syncing all accounts of a
// member fans the pipeline out over a bounded worker pool.
type Orchestrator struct {
	accounts AccountStore
	txs      TransactionStore
	fetcher  Fetcher
	categor  Categorizer
	summary  SummaryComputer
	state    statestore.Store
	events   EventPublisher // optional, may be nil
	resolver *WindowResolver
	cfg      Config
	log      zerolog.Logger

	// sem bounds concurrently running account pipelines.
	sem chan struct{}

	now func() time.Time
}

// NewOrchestrator wires the pipeline's collaborators together. events
// may be nil to disable completion events.
func NewOrchestrator(
	accounts AccountStore,
	txs TransactionStore,
	fetcher Fetcher,
	categor Categorizer,
	summary SummaryComputer,
	state statestore.Store,
	events EventPublisher,
	cfg Config,
	log zerolog.Logger,
) *Orchestrator {
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = DefaultConfig().StatusTTL
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	return &Orchestrator{
		accounts: accounts,
		txs:      txs,
		fetcher:  fetcher,
		categor:  categor,
		summary:  summary,
		state:    state,
		events:   events,
		resolver: NewWindowResolver(txs),
		cfg:      cfg,
		log:      log,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		now:      time.Now,
	}
}

// Handle tracks one account's dispatched pipeline. Callers may ignore it
// (fire-and-forget) or join with Wait.
type Handle struct {
	Account domain.Account
	done    chan struct{}
	err     error
}

// Wait blocks until the pipeline finishes or ctx is cancelled, returning
// the pipeline's error. Lock contention is not an error; a skipped run
// returns nil.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the pipeline error if it has finished, else nil.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Sync starts the pipeline for the member's accounts. A nil request
// syncs every account the member owns; a non-nil request names exactly
// one account. One Handle is returned per dispatched account; Sync does
// not wait for the pipelines unless the caller joins the handles.
//
// An error is returned only for account resolution failures. Pipeline
// faults are per-account and surface on the corresponding Handle, so
// one account's failure never prevents its siblings from running.
func (o *Orchestrator) Sync(ctx context.Context, memberID string, req *SyncRequest) ([]*Handle, error) {
	var targets []domain.Account

	if req != nil && req.AccountNumber != "" {
		account, err := o.accounts.AccountByNumber(ctx, memberID, req.AccountNumber)
		if err != nil {
			return nil, fmt.Errorf("Sync: resolving account %s: %w", req.AccountNumber, err)
		}
		targets = []domain.Account{account}
	} else {
		accounts, err := o.accounts.AccountsByMember(ctx, memberID)
		if err != nil {
			return nil, fmt.Errorf("Sync: listing accounts for member %s: %w", memberID, err)
		}
		targets = accounts
	}

	handles := make([]*Handle, 0, len(targets))
	for _, account := range targets {
		account := account
		h := &Handle{Account: account, done: make(chan struct{})}
		handles = append(handles, h)

		// Each pipeline carries its own request copy; no state is shared
		// between sibling accounts.
		var reqCopy *SyncRequest
		if req != nil {
			c := *req
			reqCopy = &c
		}

		go func() {
			o.sem <- struct{}{}
			defer func() { <-o.sem }()
			h.err = o.syncAccount(ctx, memberID, account, reqCopy)
			close(h.done)
		}()
	}
	return handles, nil
}

// SyncAndWait runs Sync and joins every handle, returning the first
// pipeline fault encountered. Sibling pipelines still run to completion.
func (o *Orchestrator) SyncAndWait(ctx context.Context, memberID string, req *SyncRequest) error {
	handles, err := o.Sync(ctx, memberID, req)
	if err != nil {
		return err
	}
	var first error
	for _, h := range handles {
		if werr := h.Wait(ctx); werr != nil && first == nil {
			first = werr
		}
	}
	return first
}

// syncAccount runs the full pipeline for one account. Stages are
// strictly sequential; the status key only ever advances forward.
func (o *Orchestrator) syncAccount(ctx context.Context, memberID string, account domain.Account, req *SyncRequest) error {
	key := statestore.SyncKey(memberID, account.AccountNumber)
	log := o.log.With().
		Str("member_id", memberID).
		Str("account", account.AccountNumber).
		Str("key", key).
		Logger()

	acquired, err := o.state.TryAcquire(ctx, key, statestore.StatusFetching, o.cfg.StatusTTL)
	if err != nil {
		return fmt.Errorf("syncAccount: acquiring %s: %w", key, err)
	}
	if !acquired {
		// Another sync owns this account. Expected under duplicate refresh
		// requests; skip without retrying and without error.
		log.Debug().Msg("Sync already in flight, skipping account")
		return nil
	}

	if req == nil {
		req = &SyncRequest{}
	}
	if err := o.resolver.Resolve(ctx, memberID, account, req); err != nil {
		return err
	}
	fetchReq := BuildFetchRequest(account.AccountNumber, req, o.now())

	log.Info().
		Time("start", fetchReq.StartDate).
		Time("end", fetchReq.EndDate).
		Msg("Fetching transactions")

	raws, err := o.fetcher.Fetch(ctx, memberID, fetchReq)
	if err != nil {
		// No persistence happened; the key stays at FETCHING_TRANSACTIONS
		// and expires by TTL, after which a fresh sync can run.
		return fmt.Errorf("syncAccount: fetching %s: %w", key, err)
	}

	records, err := o.txs.SaveTransactions(ctx, account, raws)
	if err != nil {
		return fmt.Errorf("syncAccount: persisting %d transactions for %s: %w", len(raws), key, err)
	}

	if err := o.state.SetStatus(ctx, key, statestore.StatusClassifying, o.cfg.StatusTTL); err != nil {
		return fmt.Errorf("syncAccount: advancing %s: %w", key, err)
	}
	if err := o.categor.Categorize(ctx, key, records); err != nil {
		return fmt.Errorf("syncAccount: categorizing %s: %w", key, err)
	}

	if err := o.state.SetStatus(ctx, key, statestore.StatusAnalyzing, o.cfg.StatusTTL); err != nil {
		return fmt.Errorf("syncAccount: advancing %s: %w", key, err)
	}
	if err := o.summary.Compute(ctx, memberID, account.ID); err != nil {
		return fmt.Errorf("syncAccount: computing summaries for %s: %w", key, err)
	}

	if err := o.state.SetStatus(ctx, key, statestore.StatusDone, o.cfg.StatusTTL); err != nil {
		return fmt.Errorf("syncAccount: advancing %s: %w", key, err)
	}

	if o.events != nil {
		event := SyncCompletedEvent{
			MemberID:      memberID,
			AccountID:     account.ID,
			AccountNumber: account.AccountNumber,
			Fetched:       len(records),
			CompletedAt:   o.now(),
		}
		if err := o.events.Publish(TopicSyncCompleted, event); err != nil {
			// Completion events are best-effort; the sync itself succeeded.
			log.Warn().Err(err).Msg("Failed to publish sync completion event")
		}
	}

	log.Info().Int("fetched", len(records)).Msg("Account sync completed")
	return nil
}
