package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/avolkov/finsync/internal/api/middleware"
	"github.com/avolkov/finsync/internal/domain"
	"github.com/avolkov/finsync/internal/jobs"
	"github.com/avolkov/finsync/internal/statestore"
	"github.com/avolkov/finsync/internal/syncer"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// SyncHandler accepts sync requests and exposes per-account progress.
// A sync request only enqueues a job; clients learn progress by polling
// the status endpoint, which reads the same key the pipeline writes.
type SyncHandler struct {
	publisher jobs.Publisher
	jobStore  jobs.JobStore
	state     statestore.Store
	log       zerolog.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(publisher jobs.Publisher, jobStore jobs.JobStore, state statestore.Store, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		publisher: publisher,
		jobStore:  jobStore,
		state:     state,
		log:       log,
	}
}

// StartSync handles POST /api/sync. Omitting account_num syncs every
// account the member owns.
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MemberID   string `json:"member_id"`
		AccountNum string `json:"account_num,omitempty"`
		StartDate  string `json:"start_date,omitempty"`
		EndDate    string `json:"end_date,omitempty"`
		OrderBy    string `json:"order_by,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.MemberID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "member_id is required")
		return
	}

	var req *syncer.SyncRequest
	if body.AccountNum != "" || body.StartDate != "" || body.EndDate != "" || body.OrderBy != "" {
		req = &syncer.SyncRequest{
			AccountNumber: body.AccountNum,
			OrderBy:       body.OrderBy,
		}
		if body.StartDate != "" {
			start, err := time.Parse(dateLayout, body.StartDate)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
				return
			}
			req.StartDate = &start
		}
		if body.EndDate != "" {
			end, err := time.Parse(dateLayout, body.EndDate)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
				return
			}
			req.EndDate = &end
		}
	}

	job := &jobs.SyncAccountsJob{
		MemberID: body.MemberID,
		Request:  req,
	}

	if err := h.publisher.PublishSyncAccounts(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("member_id", body.MemberID).Msg("Failed to enqueue sync job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue sync job")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":    job.JobID,
		"member_id": body.MemberID,
	})
}

// SyncStatus handles GET /api/sync/status?member_id=&account_num=.
// An absent key reads as IDLE, which also covers "already synced and
// the terminal status expired".
func (h *SyncHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	memberID := r.URL.Query().Get("member_id")
	accountNum := r.URL.Query().Get("account_num")
	if memberID == "" || accountNum == "" {
		middleware.WriteError(w, http.StatusBadRequest, "member_id and account_num are required")
		return
	}

	key := statestore.SyncKey(memberID, accountNum)
	status, ok, err := h.state.Get(r.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("Failed to read sync status")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read sync status")
		return
	}

	resp := map[string]string{"key": key, "status": "IDLE"}
	if ok {
		resp["status"] = string(status)
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ListJobs handles GET /api/jobs?member_id=.
func (h *SyncHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	memberID := r.URL.Query().Get("member_id")
	if memberID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "member_id is required")
		return
	}

	list, err := h.jobStore.ListJobs(r.Context(), jobs.JobFilter{MemberID: memberID})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// ReadStore is the read-side persistence seam for query endpoints.
type ReadStore interface {
	TransactionsByAccount(ctx context.Context, memberID, accountID string) ([]domain.TransactionRecord, error)
	SummariesByAccount(ctx context.Context, memberID, accountID string) ([]domain.Summary, error)
}

// DataHandler serves the persisted transactions and summaries.
type DataHandler struct {
	store ReadStore
	log   zerolog.Logger
}

// NewDataHandler creates a new data handler.
func NewDataHandler(store ReadStore, log zerolog.Logger) *DataHandler {
	return &DataHandler{store: store, log: log}
}

// ListTransactions handles GET /api/transactions?member_id=&account_id=.
func (h *DataHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	memberID := r.URL.Query().Get("member_id")
	accountID := r.URL.Query().Get("account_id")
	if memberID == "" || accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "member_id and account_id are required")
		return
	}

	records, err := h.store.TransactionsByAccount(r.Context(), memberID, accountID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": records,
		"count":        len(records),
	})
}

// ListSummaries handles GET /api/summaries?member_id=&account_id=.
func (h *DataHandler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	memberID := r.URL.Query().Get("member_id")
	accountID := r.URL.Query().Get("account_id")
	if memberID == "" || accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "member_id and account_id are required")
		return
	}

	summaries, err := h.store.SummariesByAccount(r.Context(), memberID, accountID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list summaries")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list summaries")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"summaries": summaries,
		"count":     len(summaries),
	})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
