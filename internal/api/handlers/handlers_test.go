package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avolkov/finsync/internal/jobs"
	jobsinmemory "github.com/avolkov/finsync/internal/jobs/inmemory"
	"github.com/avolkov/finsync/internal/statestore"
	stateinmemory "github.com/avolkov/finsync/internal/statestore/inmemory"
	"github.com/rs/zerolog"
)

// capturePublisher records published jobs without a queue.
type capturePublisher struct {
	published []*jobs.SyncAccountsJob
}

func (p *capturePublisher) PublishSyncAccounts(ctx context.Context, job *jobs.SyncAccountsJob) error {
	if job.JobID == "" {
		job.JobID = "job-1"
	}
	p.published = append(p.published, job)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func newSyncHandler() (*SyncHandler, *capturePublisher, *stateinmemory.Store) {
	pub := &capturePublisher{}
	state := stateinmemory.NewStore()
	h := NewSyncHandler(pub, jobsinmemory.NewStore(), state, zerolog.Nop())
	return h, pub, state
}

func TestStartSync_AllAccounts(t *testing.T) {
	h, pub, _ := newSyncHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{"member_id":"m1"}`))
	w := httptest.NewRecorder()
	h.StartSync(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d jobs, want 1", len(pub.published))
	}
	if pub.published[0].Request != nil {
		t.Error("all-accounts sync must publish a nil request")
	}
}

func TestStartSync_SingleAccountWithWindow(t *testing.T) {
	h, pub, _ := newSyncHandler()

	body := `{"member_id":"m1","account_num":"1002-345","start_date":"2026-01-01","end_date":"2026-02-01","order_by":"1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.StartSync(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	job := pub.published[0]
	if job.Request == nil || job.Request.AccountNumber != "1002-345" {
		t.Fatalf("request = %+v, want account 1002-345", job.Request)
	}
	if job.Request.StartDate == nil || !job.Request.StartDate.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start date = %v", job.Request.StartDate)
	}
	if job.Request.OrderBy != "1" {
		t.Errorf("order_by = %q, want 1", job.Request.OrderBy)
	}
}

func TestStartSync_Validation(t *testing.T) {
	h, _, _ := newSyncHandler()

	tests := []struct {
		name string
		body string
	}{
		{"missing member", `{"account_num":"1"}`},
		{"bad start date", `{"member_id":"m1","start_date":"01/02/2026"}`},
		{"bad json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.StartSync(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestSyncStatus_ReportsPipelineStage(t *testing.T) {
	h, _, state := newSyncHandler()

	key := statestore.SyncKey("m1", "1002-345")
	_ = state.SetStatus(context.Background(), key, statestore.StatusAnalyzing, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status?member_id=m1&account_num=1002-345", nil)
	w := httptest.NewRecorder()
	h.SyncStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "ANALYZING_DATA" {
		t.Errorf("status = %q, want ANALYZING_DATA", resp["status"])
	}
	if resp["key"] != key {
		t.Errorf("key = %q, want %q", resp["key"], key)
	}
}

func TestSyncStatus_IdleWhenNoKey(t *testing.T) {
	h, _, _ := newSyncHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status?member_id=m1&account_num=9", nil)
	w := httptest.NewRecorder()
	h.SyncStatus(w, req)

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "IDLE" {
		t.Errorf("status = %q, want IDLE", resp["status"])
	}
}
