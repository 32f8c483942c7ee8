package jobs

import (
	"context"
	"time"

	"github.com/avolkov/finsync/internal/syncer"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeSyncAccounts represents a member account-sync job.
	JobTypeSyncAccounts JobType = "sync_accounts"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// SyncAccountsJob asks the worker to run the sync pipeline for one
// member, either for every account (nil Request) or for the single
// account the request names. Per-account progress is not tracked here;
// clients poll the statestore key instead.
type SyncAccountsJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// MemberID is the owner of the accounts to sync.
	MemberID string `json:"member_id"`

	// Request optionally narrows the sync to one account and overrides
	// the fetch window.
	Request *syncer.SyncRequest `json:"request,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *SyncAccountsJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *SyncAccountsJob) GetType() JobType {
	return JobTypeSyncAccounts
}

// GetStatus implements the Job interface.
func (j *SyncAccountsJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishSyncAccounts publishes a member sync job.
	PublishSyncAccounts(ctx context.Context, job *SyncAccountsJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *SyncAccountsJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*SyncAccountsJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*SyncAccountsJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// MemberID filters jobs by member.
	MemberID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int
}
