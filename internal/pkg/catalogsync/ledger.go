package catalogsync

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
)

// Ledger is the sync job bookkeeping service. Every job is persisted as
// queued before any network I/O happens, so progress stays observable even
// when the process dies before doing work.
type Ledger struct {
	jobs repository.SyncJobRepository
}

// NewLedger creates a ledger over the given job store.
func NewLedger(jobs repository.SyncJobRepository) *Ledger {
	return &Ledger{jobs: jobs}
}

// CreateJob persists a new queued job and returns it.
func (l *Ledger) CreateJob(accountID uint, jobType models.SyncJobType) (*models.SyncJob, error) {
	job := &models.SyncJob{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Type:      jobType,
		Status:    models.SyncJobStatusQueued,
	}
	if err := l.jobs.Create(job); err != nil {
		return nil, fmt.Errorf("create sync job: %w", err)
	}
	return job, nil
}

// MarkRunning transitions the job out of queued right before the first page
// fetch and freezes the expected total.
func (l *Ledger) MarkRunning(jobID string, total int) error {
	return l.jobs.MarkRunning(jobID, total)
}

// RecordItemProcessed bumps the processed counter. Both successfully synced
// items and logged-and-skipped failures count as processed.
func (l *Ledger) RecordItemProcessed(jobID string) error {
	return l.jobs.IncrementProcessed(jobID)
}

// Finish moves the job into its terminal state.
func (l *Ledger) Finish(jobID string, status models.SyncJobStatus, jobErr error) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	return l.jobs.Finish(jobID, status, msg)
}

// GetJob returns a single ledger row.
func (l *Ledger) GetJob(jobID string) (*models.SyncJob, error) {
	return l.jobs.GetByID(jobID)
}

// ListJobs returns jobs newest first plus the overall count.
func (l *Ledger) ListJobs(limit, offset int) ([]models.SyncJob, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return l.jobs.List(limit, offset)
}
