package models

import (
	"math"
	"time"
)

// SyncJobType defines what kind of catalog synchronization a job performs.
type SyncJobType string

const (
	SyncJobTypeDelta      SyncJobType = "delta"
	SyncJobTypeFullImport SyncJobType = "full_import"
	SyncJobTypeSingleItem SyncJobType = "single_item"
)

// SyncJobStatus defines the lifecycle state of a sync job.
type SyncJobStatus string

const (
	SyncJobStatusQueued  SyncJobStatus = "queued"
	SyncJobStatusRunning SyncJobStatus = "running"
	SyncJobStatusSuccess SyncJobStatus = "success"
	SyncJobStatusFailed  SyncJobStatus = "failed"
	SyncJobStatusPartial SyncJobStatus = "partial"
)

// SyncJob is the persistent ledger row for one catalog synchronization run.
// Status only ever moves forward (queued -> running -> terminal) and a job in
// a terminal state is immutable except for reads.
type SyncJob struct {
	ID          string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	AccountID   uint          `gorm:"not null;index" json:"account_id"`
	Type        SyncJobType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status      SyncJobStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Total       int           `gorm:"not null;default:0" json:"total"`
	Processed   int           `gorm:"not null;default:0" json:"processed"`
	LastError   string        `gorm:"type:text" json:"last_error,omitempty"`
	StartedAt   *time.Time    `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	FinishedAt  *time.Time    `gorm:"type:timestamp;default:null" json:"finished_at,omitempty"`
	HeartbeatAt *time.Time    `gorm:"type:timestamp;default:null" json:"-"`
	CreatedAt   time.Time     `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the job reached a final state.
func (j *SyncJob) IsTerminal() bool {
	switch j.Status {
	case SyncJobStatusSuccess, SyncJobStatusFailed, SyncJobStatusPartial:
		return true
	default:
		return false
	}
}

// IsRunning reports whether work for the job is currently in flight.
func (j *SyncJob) IsRunning() bool {
	return j.Status == SyncJobStatusRunning
}

// Progress returns the completion percentage, or -1 when the total item count
// is unknown and progress is indeterminate.
func (j *SyncJob) Progress() int {
	if j.Total <= 0 {
		return -1
	}
	return int(math.Round(float64(j.Processed) / float64(j.Total) * 100))
}

// CanTransitionTo enforces the forward-only state machine.
func (j *SyncJob) CanTransitionTo(next SyncJobStatus) bool {
	switch j.Status {
	case SyncJobStatusQueued:
		return next == SyncJobStatusRunning || next == SyncJobStatusFailed
	case SyncJobStatusRunning:
		return next == SyncJobStatusSuccess || next == SyncJobStatusFailed || next == SyncJobStatusPartial
	default:
		return false
	}
}
