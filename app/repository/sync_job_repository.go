package repository

import (
	"errors"
	"time"

	"github.com/StefanMaier/MarketFox/app/models"
	"gorm.io/gorm"
)

// ErrTerminalJob is returned when a mutation targets a job that already
// reached a terminal state.
var ErrTerminalJob = errors.New("sync job is in a terminal state")

var terminalStatuses = []models.SyncJobStatus{
	models.SyncJobStatusSuccess,
	models.SyncJobStatusFailed,
	models.SyncJobStatusPartial,
}

// syncJobRepository implements the SyncJobRepository interface
type syncJobRepository struct {
	db *gorm.DB
}

// NewSyncJobRepository creates a new sync job repository instance
func NewSyncJobRepository(db *gorm.DB) SyncJobRepository {
	return &syncJobRepository{db: db}
}

func (r *syncJobRepository) Create(job *models.SyncJob) error {
	return r.db.Create(job).Error
}

func (r *syncJobRepository) GetByID(id string) (*models.SyncJob, error) {
	var job models.SyncJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkRunning moves a queued job to running and records the planned total.
// The WHERE clause on the current status makes the transition a no-op when
// the job already left queued, enforcing forward-only transitions.
func (r *syncJobRepository) MarkRunning(id string, total int) error {
	now := time.Now()
	tx := r.db.Model(&models.SyncJob{}).
		Where("id = ? AND status = ?", id, models.SyncJobStatusQueued).
		Updates(map[string]interface{}{
			"status":       models.SyncJobStatusRunning,
			"total":        total,
			"started_at":   now,
			"heartbeat_at": now,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrTerminalJob
	}
	return nil
}

// IncrementProcessed bumps the processed counter and refreshes the heartbeat.
// The counter never passes a nonzero total, whatever the caller does.
func (r *syncJobRepository) IncrementProcessed(id string) error {
	return r.db.Model(&models.SyncJob{}).
		Where("id = ? AND status = ? AND (total <= 0 OR processed < total)", id, models.SyncJobStatusRunning).
		Updates(map[string]interface{}{
			"processed":    gorm.Expr("processed + 1"),
			"heartbeat_at": time.Now(),
		}).Error
}

// Finish moves a job into a terminal state. Jobs already terminal are left
// untouched.
func (r *syncJobRepository) Finish(id string, status models.SyncJobStatus, lastError string) error {
	tx := r.db.Model(&models.SyncJob{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]interface{}{
			"status":      status,
			"last_error":  lastError,
			"finished_at": time.Now(),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrTerminalJob
	}
	return nil
}

// List returns jobs ordered by creation time descending plus the total count.
func (r *syncJobRepository) List(limit, offset int) ([]models.SyncJob, int64, error) {
	var total int64
	if err := r.db.Model(&models.SyncJob{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []models.SyncJob
	err := r.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error
	return jobs, total, err
}

// FindStaleRunning returns running jobs whose heartbeat is older than the
// given cutoff, i.e. jobs orphaned by a crashed process.
func (r *syncJobRepository) FindStaleRunning(heartbeatBefore time.Time) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	err := r.db.
		Where("status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)", models.SyncJobStatusRunning, heartbeatBefore).
		Find(&jobs).Error
	return jobs, err
}
