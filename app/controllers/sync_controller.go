package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/catalogsync"
	"github.com/StefanMaier/MarketFox/internal/pkg/env"
)

// SyncRunRequest is the body of a manual sync trigger.
type SyncRunRequest struct {
	Type string `json:"type" validate:"required,oneof=delta full_import"`
}

// HandleSyncRun starts a delta or full-import sync for the addressed account.
// The job is returned immediately; progress is polled via the jobs endpoints.
func HandleSyncRun(c *fiber.Ctx) error {
	account, err := resolveAccount(c)
	if err != nil {
		return err
	}

	var req SyncRunRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	v := validator.New()
	if err := v.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_type", "message": "type must be delta or full_import"})
	}

	orchestrator := catalogsync.GetOrchestrator()

	var job *models.SyncJob
	switch models.SyncJobType(req.Type) {
	case models.SyncJobTypeDelta:
		job, err = orchestrator.StartDeltaSync(account.ID)
	case models.SyncJobTypeFullImport:
		job, err = orchestrator.StartFullImport(account.ID)
	}
	if err != nil {
		if errors.Is(err, catalogsync.ErrSyncAlreadyRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "sync_already_running"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sync_start_failed"})
	}

	return c.Status(fiber.StatusAccepted).JSON(syncJobResponse(job))
}

// HandleSyncItem starts a single-item sync for one external product id.
func HandleSyncItem(c *fiber.Ctx) error {
	externalID := strings.TrimSpace(c.Params("externalId"))
	if externalID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_external_id"})
	}

	account, err := resolveAccount(c)
	if err != nil {
		return err
	}

	job, err := catalogsync.GetOrchestrator().StartSingleProductSync(account.ID, externalID)
	if err != nil {
		if errors.Is(err, catalogsync.ErrSyncAlreadyRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "sync_already_running"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sync_start_failed"})
	}

	return c.Status(fiber.StatusAccepted).JSON(syncJobResponse(job))
}

// HandleSyncJob returns one ledger entry with derived progress.
func HandleSyncJob(c *fiber.Ctx) error {
	job, err := catalogsync.GetLedger().GetJob(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job_not_found"})
	}
	return c.JSON(syncJobResponse(job))
}

// HandleSyncJobs lists ledger entries, newest first.
func HandleSyncJobs(c *fiber.Ctx) error {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	jobs, total, err := catalogsync.GetLedger().ListJobs(limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "job_list_failed"})
	}

	items := make([]fiber.Map, 0, len(jobs))
	for i := range jobs {
		items = append(items, syncJobResponse(&jobs[i]))
	}
	return c.JSON(fiber.Map{"jobs": items, "total": total})
}

// HandleSyncStates reports per-product sync freshness for an account, plus a
// summary so operators can spot drift without scanning the whole list.
func HandleSyncStates(c *fiber.Ctx) error {
	account, err := resolveAccount(c)
	if err != nil {
		return err
	}

	states, err := repository.GetGlobalFactory().GetProductSyncStateRepository().ListByAccount(account.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sync_state_list_failed"})
	}

	window := env.GetEnvDuration("SYNC_FRESHNESS_WINDOW", models.DefaultFreshnessWindow)
	summary, items := buildSyncStateReport(states, time.Now(), window)

	return c.JSON(fiber.Map{
		"account_id": account.ID,
		"summary":    summary,
		"states":     items,
	})
}

// buildSyncStateReport classifies every state and tallies the classes.
func buildSyncStateReport(states []models.ProductSyncState, now time.Time, window time.Duration) (fiber.Map, []fiber.Map) {
	summary := fiber.Map{
		models.SyncFreshnessInSync:      0,
		models.SyncFreshnessStale:       0,
		models.SyncFreshnessErrored:     0,
		models.SyncFreshnessNeverSynced: 0,
	}
	items := make([]fiber.Map, 0, len(states))
	for i := range states {
		state := &states[i]
		freshness := state.Freshness(now, window)
		summary[freshness] = summary[freshness].(int) + 1

		item := fiber.Map{
			"external_id": state.ExternalID,
			"freshness":   freshness,
			"retry_count": state.RetryCount,
		}
		if state.LastSyncedAt != nil {
			item["last_synced_at"] = state.LastSyncedAt
		}
		if state.LastError != "" {
			item["last_error"] = state.LastError
		}
		items = append(items, item)
	}
	return summary, items
}

func syncJobResponse(job *models.SyncJob) fiber.Map {
	resp := fiber.Map{
		"id":          job.ID,
		"account_id":  job.AccountID,
		"type":        job.Type,
		"status":      job.Status,
		"total":       job.Total,
		"processed":   job.Processed,
		"isRunning":   job.IsRunning(),
		"isCompleted": job.IsTerminal(),
		"created_at":  job.CreatedAt,
	}
	if p := job.Progress(); p >= 0 {
		resp["progress"] = p
	}
	if job.LastError != "" {
		resp["last_error"] = job.LastError
	}
	if job.FinishedAt != nil {
		resp["finished_at"] = job.FinishedAt
	}
	return resp
}
