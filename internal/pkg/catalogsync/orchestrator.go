package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/cache"
	"github.com/StefanMaier/MarketFox/internal/pkg/env"
	"github.com/StefanMaier/MarketFox/internal/pkg/marketplace"
)

// ErrSyncAlreadyRunning is returned when a sync trigger races an in-flight
// job for the same account.
var ErrSyncAlreadyRunning = errors.New("a sync job is already running for this account")

const (
	defaultPageSize    = 50
	accountLockPrefix  = "sync_lock:account:"
	defaultAccountLock = 30 * time.Minute
)

// Orchestrator drives sync jobs end to end: token, pagination, per-item
// mapping and upsert, ledger updates. One job per account runs at a time,
// guarded by a Redis lock so the rule holds across processes.
type Orchestrator struct {
	ledger   *Ledger
	tokens   *marketplace.TokenService
	client   *marketplace.Client
	accounts repository.MarketplaceAccountRepository
	products repository.ProductRepository
	states   repository.ProductSyncStateRepository

	pageSize int
	lockTTL  time.Duration

	mu       sync.Mutex
	fetchers map[uint]*marketplace.Fetcher
}

// NewOrchestrator wires the orchestrator from its collaborators.
func NewOrchestrator(
	ledger *Ledger,
	tokens *marketplace.TokenService,
	client *marketplace.Client,
	accounts repository.MarketplaceAccountRepository,
	products repository.ProductRepository,
	states repository.ProductSyncStateRepository,
) *Orchestrator {
	return &Orchestrator{
		ledger:   ledger,
		tokens:   tokens,
		client:   client,
		accounts: accounts,
		products: products,
		states:   states,
		pageSize: env.GetEnvInt("SYNC_PAGE_SIZE", defaultPageSize),
		lockTTL:  env.GetEnvDuration("SYNC_ACCOUNT_LOCK_TTL", defaultAccountLock),
		fetchers: make(map[uint]*marketplace.Fetcher),
	}
}

// StartDeltaSync creates a delta job and runs it in the background. The
// queued job is returned immediately for progress polling.
func (o *Orchestrator) StartDeltaSync(accountID uint) (*models.SyncJob, error) {
	return o.start(accountID, models.SyncJobTypeDelta, func(ctx context.Context, job *models.SyncJob) {
		o.runListingSync(ctx, job, true)
	})
}

// StartFullImport creates a full_import job covering the entire remote
// catalog regardless of prior sync state.
func (o *Orchestrator) StartFullImport(accountID uint) (*models.SyncJob, error) {
	return o.start(accountID, models.SyncJobTypeFullImport, func(ctx context.Context, job *models.SyncJob) {
		o.runListingSync(ctx, job, false)
	})
}

// StartSingleProductSync creates a single_item job for one external id.
func (o *Orchestrator) StartSingleProductSync(accountID uint, externalID string) (*models.SyncJob, error) {
	return o.start(accountID, models.SyncJobTypeSingleItem, func(ctx context.Context, job *models.SyncJob) {
		o.runSingleItemSync(ctx, job, externalID)
	})
}

// start creates the ledger row, takes the per-account lock and spawns the
// job body. The lock is held for the whole run and released on finish.
func (o *Orchestrator) start(accountID uint, jobType models.SyncJobType, run func(ctx context.Context, job *models.SyncJob)) (*models.SyncJob, error) {
	job, err := o.ledger.CreateJob(accountID, jobType)
	if err != nil {
		return nil, err
	}

	lockKey := fmt.Sprintf("%s%d", accountLockPrefix, accountID)
	acquired, err := cache.AcquireLock(lockKey, job.ID, o.lockTTL)
	if err != nil {
		_ = o.ledger.Finish(job.ID, models.SyncJobStatusFailed, fmt.Errorf("acquire account lock: %w", err))
		return nil, err
	}
	if !acquired {
		_ = o.ledger.Finish(job.ID, models.SyncJobStatusFailed, ErrSyncAlreadyRunning)
		return nil, ErrSyncAlreadyRunning
	}

	go func() {
		defer func() {
			if err := cache.ReleaseLock(lockKey, job.ID); err != nil {
				log.Errorf("[Sync] Failed to release account lock for job %s: %v", job.ID, err)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), o.lockTTL)
		defer cancel()
		run(ctx, job)
	}()

	return job, nil
}

// runListingSync is the shared body of delta and full-import jobs.
func (o *Orchestrator) runListingSync(ctx context.Context, job *models.SyncJob, delta bool) {
	account, err := o.accounts.GetByID(job.AccountID)
	if err != nil {
		o.fail(job, fmt.Errorf("load account: %w", err))
		return
	}

	token, err := o.tokens.GetValidToken(ctx, job.AccountID)
	if err != nil {
		o.fail(job, fmt.Errorf("obtain token: %w", err))
		return
	}

	var watermark *time.Time
	if delta {
		watermark, err = o.states.Watermark(job.AccountID)
		if err != nil {
			o.fail(job, fmt.Errorf("load watermark: %w", err))
			return
		}
	}

	fetcher := o.fetcherFor(job.AccountID)

	// First page failure aborts the whole job as failed.
	page, err := o.client.ListItemsUpdatedSince(ctx, fetcher, token, account.SellerID, watermark, 0, o.pageSize)
	if err != nil {
		o.fail(job, fmt.Errorf("first page fetch: %w", err))
		return
	}

	// The total is frozen here; items the remote adds mid-run belong to the
	// next job, so processed can never overtake it.
	total := page.Paging.Total
	if err := o.ledger.MarkRunning(job.ID, total); err != nil {
		log.Errorf("[Sync] Job %s could not enter running: %v", job.ID, err)
		return
	}
	log.Infof("[Sync] Job %s (%s) running, %d items expected", job.ID, job.Type, total)

	failures := 0
	fetched := 0
	for {
		results := page.Results
		if remaining := total - fetched; len(results) > remaining {
			results = results[:remaining]
		}
		for _, itemID := range results {
			if err := o.syncItem(ctx, fetcher, token, job.AccountID, itemID, false); err != nil {
				failures++
				log.Warnf("[Sync] Job %s: item %s failed: %v", job.ID, itemID, err)
			}
			if err := o.ledger.RecordItemProcessed(job.ID); err != nil {
				log.Errorf("[Sync] Job %s: progress update failed: %v", job.ID, err)
			}
		}
		fetched += len(results)
		if len(results) == 0 || fetched >= total {
			break
		}

		page, err = o.client.ListItemsUpdatedSince(ctx, fetcher, token, account.SellerID, watermark, fetched, o.pageSize)
		if err != nil {
			// Mid-run page failure: what is done is done, the job degrades.
			log.Errorf("[Sync] Job %s: page fetch at offset %d failed: %v", job.ID, fetched, err)
			_ = o.ledger.Finish(job.ID, models.SyncJobStatusPartial, fmt.Errorf("page fetch at offset %d: %w", fetched, err))
			return
		}
	}

	if failures > 0 {
		_ = o.ledger.Finish(job.ID, models.SyncJobStatusPartial, fmt.Errorf("%d of %d items failed", failures, fetched))
		log.Warnf("[Sync] Job %s finished partial: %d/%d items failed", job.ID, failures, fetched)
		return
	}
	_ = o.ledger.Finish(job.ID, models.SyncJobStatusSuccess, nil)
	log.Infof("[Sync] Job %s finished successfully, %d items", job.ID, fetched)
}

// runSingleItemSync fetches one item plus its description and upserts it.
func (o *Orchestrator) runSingleItemSync(ctx context.Context, job *models.SyncJob, externalID string) {
	token, err := o.tokens.GetValidToken(ctx, job.AccountID)
	if err != nil {
		o.fail(job, fmt.Errorf("obtain token: %w", err))
		return
	}

	if err := o.ledger.MarkRunning(job.ID, 1); err != nil {
		log.Errorf("[Sync] Job %s could not enter running: %v", job.ID, err)
		return
	}

	fetcher := o.fetcherFor(job.AccountID)
	if err := o.syncItem(ctx, fetcher, token, job.AccountID, externalID, true); err != nil {
		_ = o.ledger.RecordItemProcessed(job.ID)
		_ = o.ledger.Finish(job.ID, models.SyncJobStatusFailed, err)
		return
	}
	_ = o.ledger.RecordItemProcessed(job.ID)
	_ = o.ledger.Finish(job.ID, models.SyncJobStatusSuccess, nil)
}

// syncItem fetches one item, maps it and upserts catalog plus sync state.
// Failures are recorded on the product's sync state and returned; the caller
// decides whether they abort the job (bulkhead behavior).
func (o *Orchestrator) syncItem(ctx context.Context, fetcher *marketplace.Fetcher, token string, accountID uint, externalID string, withDescription bool) error {
	item, err := o.client.GetItem(ctx, fetcher, token, externalID)
	if err != nil {
		o.recordItemError(accountID, externalID, err)
		return err
	}

	description := ""
	if withDescription {
		description, err = o.client.GetItemDescription(ctx, fetcher, token, externalID)
		if err != nil {
			o.recordItemError(accountID, externalID, err)
			return err
		}
	}

	product := mapItem(item, accountID, description)
	if err := o.products.Upsert(product); err != nil {
		o.recordItemError(accountID, externalID, err)
		return err
	}

	if err := o.states.RecordSuccess(accountID, externalID, time.Now()); err != nil {
		log.Errorf("[Sync] Failed to record sync state for %s: %v", externalID, err)
	}
	return nil
}

func (o *Orchestrator) recordItemError(accountID uint, externalID string, itemErr error) {
	if err := o.states.RecordError(accountID, externalID, itemErr.Error()); err != nil {
		log.Errorf("[Sync] Failed to record sync error for %s: %v", externalID, err)
	}
}

// fail finishes a job that never made meaningful progress.
func (o *Orchestrator) fail(job *models.SyncJob, err error) {
	log.Errorf("[Sync] Job %s failed: %v", job.ID, err)
	if ferr := o.ledger.Finish(job.ID, models.SyncJobStatusFailed, err); ferr != nil {
		log.Errorf("[Sync] Job %s could not be marked failed: %v", job.ID, ferr)
	}
}

// fetcherFor returns the account's rate-limited lane, creating it on first
// use. The fetcher serializes calls per account but not across accounts.
func (o *Orchestrator) fetcherFor(accountID uint) *marketplace.Fetcher {
	o.mu.Lock()
	defer o.mu.Unlock()
	fetcher, ok := o.fetchers[accountID]
	if !ok {
		fetcher = marketplace.NewFetcherFromEnv()
		o.fetchers[accountID] = fetcher
	}
	return fetcher
}

// mapItem converts a marketplace listing into a local catalog row.
func mapItem(item *marketplace.Item, accountID uint, description string) *models.Product {
	brand, _ := marketplace.ExtractBrand(item)
	remoteUpdated := item.LastUpdated
	product := &models.Product{
		ExternalID:   item.ID,
		AccountID:    accountID,
		Title:        item.Title,
		Brand:        brand,
		Price:        item.Price,
		CurrencyID:   item.CurrencyID,
		AvailableQty: item.AvailableQuantity,
		Condition:    item.Condition,
		Permalink:    item.Permalink,
		ThumbnailURL: item.Thumbnail,
		Description:  description,
		Active:       item.Status == "active",
	}
	if !remoteUpdated.IsZero() {
		product.RemoteUpdated = &remoteUpdated
	}
	return product
}
