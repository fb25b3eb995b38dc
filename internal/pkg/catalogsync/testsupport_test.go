package catalogsync

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/cache"
)

// requireTestRedis points the shared cache client at a reachable Redis or
// skips the test.
func requireTestRedis(t *testing.T) {
	t.Helper()

	hosts := []string{os.Getenv("CACHE_HOST"), "cache", "localhost", "127.0.0.1"}
	port := os.Getenv("CACHE_PORT")
	if port == "" {
		port = "6379"
	}
	password := os.Getenv("CACHE_PASSWORD")

	var lastErr error
	for _, host := range hosts {
		if host == "" {
			continue
		}
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", host, port),
			Password: password,
			DB:       14,
		})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := client.Ping(ctx).Result()
		cancel()
		if err == nil {
			cache.SetClient(client)
			return
		}
		lastErr = err
		_ = client.Close()
	}
	t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", lastErr)
}

// fakeJobStore is an in-memory sync job ledger enforcing the same forward-only
// transitions as the real repository.
type fakeJobStore struct {
	mu    sync.Mutex
	jobs  map[string]*models.SyncJob
	stale []models.SyncJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.SyncJob)}
}

func (s *fakeJobStore) Create(job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.CreatedAt = time.Now()
	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

func (s *fakeJobStore) GetByID(id string) (*models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	j := *job
	return &j, nil
}

func (s *fakeJobStore) MarkRunning(id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if !job.CanTransitionTo(models.SyncJobStatusRunning) {
		return fmt.Errorf("job %s cannot move from %s to running", id, job.Status)
	}
	now := time.Now()
	job.Status = models.SyncJobStatusRunning
	job.Total = total
	job.StartedAt = &now
	job.HeartbeatAt = &now
	return nil
}

func (s *fakeJobStore) IncrementProcessed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if job.Total > 0 && job.Processed >= job.Total {
		return nil
	}
	now := time.Now()
	job.Processed++
	job.HeartbeatAt = &now
	return nil
}

func (s *fakeJobStore) Finish(id string, status models.SyncJobStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if !job.CanTransitionTo(status) {
		return fmt.Errorf("job %s cannot move from %s to %s", id, job.Status, status)
	}
	now := time.Now()
	job.Status = status
	job.LastError = lastError
	job.FinishedAt = &now
	return nil
}

func (s *fakeJobStore) List(limit, offset int) ([]models.SyncJob, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SyncJob
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out, int64(len(out)), nil
}

func (s *fakeJobStore) FindStaleRunning(heartbeatBefore time.Time) ([]models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SyncJob(nil), s.stale...), nil
}

// waitTerminal polls until the background job body finishes.
func (s *fakeJobStore) waitTerminal(t *testing.T, id string) *models.SyncJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.GetByID(id)
		if err == nil && job.IsTerminal() {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state in time", id)
	return nil
}

// fakeAccountStore serves a single connected account.
type fakeAccountStore struct {
	mu      sync.Mutex
	account *models.MarketplaceAccount
}

func (s *fakeAccountStore) GetByID(id uint) (*models.MarketplaceAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil || s.account.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	a := *s.account
	return &a, nil
}

func (s *fakeAccountStore) GetByUserID(userID uint) (*models.MarketplaceAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil || s.account.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	a := *s.account
	return &a, nil
}

func (s *fakeAccountStore) First() (*models.MarketplaceAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return nil, gorm.ErrRecordNotFound
	}
	a := *s.account
	return &a, nil
}

func (s *fakeAccountStore) Upsert(account *models.MarketplaceAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *account
	s.account = &stored
	return nil
}

func (s *fakeAccountStore) UpdateTokens(id uint, accessToken, refreshToken, scope string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account != nil && s.account.ID == id {
		s.account.AccessToken = accessToken
		s.account.RefreshToken = refreshToken
		s.account.TokenScope = scope
		s.account.ExpiresAt = &expiresAt
	}
	return nil
}

func (s *fakeAccountStore) Delete(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = nil
	return nil
}

// validAccount returns a connected account whose token needs no refresh.
func validAccount(id uint) *models.MarketplaceAccount {
	expires := time.Now().Add(time.Hour)
	return &models.MarketplaceAccount{
		ID:           id,
		UserID:       1,
		SellerID:     "123456",
		AccessToken:  "APP_USR-test-token",
		RefreshToken: "TG-test-refresh",
		ExpiresAt:    &expires,
	}
}

// fakeProductStore records catalog upserts.
type fakeProductStore struct {
	mu       sync.Mutex
	products map[string]*models.Product
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{products: make(map[string]*models.Product)}
}

func (s *fakeProductStore) Upsert(product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *product
	s.products[product.ExternalID] = &stored
	return nil
}

func (s *fakeProductStore) GetByExternalID(externalID string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[externalID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	p := *product
	return &p, nil
}

func (s *fakeProductStore) CountByAccount(accountID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.products)), nil
}

func (s *fakeProductStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}

// fakeStateStore records per-product sync outcomes.
type fakeStateStore struct {
	mu        sync.Mutex
	watermark *time.Time
	successes map[string]time.Time
	errors    map[string]string
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{
		successes: make(map[string]time.Time),
		errors:    make(map[string]string),
	}
}

func (s *fakeStateStore) GetByExternalID(externalID string) (*models.ProductSyncState, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStateStore) ListByAccount(accountID uint) ([]models.ProductSyncState, error) {
	return nil, nil
}

func (s *fakeStateStore) Watermark(accountID uint) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark, nil
}

func (s *fakeStateStore) RecordSuccess(accountID uint, externalID string, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes[externalID] = syncedAt
	delete(s.errors, externalID)
	return nil
}

func (s *fakeStateStore) RecordError(accountID uint, externalID string, syncErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[externalID] = syncErr
	return nil
}

func (s *fakeStateStore) errorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errors)
}

var _ repository.SyncJobRepository = (*fakeJobStore)(nil)
var _ repository.MarketplaceAccountRepository = (*fakeAccountStore)(nil)
var _ repository.ProductRepository = (*fakeProductStore)(nil)
var _ repository.ProductSyncStateRepository = (*fakeStateStore)(nil)
