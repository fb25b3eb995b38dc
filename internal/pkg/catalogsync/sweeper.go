package catalogsync

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/StefanMaier/MarketFox/app/models"
	"github.com/StefanMaier/MarketFox/app/repository"
	"github.com/StefanMaier/MarketFox/internal/pkg/env"
)

const (
	defaultSweepInterval   = time.Minute
	defaultStaleJobTimeout = 30 * time.Minute
)

// Sweeper reconciles jobs orphaned in running by a crashed process. A job
// whose heartbeat is older than the timeout is marked failed with an
// operator-visible message; it will never be resumed.
type Sweeper struct {
	jobs     repository.SyncJobRepository
	interval time.Duration
	timeout  time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper with intervals from the environment.
func NewSweeper(jobs repository.SyncJobRepository) *Sweeper {
	return &Sweeper{
		jobs:     jobs,
		interval: env.GetEnvDuration("SYNC_SWEEP_INTERVAL", defaultSweepInterval),
		timeout:  env.GetEnvDuration("SYNC_STALE_JOB_TIMEOUT", defaultStaleJobTimeout),
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true

	s.wg.Add(1)
	go s.loop()
	log.Infof("[SyncSweeper] Started (interval=%s, timeout=%s)", s.interval, s.timeout)
}

// Stop terminates the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	s.wg.Wait()
	log.Info("[SyncSweeper] Stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.SweepOnce(); err != nil {
				log.Errorf("[SyncSweeper] Sweep error: %v", err)
			}
		}
	}
}

// SweepOnce fails all running jobs whose heartbeat exceeded the timeout.
func (s *Sweeper) SweepOnce() error {
	cutoff := time.Now().Add(-s.timeout)
	stale, err := s.jobs.FindStaleRunning(cutoff)
	if err != nil {
		return err
	}
	for _, job := range stale {
		msg := fmt.Sprintf("job abandoned: no heartbeat since %s", cutoff.Format(time.RFC3339))
		if err := s.jobs.Finish(job.ID, models.SyncJobStatusFailed, msg); err != nil {
			log.Errorf("[SyncSweeper] Could not fail stale job %s: %v", job.ID, err)
			continue
		}
		log.Warnf("[SyncSweeper] Marked stale job %s (%s) as failed", job.ID, job.Type)
	}
	return nil
}
