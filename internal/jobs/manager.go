// Package jobs runs the tracker's background work: the price refresh sweep
// over every tracked product, the discovery crawl that finds new electronics
// on listing pages, and the seed import that bootstraps products from a
// candidate file. Runs are recorded in the job_runs table so the admin API
// can report progress and outcomes.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ghostprice/price-tracker/internal/config"
	"github.com/ghostprice/price-tracker/internal/database"
	"github.com/ghostprice/price-tracker/internal/models"
	"github.com/ghostprice/price-tracker/internal/parser"
	"github.com/ghostprice/price-tracker/internal/pricesource"
	"github.com/ghostprice/price-tracker/internal/queue"
	"github.com/ghostprice/price-tracker/internal/ratelimit"
	"github.com/ghostprice/price-tracker/internal/storage"
)

// PageFetcher is the slice of the scraper the jobs use.
type PageFetcher interface {
	FetchPage(ctx context.Context, asin, marketplace string) (*parser.ProductPage, error)
	FetchListing(ctx context.Context, url string, max int) ([]string, error)
}

// HistoryResolver produces a starting price history for a product, however it
// can. Satisfied by the fallback chain.
type HistoryResolver interface {
	Resolve(ctx context.Context, asin, marketplace string, currentPrice float64) (*pricesource.Result, error)
}

type Manager struct {
	store    database.Store
	scraper  PageFetcher
	resolver HistoryResolver
	refreshQ *queue.RefreshQueue
	seeds    *storage.SeedStore
	cfg      *config.Config
	logger   *slog.Logger

	// listingLimiter adds adaptive spacing on top of the scraper's own jitter
	// for listing pages; blocks stretch the delay instead of hammering on.
	listingLimiter *ratelimit.AdaptiveRateLimiter

	cooldownMin time.Duration
	cooldownMax time.Duration
}

func NewManager(store database.Store, scraper PageFetcher, resolver HistoryResolver, refreshQueue *queue.RefreshQueue, cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		store:          store,
		scraper:        scraper,
		resolver:       resolver,
		refreshQ:       refreshQueue,
		cfg:            cfg,
		logger:         logger.With("component", "jobs"),
		listingLimiter: ratelimit.NewListingCrawlLimiter(),
		cooldownMin:    10 * time.Second,
		cooldownMax:    15 * time.Second,
	}
}

// WithSeedStore enables candidate export during discovery and the seed import.
func (m *Manager) WithSeedStore(seeds *storage.SeedStore) *Manager {
	m.seeds = seeds
	return m
}

// EnqueueRun records a pending run for the worker to pick up.
func (m *Manager) EnqueueRun(ctx context.Context, jobType string) (*models.JobRun, error) {
	switch jobType {
	case models.JobTypeRefresh, models.JobTypeDiscovery:
	default:
		return nil, fmt.Errorf("unknown job type: %s", jobType)
	}

	run := models.NewJobRun(jobType)
	if err := m.store.InsertJobRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to queue job run: %w", err)
	}

	m.logger.Info("job run queued", "id", run.ID, "type", jobType)
	return run, nil
}

// GetRun returns a run by id, database.ErrNotFound when it does not exist.
func (m *Manager) GetRun(ctx context.Context, id string) (*models.JobRun, error) {
	return m.store.GetJobRun(ctx, id)
}

// QueueRefresh asks the worker to refresh one product ahead of the next
// sweep. Duplicate requests for an ASIN already waiting are dropped.
func (m *Manager) QueueRefresh(asin, marketplace string) error {
	if m.refreshQ == nil {
		return fmt.Errorf("no refresh queue configured")
	}

	err := m.refreshQ.Push(queue.NewRefreshTask(asin, marketplace, queue.PriorityManual))
	if errors.Is(err, queue.ErrAlreadyQueued) {
		m.logger.Debug("refresh already queued", "asin", asin)
		return nil
	}
	return err
}

func (m *Manager) startRun(ctx context.Context, run *models.JobRun) error {
	now := time.Now()
	run.Status = models.JobStatusRunning
	run.StartedAt = &now
	return m.store.UpdateJobRun(ctx, run)
}

func (m *Manager) finishRun(ctx context.Context, run *models.JobRun, runErr error) {
	now := time.Now()
	run.FinishedAt = &now

	if runErr != nil {
		run.Status = models.JobStatusFailed
		run.Error = runErr.Error()
	} else {
		run.Status = models.JobStatusCompleted
	}

	if err := m.store.UpdateJobRun(ctx, run); err != nil {
		m.logger.Error("failed to record job run result", "id", run.ID, "error", err)
	}
}

// checkpoint persists in-flight counters so the admin endpoint shows progress
// during long sweeps. Failures only cost visibility, never the run.
func (m *Manager) checkpoint(ctx context.Context, run *models.JobRun) {
	if err := m.store.UpdateJobRun(ctx, run); err != nil {
		m.logger.Warn("failed to checkpoint job run", "id", run.ID, "error", err)
	}
}
