package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghostprice/price-tracker/internal/database"
	"github.com/ghostprice/price-tracker/internal/models"
)

// manualRefreshBatch bounds how many queued refreshes one tick serves, so a
// burst of extension requests cannot starve the scheduled runs.
const manualRefreshBatch = 5

// StartWorker polls for queued runs and manual refresh requests until the
// context is cancelled. Meant to run as a goroutine next to the HTTP server.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case <-ticker.C:
			m.drainRefreshQueue(ctx)
			m.processNextRun(ctx)
		}
	}
}

// processNextRun claims the oldest pending run and executes it.
func (m *Manager) processNextRun(ctx context.Context) {
	run, err := m.store.NextPendingJobRun(ctx)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			m.logger.Error("failed to claim job run", "error", err)
		}
		return
	}

	m.logger.Info("processing job run", "id", run.ID, "type", run.Type)

	if err := m.startRun(ctx, run); err != nil {
		m.logger.Error("failed to mark job run running", "id", run.ID, "error", err)
		return
	}

	var runErr error
	switch run.Type {
	case models.JobTypeRefresh:
		runErr = m.runRefresh(ctx, run)
	case models.JobTypeDiscovery:
		runErr = m.runDiscovery(ctx, run)
	default:
		runErr = fmt.Errorf("unknown job type: %s", run.Type)
	}

	if runErr != nil {
		m.logger.Error("job run failed", "id", run.ID, "error", runErr)
	} else {
		m.logger.Info("job run completed", "id", run.ID,
			"processed", run.Processed,
			"succeeded", run.Succeeded,
			"failed", run.Failed)
	}

	m.finishRun(ctx, run, runErr)
}

// RunNow executes a job synchronously, bypassing the worker loop. The run is
// still recorded in job_runs, so sweeps started from the command line show up
// in the admin API like any other.
func (m *Manager) RunNow(ctx context.Context, jobType string) (*models.JobRun, error) {
	run, err := m.EnqueueRun(ctx, jobType)
	if err != nil {
		return nil, err
	}

	if err := m.startRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to mark job run running: %w", err)
	}

	var runErr error
	switch run.Type {
	case models.JobTypeRefresh:
		runErr = m.runRefresh(ctx, run)
	case models.JobTypeDiscovery:
		runErr = m.runDiscovery(ctx, run)
	}

	m.finishRun(ctx, run, runErr)
	return run, runErr
}

// drainRefreshQueue serves queued manual refreshes. The scraper's own limiter
// paces the fetches.
func (m *Manager) drainRefreshQueue(ctx context.Context) {
	if m.refreshQ == nil {
		return
	}

	for _, task := range m.refreshQ.Drain(manualRefreshBatch) {
		if err := ctx.Err(); err != nil {
			return
		}

		if err := m.refreshOne(ctx, task.ASIN, task.Marketplace); err != nil {
			m.logger.Warn("manual refresh failed", "asin", task.ASIN, "error", err)
			continue
		}
		m.logger.Info("manual refresh served", "asin", task.ASIN)
	}
}
