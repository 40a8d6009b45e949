package api

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghostprice/price-tracker/internal/database"
	"github.com/ghostprice/price-tracker/internal/models"
)

// DatabaseCounts summarizes the stored data for status endpoints
type DatabaseCounts struct {
	TrackedProducts     int             `json:"tracked_products"`
	PriceHistoryEntries int             `json:"price_history_entries"`
	Categories          []CategoryCount `json:"categories,omitempty"`
}

// CategoryCount is one row of the category breakdown, largest first
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// HealthResponse is the liveness payload. Outbox pressure degrades the status
// before anything actually breaks.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Database DatabaseCounts         `json:"database"`
	Outbox   *database.OutboxCounts `json:"outbox,omitempty"`
}

// Health reports service liveness plus the numbers a dashboard probe wants:
// row counts and the outbox backlog. A growing backlog turns the status to
// warning, a dead-letter pileup to error with a 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.store.CountProducts(ctx)
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		h.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "error",
			Message: "database unreachable",
		})
		return
	}
	observations, err := h.store.CountObservations(ctx)
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		h.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "error",
			Message: "database unreachable",
		})
		return
	}

	resp := HealthResponse{
		Status: "ok",
		Database: DatabaseCounts{
			TrackedProducts:     products,
			PriceHistoryEntries: observations,
		},
	}

	status := http.StatusOK
	if backlog, err := h.store.OutboxBacklog(ctx); err == nil {
		resp.Outbox = backlog
		if backlog.Pending > 1000 {
			resp.Status = "warning"
			resp.Message = "high number of pending outbox events"
		}
		if backlog.DeadLetter > 100 {
			resp.Status = "error"
			resp.Message = "high number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	} else {
		h.logger.Warn("failed to read outbox backlog", "error", err)
	}

	h.respondJSON(w, status, resp)
}

// JobStartResponse acknowledges a queued background run
type JobStartResponse struct {
	Status    string `json:"status"`
	Task      string `json:"task"`
	JobID     string `json:"job_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// StartRefreshJob queues a price refresh sweep. The worker picks pending runs
// up within its poll interval; the response carries the run id to poll.
func (h *Handlers) StartRefreshJob(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, r, models.JobTypeRefresh, "Price refresh sweep queued")
}

// StartDiscoveryJob queues a product discovery crawl.
func (h *Handlers) StartDiscoveryJob(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, r, models.JobTypeDiscovery, "Product discovery crawl queued")
}

func (h *Handlers) startJob(w http.ResponseWriter, r *http.Request, jobType, message string) {
	run, err := h.jobs.EnqueueRun(r.Context(), jobType)
	if err != nil {
		h.logger.Error("failed to queue job run", "type", jobType, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to queue job run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, JobStartResponse{
		Status:    "started",
		Task:      run.Type,
		JobID:     run.ID,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// GetJobRun returns the bookkeeping row for one run, counters included.
func (h *Handlers) GetJobRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "job run id is required")
		return
	}

	run, err := h.jobs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "job run not found")
			return
		}
		h.logger.Error("failed to load job run", "id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load job run")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

// AdminStatusResponse is the operator overview
type AdminStatusResponse struct {
	Status    string                 `json:"status"`
	Database  DatabaseCounts         `json:"database"`
	Outbox    *database.OutboxCounts `json:"outbox,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// AdminStatus reports row counts and the per-category product breakdown.
func (h *Handlers) AdminStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.store.CountProducts(ctx)
	if err != nil {
		h.logger.Error("failed to count products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to read database stats")
		return
	}

	observations, err := h.store.CountObservations(ctx)
	if err != nil {
		h.logger.Error("failed to count observations", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to read database stats")
		return
	}

	breakdown, err := h.store.CategoryBreakdown(ctx)
	if err != nil {
		h.logger.Error("failed to load category breakdown", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to read database stats")
		return
	}

	categories := make([]CategoryCount, 0, len(breakdown))
	for key, count := range breakdown {
		categories = append(categories, CategoryCount{Category: key, Count: count})
	}
	// Largest category first, name as the tie break so the order is stable
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Count != categories[j].Count {
			return categories[i].Count > categories[j].Count
		}
		return categories[i].Category < categories[j].Category
	})

	resp := AdminStatusResponse{
		Status: "healthy",
		Database: DatabaseCounts{
			TrackedProducts:     products,
			PriceHistoryEntries: observations,
			Categories:          categories,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if backlog, err := h.store.OutboxBacklog(ctx); err == nil {
		resp.Outbox = backlog
	}

	h.respondJSON(w, http.StatusOK, resp)
}
