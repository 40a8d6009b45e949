package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ghostprice/price-tracker/internal/config"
	"github.com/ghostprice/price-tracker/internal/models"
)

// ErrNotFound is returned when a product, observation or job run does not exist
var ErrNotFound = errors.New("not found")

// fullCatalogueLimit is the page size used when a caller asks for "all"
// products (limit <= 0). Sized well above the discovery cap so sweeps always
// see the whole catalogue.
const fullCatalogueLimit = 10000

// PriceWindow is the SQL-side aggregate over a product's price history window
type PriceWindow struct {
	Min   float64
	Max   float64
	Avg   float64
	Count int
}

// OutboxCounts summarizes the outbox backlog for the status endpoint
type OutboxCounts struct {
	Pending    int64 `json:"pending"`
	DeadLetter int64 `json:"dead_letter"`
}

// Store is the persistence boundary shared by the SQLite and Postgres backends.
// All history reads are bounded by a day window so the rolling 30-day view
// never depends on how much older data is still retained.
type Store interface {
	// Products
	UpsertProduct(ctx context.Context, p *models.TrackedProduct) error
	GetProduct(ctx context.Context, asin string) (*models.TrackedProduct, error)
	ListProducts(ctx context.Context, category string, limit int) ([]models.TrackedProduct, error)
	ListProductsForRefresh(ctx context.Context, limit int) ([]models.TrackedProduct, error)
	CountProducts(ctx context.Context) (int, error)
	CategoryBreakdown(ctx context.Context) (map[string]int, error)

	// Observations
	RecordObservation(ctx context.Context, obs *models.PriceObservation) error
	ImportHistory(ctx context.Context, asin string, observations []models.PriceObservation) (int, error)
	History(ctx context.Context, asin string, days int) ([]models.PriceObservation, error)
	LatestObservation(ctx context.Context, asin string) (*models.PriceObservation, error)
	WindowStats(ctx context.Context, asin string, days int) (*PriceWindow, error)
	CountObservations(ctx context.Context) (int, error)
	PruneObservations(ctx context.Context, olderThanDays int) (int64, error)

	// Outbox
	PendingEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventProcessed(ctx context.Context, id uuid.UUID) error
	MarkEventFailed(ctx context.Context, id uuid.UUID, processErr error) error
	OutboxBacklog(ctx context.Context) (*OutboxCounts, error)

	// Job runs
	InsertJobRun(ctx context.Context, run *models.JobRun) error
	UpdateJobRun(ctx context.Context, run *models.JobRun) error
	GetJobRun(ctx context.Context, id string) (*models.JobRun, error)
	NextPendingJobRun(ctx context.Context) (*models.JobRun, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open selects the backend from configuration: Postgres when a DATABASE_URL
// is set, the embedded SQLite file otherwise.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg.Database.URL != "" {
		store, err := NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil
	}

	store, err := NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	return store, nil
}

// windowCutoff converts a day window into the oldest timestamp still inside it
func windowCutoff(days int) time.Time {
	if days <= 0 {
		days = 30
	}
	return time.Now().AddDate(0, 0, -days)
}
