package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghostprice/price-tracker/internal/events"
	"github.com/ghostprice/price-tracker/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tracked_products (
	asin            TEXT PRIMARY KEY,
	title           TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	marketplace     TEXT NOT NULL DEFAULT 'IN',
	currency        TEXT NOT NULL DEFAULT 'INR',
	first_seen_at   TIMESTAMPTZ NOT NULL,
	last_updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS price_history (
	id          BIGSERIAL PRIMARY KEY,
	asin        TEXT NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	currency    TEXT NOT NULL DEFAULT 'INR',
	marketplace TEXT NOT NULL DEFAULT 'IN',
	source      TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox_events (
	id            UUID PRIMARY KEY,
	asin          TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	payload       JSONB NOT NULL,
	target_stream TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	retry_count   INT NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	processed_at  TIMESTAMPTZ,
	next_retry_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS job_runs (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	processed   INT NOT NULL DEFAULT 0,
	succeeded   INT NOT NULL DEFAULT 0,
	failed      INT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_price_history_asin_timestamp ON price_history(asin, timestamp);
CREATE INDEX IF NOT EXISTS idx_tracked_products_last_updated ON tracked_products(last_updated_at);
CREATE INDEX IF NOT EXISTS idx_tracked_products_category ON tracked_products(category);
CREATE INDEX IF NOT EXISTS idx_outbox_events_status ON outbox_events(status, next_retry_at);
CREATE INDEX IF NOT EXISTS idx_job_runs_status ON job_runs(status, created_at);
`

// PostgresStore persists tracking state in Postgres. It is selected whenever a
// DATABASE_URL is configured and carries the exact same semantics as the
// SQLite backend.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to the database, verifies the connection and
// applies the schema
func NewPostgresStore(ctx context.Context, url string, maxConns int32, logger *slog.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("postgres store ready")

	return &PostgresStore{
		pool:   pool,
		logger: logger.With("component", "postgres"),
	}, nil
}

// transaction executes fn inside a database transaction
func (s *PostgresStore) transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpsertProduct inserts a product or refreshes an existing row, preserving
// first_seen_at and never clobbering known titles or categories with blanks
func (s *PostgresStore) UpsertProduct(ctx context.Context, p *models.TrackedProduct) error {
	query := `
		INSERT INTO tracked_products (asin, title, category, marketplace, currency, first_seen_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (asin) DO UPDATE SET
			title = CASE WHEN EXCLUDED.title != '' THEN EXCLUDED.title ELSE tracked_products.title END,
			category = CASE WHEN EXCLUDED.category != '' THEN EXCLUDED.category ELSE tracked_products.category END,
			marketplace = EXCLUDED.marketplace,
			currency = EXCLUDED.currency,
			last_updated_at = EXCLUDED.last_updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.ASIN, p.Title, p.Category, p.Marketplace, p.Currency, p.FirstSeenAt, p.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	return nil
}

// GetProduct loads a single tracked product by ASIN
func (s *PostgresStore) GetProduct(ctx context.Context, asin string) (*models.TrackedProduct, error) {
	query := `
		SELECT asin, title, category, marketplace, currency, first_seen_at, last_updated_at
		FROM tracked_products
		WHERE asin = $1`

	var p models.TrackedProduct
	err := s.pool.QueryRow(ctx, query, asin).Scan(
		&p.ASIN, &p.Title, &p.Category, &p.Marketplace, &p.Currency, &p.FirstSeenAt, &p.LastUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &p, nil
}

// ListProducts returns tracked products, newest activity first, optionally
// filtered by category
func (s *PostgresStore) ListProducts(ctx context.Context, category string, limit int) ([]models.TrackedProduct, error) {
	query := `
		SELECT asin, title, category, marketplace, currency, first_seen_at, last_updated_at
		FROM tracked_products`
	args := []interface{}{}

	if limit <= 0 {
		limit = fullCatalogueLimit
	}

	if category != "" {
		query += ` WHERE category = $1 ORDER BY last_updated_at DESC LIMIT $2`
		args = append(args, category, limit)
	} else {
		query += ` ORDER BY last_updated_at DESC LIMIT $1`
		args = append(args, limit)
	}

	return s.queryProducts(ctx, query, args...)
}

// ListProductsForRefresh returns the stalest products first
func (s *PostgresStore) ListProductsForRefresh(ctx context.Context, limit int) ([]models.TrackedProduct, error) {
	if limit <= 0 {
		limit = fullCatalogueLimit
	}

	query := `
		SELECT asin, title, category, marketplace, currency, first_seen_at, last_updated_at
		FROM tracked_products
		ORDER BY last_updated_at ASC
		LIMIT $1`

	return s.queryProducts(ctx, query, limit)
}

// CountProducts returns the number of tracked products
func (s *PostgresStore) CountProducts(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tracked_products`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// CategoryBreakdown returns the number of tracked products per category
func (s *PostgresStore) CategoryBreakdown(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT category, COUNT(*) FROM tracked_products GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to get category breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		breakdown[category] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return breakdown, nil
}

// RecordObservation appends a price point and, in the same transaction, bumps
// the product's last update time and queues the outbox events describing the
// observation
func (s *PostgresStore) RecordObservation(ctx context.Context, obs *models.PriceObservation) error {
	return s.transaction(ctx, func(tx pgx.Tx) error {
		var previous float64
		err := tx.QueryRow(ctx,
			`SELECT price FROM price_history WHERE asin = $1 ORDER BY timestamp DESC LIMIT 1`,
			obs.ASIN).Scan(&previous)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to read previous price: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO price_history (asin, price, currency, marketplace, source, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (asin, timestamp) DO NOTHING`,
			obs.ASIN, obs.Price, obs.Currency, obs.Marketplace, obs.Source, obs.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert observation: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE tracked_products SET last_updated_at = $1 WHERE asin = $2`,
			obs.Timestamp, obs.ASIN); err != nil {
			return fmt.Errorf("failed to bump product: %w", err)
		}

		if tag.RowsAffected() == 0 {
			return nil
		}

		event, err := newOutboxEvent(events.NewObservationRecorded(obs))
		if err != nil {
			return err
		}
		if err := s.insertOutboxTx(ctx, tx, event); err != nil {
			return err
		}

		if previous > 0 && obs.Price < previous {
			drop, err := newOutboxEvent(events.NewDropDetected(obs, previous))
			if err != nil {
				return err
			}
			if err := s.insertOutboxTx(ctx, tx, drop); err != nil {
				return err
			}
		}

		return nil
	})
}

// ImportHistory bulk-loads historical points for a product, skipping any
// (asin, timestamp) pair already present. Returns the number of new rows.
func (s *PostgresStore) ImportHistory(ctx context.Context, asin string, observations []models.PriceObservation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.transaction(ctx, func(tx pgx.Tx) error {
		for _, obs := range observations {
			tag, err := tx.Exec(ctx,
				`INSERT INTO price_history (asin, price, currency, marketplace, source, timestamp)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (asin, timestamp) DO NOTHING`,
				asin, obs.Price, obs.Currency, obs.Marketplace, obs.Source, obs.Timestamp)
			if err != nil {
				return fmt.Errorf("failed to import observation: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

// History returns a product's observations inside the day window, oldest first
func (s *PostgresStore) History(ctx context.Context, asin string, days int) ([]models.PriceObservation, error) {
	query := `
		SELECT id, asin, price, currency, marketplace, source, timestamp
		FROM price_history
		WHERE asin = $1 AND timestamp >= $2
		ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, asin, windowCutoff(days))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []models.PriceObservation
	for rows.Next() {
		var obs models.PriceObservation
		if err := rows.Scan(&obs.ID, &obs.ASIN, &obs.Price, &obs.Currency, &obs.Marketplace, &obs.Source, &obs.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		history = append(history, obs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return history, nil
}

// LatestObservation returns the most recent price point for a product
func (s *PostgresStore) LatestObservation(ctx context.Context, asin string) (*models.PriceObservation, error) {
	query := `
		SELECT id, asin, price, currency, marketplace, source, timestamp
		FROM price_history
		WHERE asin = $1
		ORDER BY timestamp DESC
		LIMIT 1`

	var obs models.PriceObservation
	err := s.pool.QueryRow(ctx, query, asin).Scan(
		&obs.ID, &obs.ASIN, &obs.Price, &obs.Currency, &obs.Marketplace, &obs.Source, &obs.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest observation: %w", err)
	}

	return &obs, nil
}

// WindowStats aggregates min, max, average and count over the day window
func (s *PostgresStore) WindowStats(ctx context.Context, asin string, days int) (*PriceWindow, error) {
	query := `
		SELECT COALESCE(MIN(price), 0), COALESCE(MAX(price), 0), COALESCE(AVG(price), 0), COUNT(*)
		FROM price_history
		WHERE asin = $1 AND timestamp >= $2`

	window := &PriceWindow{}
	err := s.pool.QueryRow(ctx, query, asin, windowCutoff(days)).Scan(
		&window.Min, &window.Max, &window.Avg, &window.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate window: %w", err)
	}

	return window, nil
}

// CountObservations returns the total number of stored price points
func (s *PostgresStore) CountObservations(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM price_history`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return count, nil
}

// PruneObservations deletes price points older than the retention window
func (s *PostgresStore) PruneObservations(ctx context.Context, olderThanDays int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM price_history WHERE timestamp < $1`, windowCutoff(olderThanDays))
	if err != nil {
		return 0, fmt.Errorf("failed to prune observations: %w", err)
	}

	return tag.RowsAffected(), nil
}

// PendingEvents retrieves outbox events ready for publishing, oldest first
func (s *PostgresStore) PendingEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `
		SELECT id, asin, event_type, payload, target_stream, status, retry_count,
			error_message, created_at, processed_at, next_retry_at
		FROM outbox_events
		WHERE status IN ($1, $2) AND next_retry_at <= $3
		ORDER BY created_at ASC
		LIMIT $4`

	rows, err := s.pool.Query(ctx, query,
		OutboxStatusPending, OutboxStatusFailed, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	defer rows.Close()

	var pending []*OutboxEvent
	for rows.Next() {
		event := &OutboxEvent{}
		err := rows.Scan(
			&event.ID, &event.ASIN, &event.EventType, &event.Payload, &event.TargetStream,
			&event.Status, &event.RetryCount, &event.ErrorMessage,
			&event.CreatedAt, &event.ProcessedAt, &event.NextRetryAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		pending = append(pending, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return pending, nil
}

// MarkEventProcessed marks an outbox event as successfully published
func (s *PostgresStore) MarkEventProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outbox_events SET status = $1, processed_at = $2 WHERE id = $3`,
		OutboxStatusProcessed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// MarkEventFailed bumps the retry count, schedules the next attempt and moves
// the event to dead letter once retries are exhausted
func (s *PostgresStore) MarkEventFailed(ctx context.Context, id uuid.UUID, processErr error) error {
	var retryCount int
	err := s.pool.QueryRow(ctx,
		`SELECT retry_count FROM outbox_events WHERE id = $1`, id).Scan(&retryCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("event not found: %s", id)
		}
		return fmt.Errorf("failed to get retry count: %w", err)
	}

	retryCount++
	status, nextRetryAt := nextAttempt(retryCount)

	_, err = s.pool.Exec(ctx,
		`UPDATE outbox_events SET status = $1, retry_count = $2, error_message = $3, next_retry_at = $4 WHERE id = $5`,
		status, retryCount, processErr.Error(), nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}

	return nil
}

// OutboxBacklog counts events still waiting to publish and events in dead letter
func (s *PostgresStore) OutboxBacklog(ctx context.Context) (*OutboxCounts, error) {
	counts := &OutboxCounts{}

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE status IN ($1, $2)`,
		OutboxStatusPending, OutboxStatusFailed).Scan(&counts.Pending)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending events: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE status = $1`,
		OutboxStatusDeadLetter).Scan(&counts.DeadLetter)
	if err != nil {
		return nil, fmt.Errorf("failed to count dead letter events: %w", err)
	}

	return counts, nil
}

// InsertJobRun stores a new job run in pending state
func (s *PostgresStore) InsertJobRun(ctx context.Context, run *models.JobRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_runs (id, type, status, processed, succeeded, failed, created_at, started_at, finished_at, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.Type, run.Status, run.Processed, run.Succeeded, run.Failed,
		run.CreatedAt, run.StartedAt, run.FinishedAt, run.Error)
	if err != nil {
		return fmt.Errorf("failed to insert job run: %w", err)
	}
	return nil
}

// UpdateJobRun persists status and counter changes for a job run
func (s *PostgresStore) UpdateJobRun(ctx context.Context, run *models.JobRun) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_runs SET status = $1, processed = $2, succeeded = $3, failed = $4, started_at = $5, finished_at = $6, error = $7
		 WHERE id = $8`,
		run.Status, run.Processed, run.Succeeded, run.Failed,
		run.StartedAt, run.FinishedAt, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update job run: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job run not found: %s", run.ID)
	}

	return nil
}

// GetJobRun loads a job run by id
func (s *PostgresStore) GetJobRun(ctx context.Context, id string) (*models.JobRun, error) {
	var run models.JobRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, type, status, processed, succeeded, failed, created_at, started_at, finished_at, error
		 FROM job_runs WHERE id = $1`, id).Scan(
		&run.ID, &run.Type, &run.Status, &run.Processed, &run.Succeeded, &run.Failed,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt, &run.Error)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job run: %w", err)
	}

	return &run, nil
}

// NextPendingJobRun returns the oldest job run still waiting for the worker
func (s *PostgresStore) NextPendingJobRun(ctx context.Context) (*models.JobRun, error) {
	var run models.JobRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, type, status, processed, succeeded, failed, created_at, started_at, finished_at, error
		 FROM job_runs WHERE status = $1 ORDER BY created_at ASC LIMIT 1`,
		models.JobStatusPending).Scan(
		&run.ID, &run.Type, &run.Status, &run.Processed, &run.Succeeded, &run.Failed,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt, &run.Error)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pending job run: %w", err)
	}

	return &run, nil
}

// Ping verifies the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) queryProducts(ctx context.Context, query string, args ...interface{}) ([]models.TrackedProduct, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.TrackedProduct
	for rows.Next() {
		var p models.TrackedProduct
		if err := rows.Scan(&p.ASIN, &p.Title, &p.Category, &p.Marketplace, &p.Currency, &p.FirstSeenAt, &p.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

// insertOutboxTx writes an outbox row inside the caller's transaction
func (s *PostgresStore) insertOutboxTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_events (id, asin, event_type, payload, target_stream, status, retry_count, created_at, next_retry_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.ASIN, event.EventType, event.Payload, event.TargetStream,
		event.Status, event.RetryCount, event.CreatedAt, event.NextRetryAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}
