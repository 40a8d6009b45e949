package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ghostprice/price-tracker/internal/events"
	"github.com/ghostprice/price-tracker/internal/models"
)

// sqliteSchema bootstraps the embedded database on first open. Timestamps are
// stored as unix seconds so window comparisons stay integer comparisons.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tracked_products (
	asin            TEXT PRIMARY KEY,
	title           TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	marketplace     TEXT NOT NULL DEFAULT 'IN',
	currency        TEXT NOT NULL DEFAULT 'INR',
	first_seen_at   INTEGER NOT NULL,
	last_updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS price_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	asin        TEXT NOT NULL,
	price       REAL NOT NULL,
	currency    TEXT NOT NULL DEFAULT 'INR',
	marketplace TEXT NOT NULL DEFAULT 'IN',
	source      TEXT NOT NULL,
	timestamp   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox_events (
	id            TEXT PRIMARY KEY,
	asin          TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	payload       TEXT NOT NULL,
	target_stream TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    INTEGER NOT NULL,
	processed_at  INTEGER,
	next_retry_at INTEGER
);

CREATE TABLE IF NOT EXISTS job_runs (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	processed   INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	started_at  INTEGER,
	finished_at INTEGER,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_price_history_asin_timestamp ON price_history(asin, timestamp);
CREATE INDEX IF NOT EXISTS idx_tracked_products_last_updated ON tracked_products(last_updated_at);
CREATE INDEX IF NOT EXISTS idx_tracked_products_category ON tracked_products(category);
CREATE INDEX IF NOT EXISTS idx_outbox_events_status ON outbox_events(status, next_retry_at);
CREATE INDEX IF NOT EXISTS idx_job_runs_status ON job_runs(status, created_at);
`

// SQLiteStore persists tracking state in a single local file. It is the
// default backend so the service runs without any external infrastructure.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at path
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Single connection avoids SQLITE_BUSY between the worker, relay and handlers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	logger.Info("sqlite store ready", "path", path)

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "sqlite"),
	}, nil
}

// UpsertProduct inserts a product or refreshes an existing row. The first seen
// timestamp is never overwritten; empty titles and categories never clobber
// known values.
func (s *SQLiteStore) UpsertProduct(ctx context.Context, p *models.TrackedProduct) error {
	query := `
		INSERT INTO tracked_products (asin, title, category, marketplace, currency, first_seen_at, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asin) DO UPDATE SET
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE tracked_products.title END,
			category = CASE WHEN excluded.category != '' THEN excluded.category ELSE tracked_products.category END,
			marketplace = excluded.marketplace,
			currency = excluded.currency,
			last_updated_at = excluded.last_updated_at`

	_, err := s.db.ExecContext(ctx, query,
		p.ASIN, p.Title, p.Category, p.Marketplace, p.Currency,
		p.FirstSeenAt.Unix(), p.LastUpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	return nil
}

// GetProduct loads a single tracked product by ASIN
func (s *SQLiteStore) GetProduct(ctx context.Context, asin string) (*models.TrackedProduct, error) {
	query := `
		SELECT asin, title, category, marketplace, currency, first_seen_at, last_updated_at
		FROM tracked_products
		WHERE asin = ?`

	p, err := scanProduct(s.db.QueryRowContext(ctx, query, asin))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return p, nil
}

// ListProducts returns tracked products, newest activity first, optionally
// filtered by category
func (s *SQLiteStore) ListProducts(ctx context.Context, category string, limit int) ([]models.TrackedProduct, error) {
	query := `
		SELECT asin, title, category, marketplace, currency, first_seen_at, last_updated_at
		FROM tracked_products`
	args := []interface{}{}

	if limit <= 0 {
		limit = fullCatalogueLimit
	}

	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY last_updated_at DESC LIMIT ?`
	args = append(args, limit)

	return s.queryProducts(ctx, query, args...)
}

// ListProductsForRefresh returns the stalest products first so scheduled
// refreshes always work on the least recently updated data
func (s *SQLiteStore) ListProductsForRefresh(ctx context.Context, limit int) ([]models.TrackedProduct, error) {
	if limit <= 0 {
		limit = fullCatalogueLimit
	}

	query := `
		SELECT asin, title, category, marketplace, currency, first_seen_at, last_updated_at
		FROM tracked_products
		ORDER BY last_updated_at ASC
		LIMIT ?`

	return s.queryProducts(ctx, query, limit)
}

// CountProducts returns the number of tracked products
func (s *SQLiteStore) CountProducts(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracked_products`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// CategoryBreakdown returns the number of tracked products per category
func (s *SQLiteStore) CategoryBreakdown(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM tracked_products GROUP BY category`)
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
// observation. A point that duplicates an existing (asin, timestamp) pair is
// dropped silently and queues no events.
func (s *SQLiteStore) RecordObservation(ctx context.Context, obs *models.PriceObservation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var previous float64
	err = tx.QueryRowContext(ctx,
		`SELECT price FROM price_history WHERE asin = ? ORDER BY timestamp DESC LIMIT 1`,
		obs.ASIN).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read previous price: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO price_history (asin, price, currency, marketplace, source, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		obs.ASIN, obs.Price, obs.Currency, obs.Marketplace, obs.Source, obs.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tracked_products SET last_updated_at = ? WHERE asin = ?`,
		obs.Timestamp.Unix(), obs.ASIN); err != nil {
		return fmt.Errorf("failed to bump product: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}

	if inserted > 0 {
		event, err := newOutboxEvent(events.NewObservationRecorded(obs))
		if err != nil {
			return err
		}
		if err := insertOutboxTx(ctx, tx, event); err != nil {
			return err
		}

		if previous > 0 && obs.Price < previous {
			drop, err := newOutboxEvent(events.NewDropDetected(obs, previous))
			if err != nil {
				return err
			}
			if err := insertOutboxTx(ctx, tx, drop); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ImportHistory bulk-loads historical points for a product, skipping any
// (asin, timestamp) pair already present. Returns the number of new rows.
func (s *SQLiteStore) ImportHistory(ctx context.Context, asin string, observations []models.PriceObservation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO price_history (asin, price, currency, marketplace, source, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare import: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, obs := range observations {
		res, err := stmt.ExecContext(ctx,
			asin, obs.Price, obs.Currency, obs.Marketplace, obs.Source, obs.Timestamp.Unix())
		if err != nil {
			return inserted, fmt.Errorf("failed to import observation: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

// History returns a product's observations inside the day window, oldest first
func (s *SQLiteStore) History(ctx context.Context, asin string, days int) ([]models.PriceObservation, error) {
	query := `
		SELECT id, asin, price, currency, marketplace, source, timestamp
		FROM price_history
		WHERE asin = ? AND timestamp >= ?
		ORDER BY timestamp ASC`

	rows, err := s.db.QueryContext(ctx, query, asin, windowCutoff(days).Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []models.PriceObservation
	for rows.Next() {
		var obs models.PriceObservation
		var ts int64
		if err := rows.Scan(&obs.ID, &obs.ASIN, &obs.Price, &obs.Currency, &obs.Marketplace, &obs.Source, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		obs.Timestamp = time.Unix(ts, 0)
		history = append(history, obs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return history, nil
}

// LatestObservation returns the most recent price point for a product
func (s *SQLiteStore) LatestObservation(ctx context.Context, asin string) (*models.PriceObservation, error) {
	query := `
		SELECT id, asin, price, currency, marketplace, source, timestamp
		FROM price_history
		WHERE asin = ?
		ORDER BY timestamp DESC
		LIMIT 1`

	var obs models.PriceObservation
	var ts int64
	err := s.db.QueryRowContext(ctx, query, asin).Scan(
		&obs.ID, &obs.ASIN, &obs.Price, &obs.Currency, &obs.Marketplace, &obs.Source, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest observation: %w", err)
	}
	obs.Timestamp = time.Unix(ts, 0)

	return &obs, nil
}

// WindowStats aggregates min, max, average and count over the day window.
// A window with no observations returns a zero-count aggregate, not an error.
func (s *SQLiteStore) WindowStats(ctx context.Context, asin string, days int) (*PriceWindow, error) {
	query := `
		SELECT MIN(price), MAX(price), AVG(price), COUNT(*)
		FROM price_history
		WHERE asin = ? AND timestamp >= ?`

	var min, max, avg sql.NullFloat64
	var count int
	err := s.db.QueryRowContext(ctx, query, asin, windowCutoff(days).Unix()).Scan(&min, &max, &avg, &count)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate window: %w", err)
	}

	return &PriceWindow{
		Min:   min.Float64,
		Max:   max.Float64,
		Avg:   avg.Float64,
		Count: count,
	}, nil
}

// CountObservations returns the total number of stored price points
func (s *SQLiteStore) CountObservations(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_history`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return count, nil
}

// PruneObservations deletes price points older than the retention window and
// returns how many rows were removed
func (s *SQLiteStore) PruneObservations(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM price_history WHERE timestamp < ?`, windowCutoff(olderThanDays).Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune observations: %w", err)
	}

	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read prune result: %w", err)
	}

	return pruned, nil
}

// PendingEvents retrieves outbox events ready for publishing, oldest first
func (s *SQLiteStore) PendingEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `
		SELECT id, asin, event_type, payload, target_stream, status, retry_count,
			error_message, created_at, processed_at, next_retry_at
		FROM outbox_events
		WHERE status IN (?, ?) AND next_retry_at <= ?
		ORDER BY created_at ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query,
		OutboxStatusPending, OutboxStatusFailed, time.Now().Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	defer rows.Close()

	var pending []*OutboxEvent
	for rows.Next() {
		event := &OutboxEvent{}
		var id, payload string
		var errMsg sql.NullString
		var createdAt int64
		var processedAt, nextRetryAt sql.NullInt64
		err := rows.Scan(&id, &event.ASIN, &event.EventType, &payload, &event.TargetStream,
			&event.Status, &event.RetryCount, &errMsg, &createdAt, &processedAt, &nextRetryAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event id: %w", err)
		}
		event.Payload = []byte(payload)
		if errMsg.Valid {
			event.ErrorMessage = &errMsg.String
		}
		event.CreatedAt = time.Unix(createdAt, 0)
		event.ProcessedAt = timeFromUnix(processedAt)
		event.NextRetryAt = timeFromUnix(nextRetryAt)

		pending = append(pending, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return pending, nil
}

// MarkEventProcessed marks an outbox event as successfully published
func (s *SQLiteStore) MarkEventProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, processed_at = ? WHERE id = ?`,
		OutboxStatusProcessed, time.Now().Unix(), id.String())
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// MarkEventFailed bumps the retry count, schedules the next attempt and moves
// the event to dead letter once retries are exhausted
func (s *SQLiteStore) MarkEventFailed(ctx context.Context, id uuid.UUID, processErr error) error {
	var retryCount int
	err := s.db.QueryRowContext(ctx,
		`SELECT retry_count FROM outbox_events WHERE id = ?`, id.String()).Scan(&retryCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("event not found: %s", id)
		}
		return fmt.Errorf("failed to get retry count: %w", err)
	}

	retryCount++
	status, nextRetryAt := nextAttempt(retryCount)

	_, err = s.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, retry_count = ?, error_message = ?, next_retry_at = ? WHERE id = ?`,
		status, retryCount, processErr.Error(), nextRetryAt.Unix(), id.String())
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}

	return nil
}

// OutboxBacklog counts events still waiting to publish and events in dead letter
func (s *SQLiteStore) OutboxBacklog(ctx context.Context) (*OutboxCounts, error) {
	counts := &OutboxCounts{}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE status IN (?, ?)`,
		OutboxStatusPending, OutboxStatusFailed).Scan(&counts.Pending)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending events: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE status = ?`,
		OutboxStatusDeadLetter).Scan(&counts.DeadLetter)
	if err != nil {
		return nil, fmt.Errorf("failed to count dead letter events: %w", err)
	}

	return counts, nil
}

// InsertJobRun stores a new job run in pending state
func (s *SQLiteStore) InsertJobRun(ctx context.Context, run *models.JobRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_runs (id, type, status, processed, succeeded, failed, created_at, started_at, finished_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Type, run.Status, run.Processed, run.Succeeded, run.Failed,
		run.CreatedAt.Unix(), unixOrNil(run.StartedAt), unixOrNil(run.FinishedAt), run.Error)
	if err != nil {
		return fmt.Errorf("failed to insert job run: %w", err)
	}
	return nil
}

// UpdateJobRun persists status and counter changes for a job run
func (s *SQLiteStore) UpdateJobRun(ctx context.Context, run *models.JobRun) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_runs SET status = ?, processed = ?, succeeded = ?, failed = ?, started_at = ?, finished_at = ?, error = ?
		 WHERE id = ?`,
		run.Status, run.Processed, run.Succeeded, run.Failed,
		unixOrNil(run.StartedAt), unixOrNil(run.FinishedAt), run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update job run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job run not found: %s", run.ID)
	}

	return nil
}

// GetJobRun loads a job run by id
func (s *SQLiteStore) GetJobRun(ctx context.Context, id string) (*models.JobRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, status, processed, succeeded, failed, created_at, started_at, finished_at, error
		 FROM job_runs WHERE id = ?`, id)

	run, err := scanJobRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job run: %w", err)
	}

	return run, nil
}

// NextPendingJobRun returns the oldest job run still waiting for the worker
func (s *SQLiteStore) NextPendingJobRun(ctx context.Context) (*models.JobRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, status, processed, succeeded, failed, created_at, started_at, finished_at, error
		 FROM job_runs WHERE status = ? ORDER BY created_at ASC LIMIT 1`,
		models.JobStatusPending)

	run, err := scanJobRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pending job run: %w", err)
	}

	return run, nil
}

// Ping verifies the database file is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryProducts(ctx context.Context, query string, args ...interface{}) ([]models.TrackedProduct, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.TrackedProduct
	for rows.Next() {
		var p models.TrackedProduct
		var firstSeen, lastUpdated int64
		if err := rows.Scan(&p.ASIN, &p.Title, &p.Category, &p.Marketplace, &p.Currency, &firstSeen, &lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.FirstSeenAt = time.Unix(firstSeen, 0)
		p.LastUpdatedAt = time.Unix(lastUpdated, 0)
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

// insertOutboxTx writes an outbox row inside the caller's transaction
func insertOutboxTx(ctx context.Context, tx *sql.Tx, event *OutboxEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_events (id, asin, event_type, payload, target_stream, status, retry_count, created_at, next_retry_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID.String(), event.ASIN, event.EventType, string(event.Payload), event.TargetStream,
		event.Status, event.RetryCount, event.CreatedAt.Unix(), event.NextRetryAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*models.TrackedProduct, error) {
	var p models.TrackedProduct
	var firstSeen, lastUpdated int64
	if err := row.Scan(&p.ASIN, &p.Title, &p.Category, &p.Marketplace, &p.Currency, &firstSeen, &lastUpdated); err != nil {
		return nil, err
	}
	p.FirstSeenAt = time.Unix(firstSeen, 0)
	p.LastUpdatedAt = time.Unix(lastUpdated, 0)
	return &p, nil
}

func scanJobRun(row rowScanner) (*models.JobRun, error) {
	var run models.JobRun
	var createdAt int64
	var startedAt, finishedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Type, &run.Status, &run.Processed, &run.Succeeded, &run.Failed,
		&createdAt, &startedAt, &finishedAt, &run.Error); err != nil {
		return nil, err
	}
	run.CreatedAt = time.Unix(createdAt, 0)
	run.StartedAt = timeFromUnix(startedAt)
	run.FinishedAt = timeFromUnix(finishedAt)
	return &run, nil
}

func unixOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeFromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
