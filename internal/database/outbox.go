package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghostprice/price-tracker/internal/events"
)

const (
	// OutboxStatusPending indicates the event is waiting to be published
	OutboxStatusPending = "pending"
	// OutboxStatusProcessed indicates the event was successfully published
	OutboxStatusProcessed = "processed"
	// OutboxStatusFailed indicates publishing failed (will be retried)
	OutboxStatusFailed = "failed"
	// OutboxStatusDeadLetter indicates the event failed too many times
	OutboxStatusDeadLetter = "dead_letter"

	// MaxRetryCount is the maximum number of retries before moving to dead letter
	MaxRetryCount = 5
)

// OutboxEvent represents a price event in the transactional outbox. Events are
// written in the same transaction as the observation they describe, then
// forwarded to Redis by the relay.
type OutboxEvent struct {
	ID           uuid.UUID       `db:"id"`
	ASIN         string          `db:"asin"`
	EventType    string          `db:"event_type"`
	Payload      json.RawMessage `db:"payload"`
	TargetStream string          `db:"target_stream"`
	Status       string          `db:"status"`
	RetryCount   int             `db:"retry_count"`
	ErrorMessage *string         `db:"error_message"`
	CreatedAt    time.Time       `db:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at"`
	NextRetryAt  *time.Time      `db:"next_retry_at"`
}

// newOutboxEvent wraps a price payload into a pending outbox row
func newOutboxEvent(payload events.PricePayload) (*OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	id, err := uuid.Parse(payload.EventID)
	if err != nil {
		id = uuid.New()
	}

	now := time.Now()
	return &OutboxEvent{
		ID:           id,
		ASIN:         payload.ASIN,
		EventType:    payload.EventType,
		Payload:      body,
		TargetStream: events.StreamPriceEvents,
		Status:       OutboxStatusPending,
		CreatedAt:    now,
		NextRetryAt:  &now,
	}, nil
}

// nextAttempt decides the follow-up status and retry time after a publish
// failure. Once MaxRetryCount is reached the event moves to dead letter.
func nextAttempt(retryCount int) (status string, nextRetryAt time.Time) {
	status = OutboxStatusFailed
	if retryCount >= MaxRetryCount {
		status = OutboxStatusDeadLetter
	}
	return status, calculateNextRetryTime(retryCount)
}

// calculateNextRetryTime calculates exponential backoff for retries
func calculateNextRetryTime(retryCount int) time.Time {
	// Exponential backoff: 1s, 2s, 4s, 8s, 16s...
	backoffSeconds := 1 << retryCount
	if backoffSeconds > 300 { // Cap at 5 minutes
		backoffSeconds = 300
	}
	return time.Now().Add(time.Duration(backoffSeconds) * time.Second)
}
