package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostprice/price-tracker/internal/events"
	"github.com/ghostprice/price-tracker/internal/models"
)

func queueOneEvent(t *testing.T, store *SQLiteStore) *OutboxEvent {
	t.Helper()

	obs := models.NewObservation("B0EVENT001", 199, models.SourceExtension)
	require.NoError(t, store.RecordObservation(context.Background(), obs))

	pending, err := store.PendingEvents(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	return pending[0]
}

func TestNewOutboxEventDefaults(t *testing.T) {
	obs := models.NewObservation("B0EVENT001", 199, models.SourceExtension)
	event, err := newOutboxEvent(events.NewObservationRecorded(obs))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, OutboxStatusPending, event.Status)
	assert.Equal(t, events.StreamPriceEvents, event.TargetStream)
	assert.Equal(t, "B0EVENT001", event.ASIN)
	require.NotNil(t, event.NextRetryAt)
}

func TestMarkEventProcessed(t *testing.T) {
	store := newTestStore(t)
	event := queueOneEvent(t, store)

	require.NoError(t, store.MarkEventProcessed(context.Background(), event.ID))

	pending, err := store.PendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	backlog, err := store.OutboxBacklog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), backlog.Pending)
}

func TestMarkEventProcessedNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.MarkEventProcessed(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event not found")
}

func TestMarkEventFailedSchedulesRetry(t *testing.T) {
	store := newTestStore(t)
	event := queueOneEvent(t, store)

	require.NoError(t, store.MarkEventFailed(context.Background(), event.ID, errors.New("redis unavailable")))

	// Backoff pushes next_retry_at into the future, so the event is not
	// immediately eligible again
	pending, err := store.PendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	backlog, err := store.OutboxBacklog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), backlog.Pending)
	assert.Equal(t, int64(0), backlog.DeadLetter)
}

func TestMarkEventFailedMovesToDeadLetter(t *testing.T) {
	store := newTestStore(t)
	event := queueOneEvent(t, store)

	for i := 0; i < MaxRetryCount; i++ {
		require.NoError(t, store.MarkEventFailed(context.Background(), event.ID, errors.New("still failing")))
	}

	backlog, err := store.OutboxBacklog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), backlog.Pending)
	assert.Equal(t, int64(1), backlog.DeadLetter)
}

func TestNextAttempt(t *testing.T) {
	status, _ := nextAttempt(1)
	assert.Equal(t, OutboxStatusFailed, status)

	status, _ = nextAttempt(MaxRetryCount)
	assert.Equal(t, OutboxStatusDeadLetter, status)
}

func TestCalculateNextRetryTimeBackoff(t *testing.T) {
	second := calculateNextRetryTime(1)
	assert.WithinDuration(t, time.Now().Add(2*time.Second), second, 500*time.Millisecond)

	fourth := calculateNextRetryTime(4)
	assert.WithinDuration(t, time.Now().Add(16*time.Second), fourth, 500*time.Millisecond)

	// Large retry counts are capped at five minutes
	capped := calculateNextRetryTime(20)
	assert.WithinDuration(t, time.Now().Add(300*time.Second), capped, 500*time.Millisecond)
}
