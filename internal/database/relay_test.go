package database

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ghostprice/price-tracker/internal/events"
)

// MockRedisClient mocks the Redis client for testing
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	called := m.Called(ctx, args)
	return called.Get(0).(*redis.StringCmd)
}

func (m *MockRedisClient) Close() error {
	return m.Called().Error(0)
}

// MockOutboxRepo mocks the outbox store for testing
type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) PendingEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	called := m.Called(ctx, limit)
	if called.Get(0) == nil {
		return nil, called.Error(1)
	}
	return called.Get(0).([]*OutboxEvent), called.Error(1)
}

func (m *MockOutboxRepo) MarkEventProcessed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepo) MarkEventFailed(ctx context.Context, id uuid.UUID, err error) error {
	return m.Called(ctx, id, err).Error(0)
}

func newTestRelay(redisClient RedisClient, outbox OutboxRepo) *Relay {
	return &Relay{
		redis:     redisClient,
		outbox:    outbox,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		interval:  time.Second,
		batchSize: 10,
	}
}

func relayTestEvent(t *testing.T) *OutboxEvent {
	t.Helper()

	payload, err := json.Marshal(map[string]interface{}{
		"asin":  "B09Y2MYL5C",
		"price": 24990.0,
	})
	require.NoError(t, err)

	now := time.Now()
	return &OutboxEvent{
		ID:           uuid.New(),
		ASIN:         "B09Y2MYL5C",
		EventType:    events.TypeObservationRecorded,
		Payload:      payload,
		TargetStream: events.StreamPriceEvents,
		Status:       OutboxStatusPending,
		CreatedAt:    now,
		NextRetryAt:  &now,
	}
}

func TestProcessEventsPublishesAndMarksProcessed(t *testing.T) {
	mockRedis := new(MockRedisClient)
	mockOutbox := new(MockOutboxRepo)
	relay := newTestRelay(mockRedis, mockOutbox)

	event := relayTestEvent(t)
	ctx := context.Background()

	mockOutbox.On("PendingEvents", ctx, 10).Return([]*OutboxEvent{event}, nil)

	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("1-0")
	mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		return args.Stream == events.StreamPriceEvents &&
			args.Values.(map[string]interface{})["asin"] == "B09Y2MYL5C"
	})).Return(cmd)

	mockOutbox.On("MarkEventProcessed", ctx, event.ID).Return(nil)

	require.NoError(t, relay.processEvents(ctx))

	mockRedis.AssertExpectations(t)
	mockOutbox.AssertExpectations(t)
}

func TestProcessEventsMarksFailedOnPublishError(t *testing.T) {
	mockRedis := new(MockRedisClient)
	mockOutbox := new(MockOutboxRepo)
	relay := newTestRelay(mockRedis, mockOutbox)

	event := relayTestEvent(t)
	ctx := context.Background()

	mockOutbox.On("PendingEvents", ctx, 10).Return([]*OutboxEvent{event}, nil)

	cmd := redis.NewStringCmd(ctx)
	cmd.SetErr(errors.New("connection refused"))
	mockRedis.On("XAdd", ctx, mock.Anything).Return(cmd)

	mockOutbox.On("MarkEventFailed", ctx, event.ID, mock.Anything).Return(nil)

	// Per-event failures are logged, not returned
	require.NoError(t, relay.processEvents(ctx))

	mockOutbox.AssertExpectations(t)
	mockOutbox.AssertNotCalled(t, "MarkEventProcessed", mock.Anything, mock.Anything)
}

func TestProcessEventsEmptyOutbox(t *testing.T) {
	mockRedis := new(MockRedisClient)
	mockOutbox := new(MockOutboxRepo)
	relay := newTestRelay(mockRedis, mockOutbox)

	ctx := context.Background()
	mockOutbox.On("PendingEvents", ctx, 10).Return([]*OutboxEvent{}, nil)

	require.NoError(t, relay.processEvents(ctx))

	mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
}

func TestProcessEventsOutboxError(t *testing.T) {
	mockRedis := new(MockRedisClient)
	mockOutbox := new(MockOutboxRepo)
	relay := newTestRelay(mockRedis, mockOutbox)

	ctx := context.Background()
	mockOutbox.On("PendingEvents", ctx, 10).Return(nil, errors.New("database locked"))

	err := relay.processEvents(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get pending events")
}

func TestPublishToRedisEnvelope(t *testing.T) {
	mockRedis := new(MockRedisClient)
	relay := newTestRelay(mockRedis, new(MockOutboxRepo))

	event := relayTestEvent(t)
	ctx := context.Background()

	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("1-0")
	mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		values := args.Values.(map[string]interface{})

		var envelope map[string]interface{}
		if err := json.Unmarshal([]byte(values["data"].(string)), &envelope); err != nil {
			return false
		}
		metadata := envelope["metadata"].(map[string]interface{})

		return metadata["source"] == "ghostprice" &&
			envelope["type"] == events.TypeObservationRecorded &&
			envelope["asin"] == "B09Y2MYL5C"
	})).Return(cmd)

	require.NoError(t, relay.publishToRedis(ctx, event))
	mockRedis.AssertExpectations(t)
}

func TestPublishToRedisRejectsMalformedPayload(t *testing.T) {
	mockRedis := new(MockRedisClient)
	relay := newTestRelay(mockRedis, new(MockOutboxRepo))

	event := relayTestEvent(t)
	event.Payload = []byte("not json")

	err := relay.publishToRedis(context.Background(), event)
	require.Error(t, err)
	mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
}
