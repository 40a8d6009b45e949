// Command dropwatch consumes the price-event stream and forwards qualifying
// price drops to a webhook. Events are read through a consumer group, so a
// restart resumes where the previous run stopped and nothing is lost while
// the watcher is down.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ghostprice/price-tracker/internal/config"
	"github.com/ghostprice/price-tracker/internal/database"
	"github.com/ghostprice/price-tracker/internal/events"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	// The watcher is driven entirely by the stream; without Redis there is
	// nothing to consume.
	if cfg.Redis.URL == "" {
		logger.Error("REDIS_URL is required to read the price-event stream")
		os.Exit(1)
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to redis")

	// Store access is read-only here, alerts carry the product title when the
	// ASIN is in the catalogue.
	store, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	consumer := &Consumer{
		redis:      rdb,
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		webhookURL: cfg.Alerts.WebhookURL,
		minDrop:    cfg.Alerts.MinDropPercent,
		logger:     logger.With("component", "dropwatch"),
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down")
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
}

// Consumer reads drop events off the stream and turns them into alerts.
type Consumer struct {
	redis      *redis.Client
	store      database.Store
	httpClient *http.Client
	webhookURL string
	minDrop    float64
	logger     *slog.Logger
}

// DropAlert is the JSON body delivered to the webhook.
type DropAlert struct {
	ASIN          string    `json:"asin"`
	Title         string    `json:"title,omitempty"`
	Price         float64   `json:"price"`
	PreviousPrice float64   `json:"previous_price"`
	DropPercent   float64   `json:"drop_percent"`
	Currency      string    `json:"currency"`
	Marketplace   string    `json:"marketplace"`
	Source        string    `json:"source"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Run consumes the stream until the context is cancelled. Messages are only
// acknowledged after successful processing, so a crash mid-alert redelivers.
func (c *Consumer) Run(ctx context.Context) error {
	consumerGroup := "dropwatch-group"
	consumerName := "dropwatch-1"

	// Create consumer group, ignore the error when it already exists
	c.redis.XGroupCreateMkStream(ctx, events.StreamPriceEvents, consumerGroup, "0").Err()

	c.logger.Info("starting consumer",
		"stream", events.StreamPriceEvents,
		"group", consumerGroup,
		"min_drop_percent", c.minDrop,
		"webhook_configured", c.webhookURL != "")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    consumerGroup,
				Consumer: consumerName,
				Streams:  []string{events.StreamPriceEvents, ">"},
				Count:    10,
				Block:    5 * time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					continue // No new messages
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("failed to read from stream", "error", err)
				time.Sleep(1 * time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					if err := c.processMessage(ctx, message); err != nil {
						c.logger.Error("failed to process message", "id", message.ID, "error", err)
						continue
					}

					if err := c.redis.XAck(ctx, events.StreamPriceEvents, consumerGroup, message.ID).Err(); err != nil {
						c.logger.Error("failed to acknowledge message", "id", message.ID, "error", err)
					}
				}
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	eventType, ok := msg.Values["event_type"].(string)
	if !ok || eventType != events.TypeDropDetected {
		return nil // Observation events and anything unknown pass straight through
	}

	dataStr, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("missing data field in message")
	}

	var envelope struct {
		Payload events.PricePayload `json:"payload"`
	}
	if err := json.Unmarshal([]byte(dataStr), &envelope); err != nil {
		return fmt.Errorf("failed to parse event data: %w", err)
	}

	drop := envelope.Payload
	if drop.ASIN == "" {
		return fmt.Errorf("missing ASIN in drop event")
	}

	percent := drop.DropPercent()
	if percent < c.minDrop {
		c.logger.Debug("drop below alert threshold",
			"asin", drop.ASIN,
			"drop_percent", percent)
		return nil
	}

	// An ASIN that fell out of the catalogue still alerts, just without a title.
	title := ""
	if product, err := c.store.GetProduct(ctx, drop.ASIN); err == nil {
		title = product.Title
	}

	alert := DropAlert{
		ASIN:          drop.ASIN,
		Title:         title,
		Price:         drop.Price,
		PreviousPrice: drop.PreviousPrice,
		DropPercent:   math.Round(percent*100) / 100,
		Currency:      drop.Currency,
		Marketplace:   drop.Marketplace,
		Source:        drop.Source,
		OccurredAt:    drop.OccurredAt,
	}

	c.logger.Info("price drop detected",
		"asin", alert.ASIN,
		"title", alert.Title,
		"price", alert.Price,
		"previous_price", alert.PreviousPrice,
		"drop_percent", alert.DropPercent)

	if c.webhookURL == "" {
		return nil
	}

	if err := c.deliverAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to deliver alert: %w", err)
	}

	return nil
}

func (c *Consumer) deliverAlert(ctx context.Context, alert DropAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	// Retry logic
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				c.logger.Info("alert delivered", "asin", alert.ASIN, "status", resp.StatusCode)
				return nil
			}
			lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		if attempt < 2 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}

	return lastErr
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
