package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/ghostprice/price-tracker/internal/api"
	"github.com/ghostprice/price-tracker/internal/browser"
	"github.com/ghostprice/price-tracker/internal/config"
	"github.com/ghostprice/price-tracker/internal/database"
	"github.com/ghostprice/price-tracker/internal/fallback"
	"github.com/ghostprice/price-tracker/internal/jobs"
	"github.com/ghostprice/price-tracker/internal/pricesource"
	"github.com/ghostprice/price-tracker/internal/queue"
	"github.com/ghostprice/price-tracker/internal/storage"
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

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	store, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Scraper, with the headless browser escalation when enabled
	scraperSrc := pricesource.NewScraperSource(cfg.Scraper.MinDelay, cfg.Scraper.MaxDelay, cfg.Scraper.Timeout, logger)
	if cfg.Scraper.UseBrowser {
		b, err := browser.New(browser.DefaultOptions())
		if err != nil {
			logger.Warn("browser unavailable, scraping with plain HTTP only", "error", err)
		} else {
			defer b.Close()
			scraperSrc.WithBrowser(b)
			logger.Info("headless browser escalation enabled")
		}
	}

	// Price history fallback chain, best source first
	chain := fallback.NewChain(logger, cfg.Tracker.SyntheticDays,
		pricesource.NewKeepaSource(cfg.Keepa.APIKey, cfg.Tracker.WindowDays, logger),
		pricesource.NewApifySource(cfg.Apify.APIToken, cfg.Apify.ActorID, logger),
		pricesource.NewPAAPISource(cfg.PAAPI.CredentialID, cfg.PAAPI.CredentialSecret, cfg.PAAPI.PartnerTag, cfg.PAAPI.Marketplace, logger),
		scraperSrc,
	)

	// Outbox relay, only when Redis is configured
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}

		relay := database.NewRelay(store, redisClient, logger, database.RelayConfig{
			PollInterval: 5 * time.Second,
			BatchSize:    100,
		})
		go func() {
			if err := relay.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("relay stopped with error", "error", err)
			}
		}()
	}

	// Background jobs
	refreshQueue := queue.NewRefreshQueue()
	defer refreshQueue.Close()

	manager := jobs.NewManager(store, scraperSrc, chain, refreshQueue, cfg, logger)
	if cfg.Jobs.SeedFile != "" {
		seeds, err := storage.NewSeedStore(cfg.Jobs.SeedFile)
		if err != nil {
			logger.Error("failed to open seed store", "path", cfg.Jobs.SeedFile, "error", err)
			os.Exit(1)
		}
		manager.WithSeedStore(seeds)
	}
	go manager.StartWorker(ctx)

	// Optional in-process schedule; OS timers running cmd/pricewatch and
	// cmd/discover are the expected deployment.
	if cfg.Jobs.RefreshSchedule != "" || cfg.Jobs.DiscoverySchedule != "" {
		scheduler := jobs.NewScheduler(manager, logger)
		if err := scheduler.Register(cfg.Jobs); err != nil {
			logger.Error("failed to register schedules", "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// API handlers
	handlers := api.NewHandlers(store, scraperSrc, chain, manager, cfg, logger)

	// Setup Chi router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS stays wide open: the extension calls from chrome-extension:// and
	// moz-extension:// origins that cannot be pinned down at build time.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	handlers.Register(r)

	// Start server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
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
