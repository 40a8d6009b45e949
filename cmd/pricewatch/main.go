// Command pricewatch runs one price refresh sweep over every tracked product
// and exits. Meant to be driven by an OS timer once a day.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghostprice/price-tracker/internal/config"
	"github.com/ghostprice/price-tracker/internal/database"
	"github.com/ghostprice/price-tracker/internal/fallback"
	"github.com/ghostprice/price-tracker/internal/jobs"
	"github.com/ghostprice/price-tracker/internal/models"
	"github.com/ghostprice/price-tracker/internal/pricesource"
)

func main() {
	sleep := flag.Duration("sleep", 0, "override the pause between products")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *sleep > 0 {
		cfg.Jobs.RefreshSleep = *sleep
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	store, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	scraperSrc := pricesource.NewScraperSource(cfg.Scraper.MinDelay, cfg.Scraper.MaxDelay, cfg.Scraper.Timeout, logger)
	chain := fallback.NewChain(logger, cfg.Tracker.SyntheticDays, scraperSrc)

	manager := jobs.NewManager(store, scraperSrc, chain, nil, cfg, logger)

	start := time.Now()
	run, err := manager.RunNow(ctx, models.JobTypeRefresh)
	if err != nil {
		logger.Error("refresh sweep failed", "error", err)
		os.Exit(1)
	}

	logger.Info("refresh sweep finished",
		"processed", run.Processed,
		"succeeded", run.Succeeded,
		"failed", run.Failed,
		"duration", time.Since(start).Round(time.Second))
}
