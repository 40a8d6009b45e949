// Command discover crawls the marketplace listing pages for new electronics
// and adds them to tracking. Meant to be driven by an OS timer once a week.
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
	"github.com/ghostprice/price-tracker/internal/storage"
)

func main() {
	maxPer := flag.Int("max-per-source", 0, "override the per listing cap")
	maxTotal := flag.Int("max-total", 0, "override the total cap for the crawl")
	seedFile := flag.String("seed-file", "", "export discovered candidates to this JSON file")
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
	if *maxPer > 0 {
		cfg.Jobs.DiscoveryMaxPer = *maxPer
	}
	if *maxTotal > 0 {
		cfg.Jobs.DiscoveryMaxTotal = *maxTotal
	}
	if *seedFile != "" {
		cfg.Jobs.SeedFile = *seedFile
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
	if cfg.Jobs.SeedFile != "" {
		seeds, err := storage.NewSeedStore(cfg.Jobs.SeedFile)
		if err != nil {
			logger.Error("failed to open seed store", "path", cfg.Jobs.SeedFile, "error", err)
			os.Exit(1)
		}
		manager.WithSeedStore(seeds)
	}

	start := time.Now()
	run, err := manager.RunNow(ctx, models.JobTypeDiscovery)
	if err != nil {
		logger.Error("discovery crawl failed", "error", err)
		os.Exit(1)
	}

	logger.Info("discovery crawl finished",
		"examined", run.Processed,
		"added", run.Succeeded,
		"failed", run.Failed,
		"duration", time.Since(start).Round(time.Second))
}
