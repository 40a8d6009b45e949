// Command seed imports a curated JSON file of product candidates into the
// store, resolving a starting price history for each through the fallback
// chain. Candidates record their outcome in the file, so re-runs only touch
// new or previously failed entries.
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
	"github.com/ghostprice/price-tracker/internal/pricesource"
	"github.com/ghostprice/price-tracker/internal/storage"
)

func main() {
	file := flag.String("file", "seed_products.json", "seed candidate file")
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

	seeds, err := storage.NewSeedStore(*file)
	if err != nil {
		logger.Error("failed to open seed store", "path", *file, "error", err)
		os.Exit(1)
	}

	scraperSrc := pricesource.NewScraperSource(cfg.Scraper.MinDelay, cfg.Scraper.MaxDelay, cfg.Scraper.Timeout, logger)
	chain := fallback.NewChain(logger, cfg.Tracker.SyntheticDays,
		pricesource.NewKeepaSource(cfg.Keepa.APIKey, cfg.Tracker.WindowDays, logger),
		pricesource.NewApifySource(cfg.Apify.APIToken, cfg.Apify.ActorID, logger),
		pricesource.NewPAAPISource(cfg.PAAPI.CredentialID, cfg.PAAPI.CredentialSecret, cfg.PAAPI.PartnerTag, cfg.PAAPI.Marketplace, logger),
		scraperSrc,
	)

	manager := jobs.NewManager(store, scraperSrc, chain, nil, cfg, logger).WithSeedStore(seeds)

	start := time.Now()
	imported, failed, err := manager.RunSeedImport(ctx)
	if err != nil {
		logger.Error("seed import failed", "error", err)
		os.Exit(1)
	}

	logger.Info("seed import finished",
		"imported", imported,
		"failed", failed,
		"duration", time.Since(start).Round(time.Second))
}
