// Package fallback decides where price history comes from. Adapters are tried
// in a fixed order of data quality (Keepa, Apify, PA-API, scraper); the first
// one that answers wins, and when none do, a synthetic history keeps the
// product usable until real observations accumulate.
package fallback

import (
	"context"
	"log/slog"

	"github.com/ghostprice/price-tracker/internal/pricesource"
)

// Chain tries sources in order until one produces a usable result
type Chain struct {
	sources       []pricesource.Source
	syntheticDays int
	logger        *slog.Logger
}

func NewChain(logger *slog.Logger, syntheticDays int, sources ...pricesource.Source) *Chain {
	if syntheticDays <= 0 {
		syntheticDays = 30
	}
	return &Chain{
		sources:       sources,
		syntheticDays: syntheticDays,
		logger:        logger.With("component", "fallback"),
	}
}

// Resolve produces a best-effort price history for the product. Every source
// error, including not-configured and blocked, means "try the next one". If
// all sources fail and the caller knows the current price, a synthetic
// history is generated around it; with no current price either, ErrNoData.
func (c *Chain) Resolve(ctx context.Context, asin, marketplace string, currentPrice float64) (*pricesource.Result, error) {
	for _, source := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := source.FetchHistory(ctx, asin, marketplace)
		if err != nil {
			c.logger.Debug("source failed, trying next",
				"asin", asin,
				"source", source.Name(),
				"error", err)
			continue
		}
		if result == nil || (len(result.Points) == 0 && result.CurrentPrice <= 0) {
			continue
		}

		c.logger.Info("price history resolved",
			"asin", asin,
			"source", source.Name(),
			"points", len(result.Points))
		return result, nil
	}

	if currentPrice > 0 {
		c.logger.Info("all sources failed, synthesizing history",
			"asin", asin,
			"current_price", currentPrice,
			"days", c.syntheticDays)
		return Synthesize(asin, currentPrice, c.syntheticDays), nil
	}

	return nil, pricesource.ErrNoData
}
