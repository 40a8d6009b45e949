package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/ghostprice/price-tracker/internal/database"
	"github.com/ghostprice/price-tracker/internal/models"
)

// runRefresh walks the catalogue stalest-first and records one fresh
// observation per product. Per-product failures are counted and skipped; the
// sweep itself only fails when the catalogue cannot be listed or the context
// ends.
func (m *Manager) runRefresh(ctx context.Context, run *models.JobRun) error {
	products, err := m.store.ListProductsForRefresh(ctx, 0)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		m.logger.Info("no tracked products to refresh")
		return nil
	}

	m.logger.Info("refresh sweep started", "products", len(products))

	for i := range products {
		if err := ctx.Err(); err != nil {
			return err
		}

		product := &products[i]
		run.Processed++

		if err := m.refreshProduct(ctx, product); err != nil {
			run.Failed++
			m.logger.Warn("refresh failed",
				"asin", product.ASIN,
				"error", err)
		} else {
			run.Succeeded++
		}

		if run.Processed%10 == 0 {
			m.checkpoint(ctx, run)
		}

		if i < len(products)-1 && m.cfg.Jobs.RefreshSleep > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.cfg.Jobs.RefreshSleep):
			}
		}
	}

	if m.cfg.Jobs.RetentionDays > 0 {
		pruned, err := m.store.PruneObservations(ctx, m.cfg.Jobs.RetentionDays)
		if err != nil {
			m.logger.Error("failed to prune old observations", "error", err)
		} else if pruned > 0 {
			m.logger.Info("pruned old observations",
				"rows", pruned,
				"retention_days", m.cfg.Jobs.RetentionDays)
		}
	}

	m.logger.Info("refresh sweep finished",
		"processed", run.Processed,
		"succeeded", run.Succeeded,
		"failed", run.Failed)
	return nil
}

// refreshProduct scrapes the current price and appends it to the product's
// history. A changed listing title is picked up on the way.
func (m *Manager) refreshProduct(ctx context.Context, product *models.TrackedProduct) error {
	page, err := m.scraper.FetchPage(ctx, product.ASIN, product.Marketplace)
	if err != nil {
		return err
	}

	obs := models.NewObservation(product.ASIN, page.Price, models.SourceScraper)
	obs.Currency = product.Currency
	obs.Marketplace = product.Marketplace

	if err := m.store.RecordObservation(ctx, obs); err != nil {
		return err
	}

	if page.Title != "" && page.Title != product.Title {
		product.Title = page.Title
		if err := m.store.UpsertProduct(ctx, product); err != nil {
			m.logger.Warn("failed to update product title", "asin", product.ASIN, "error", err)
		}
	}

	return nil
}

// refreshOne serves a queued manual request. The tracked product's own
// marketplace wins over whatever the request carried.
func (m *Manager) refreshOne(ctx context.Context, asin, _ string) error {
	product, err := m.store.GetProduct(ctx, asin)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return errors.New("product is not tracked")
		}
		return err
	}

	return m.refreshProduct(ctx, product)
}
