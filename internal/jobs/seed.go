package jobs

import (
	"context"
	"fmt"

	"github.com/ghostprice/price-tracker/internal/category"
	"github.com/ghostprice/price-tracker/internal/models"
	"github.com/ghostprice/price-tracker/internal/storage"
)

// RunSeedImport walks the pending seed candidates, resolves a starting price
// history for each through the fallback chain and begins tracking them.
// Candidates keep their outcome in the seed file, so a re-run only touches
// what previously failed or was newly added.
func (m *Manager) RunSeedImport(ctx context.Context) (imported, failed int, err error) {
	if m.seeds == nil {
		return 0, 0, fmt.Errorf("no seed store configured")
	}

	pending := m.seeds.Pending()
	if len(pending) == 0 {
		m.logger.Info("no pending seed candidates")
		return 0, 0, nil
	}

	m.logger.Info("seed import started", "candidates", len(pending))

	for _, candidate := range pending {
		if err := ctx.Err(); err != nil {
			return imported, failed, err
		}

		if !models.IsValidASIN(candidate.ASIN) {
			failed++
			m.markSeed(candidate.ASIN, storage.StatusSkipped, "invalid asin")
			continue
		}

		if err := m.importCandidate(ctx, candidate); err != nil {
			failed++
			m.markSeed(candidate.ASIN, storage.StatusFailed, err.Error())
			m.logger.Warn("seed import failed", "asin", candidate.ASIN, "error", err)
			continue
		}

		imported++
		m.markSeed(candidate.ASIN, storage.StatusImported, "")
	}

	m.logger.Info("seed import finished", "imported", imported, "failed", failed)
	return imported, failed, nil
}

func (m *Manager) importCandidate(ctx context.Context, candidate *storage.Candidate) error {
	marketplace := candidate.Marketplace
	if marketplace == "" {
		marketplace = m.cfg.Tracker.Marketplace
	}

	result, err := m.resolver.Resolve(ctx, candidate.ASIN, marketplace, 0)
	if err != nil {
		return err
	}

	title := result.Title
	if title == "" {
		title = candidate.Title
	}
	if title == "" {
		return fmt.Errorf("no title for candidate")
	}

	// The seed file's category wins; the title detector fills the gap for
	// hand-added entries.
	categoryKey := candidate.Category
	if categoryKey == "" {
		categoryKey, _ = category.Detect(title)
	}

	product := models.NewTrackedProduct(candidate.ASIN, title)
	product.Category = categoryKey
	product.Marketplace = marketplace
	product.Currency = m.cfg.Tracker.Currency

	if err := m.store.UpsertProduct(ctx, product); err != nil {
		return err
	}

	observations := result.Observations(marketplace, product.Currency)
	inserted, err := m.store.ImportHistory(ctx, candidate.ASIN, observations)
	if err != nil {
		return err
	}

	m.logger.Info("seed imported",
		"asin", candidate.ASIN,
		"source", result.Source,
		"points", inserted,
		"category", categoryKey)
	return nil
}

func (m *Manager) markSeed(asin, status, message string) {
	if err := m.seeds.UpdateStatus(asin, status, message); err != nil {
		m.logger.Warn("failed to update seed status", "asin", asin, "error", err)
	}
}
