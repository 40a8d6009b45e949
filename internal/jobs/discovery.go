package jobs

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/ghostprice/price-tracker/internal/category"
	"github.com/ghostprice/price-tracker/internal/models"
	"github.com/ghostprice/price-tracker/internal/pricesource"
	"github.com/ghostprice/price-tracker/internal/storage"
)

type listingSource struct {
	name string
	url  string
}

// discoverySources are the curated listing pages the crawl walks: best
// sellers for the top products, new releases for fresh ones, movers and
// shakers for whatever is trending. All on the Indian storefront.
var discoverySources = []listingSource{
	{"laptops_bestsellers", "https://www.amazon.in/gp/bestsellers/computers/1375424031"},
	{"smartphones_bestsellers", "https://www.amazon.in/gp/bestsellers/electronics/1389401031"},
	{"headphones_bestsellers", "https://www.amazon.in/gp/bestsellers/electronics/1388921031"},
	{"monitors_bestsellers", "https://www.amazon.in/gp/bestsellers/computers/1375390031"},
	{"tablets_bestsellers", "https://www.amazon.in/gp/bestsellers/electronics/1389432031"},
	{"smartwatches_bestsellers", "https://www.amazon.in/gp/bestsellers/electronics/9316867031"},
	{"cameras_bestsellers", "https://www.amazon.in/gp/bestsellers/electronics/1388977031"},
	{"gaming_bestsellers", "https://www.amazon.in/gp/bestsellers/videogames/4092042031"},

	{"laptops_new", "https://www.amazon.in/gp/new-releases/computers/1375424031"},
	{"smartphones_new", "https://www.amazon.in/gp/new-releases/electronics/1389401031"},
	{"headphones_new", "https://www.amazon.in/gp/new-releases/electronics/1388921031"},
	{"monitors_new", "https://www.amazon.in/gp/new-releases/computers/1375390031"},

	{"laptops_trending", "https://www.amazon.in/gp/movers-and-shakers/computers/1375424031"},
	{"smartphones_trending", "https://www.amazon.in/gp/movers-and-shakers/electronics/1389401031"},
	{"headphones_trending", "https://www.amazon.in/gp/movers-and-shakers/electronics/1388921031"},
}

// runDiscovery crawls the listing sources for ASINs the tracker has never
// seen, keeps the ones whose title reads as electronics and starts tracking
// them. Counters: Processed is new ASINs examined, Succeeded is products
// added, Failed is fetch errors; non-electronics are examined but neither.
func (m *Manager) runDiscovery(ctx context.Context, run *models.JobRun) error {
	known, err := m.loadKnownASINs(ctx)
	if err != nil {
		return err
	}

	maxPer := m.cfg.Jobs.DiscoveryMaxPer
	if maxPer <= 0 {
		maxPer = 20
	}
	maxTotal := m.cfg.Jobs.DiscoveryMaxTotal
	if maxTotal <= 0 {
		maxTotal = 500
	}

	m.logger.Info("discovery started",
		"known_products", len(known),
		"sources", len(discoverySources),
		"max_per_source", maxPer,
		"max_total", maxTotal)

	for _, source := range discoverySources {
		if run.Processed >= maxTotal {
			m.logger.Info("discovery cap reached", "max_total", maxTotal)
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := m.listingLimiter.Wait(ctx); err != nil {
			return err
		}

		asins, err := m.scraper.FetchListing(ctx, source.url, maxPer)
		if err != nil {
			m.listingLimiter.RecordError()
			m.logger.Warn("listing fetch failed", "source", source.name, "error", err)
			continue
		}
		m.listingLimiter.RecordSuccess()

		fresh := 0
		for _, asin := range asins {
			if run.Processed >= maxTotal {
				break
			}
			if known[asin] || !models.IsValidASIN(asin) {
				continue
			}
			known[asin] = true
			run.Processed++
			fresh++

			added, err := m.examineCandidate(ctx, asin, source)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				run.Failed++
				m.logger.Warn("candidate examination failed",
					"asin", asin,
					"source", source.name,
					"error", err)
			} else if added {
				run.Succeeded++
			}

			if run.Processed%10 == 0 {
				m.checkpoint(ctx, run)
				if err := m.cooldown(ctx); err != nil {
					return err
				}
			}
		}

		m.logger.Info("listing source done",
			"source", source.name,
			"found", len(asins),
			"new", fresh)
	}

	m.logger.Info("discovery finished",
		"examined", run.Processed,
		"added", run.Succeeded,
		"failed", run.Failed)
	return nil
}

// examineCandidate fetches the product page, gates it by category and starts
// tracking it. Returns false with no error for products that are simply not
// electronics or have no usable page.
func (m *Manager) examineCandidate(ctx context.Context, asin string, source listingSource) (bool, error) {
	page, err := m.scraper.FetchPage(ctx, asin, m.cfg.Tracker.Marketplace)
	if err != nil {
		if errors.Is(err, pricesource.ErrNoData) {
			m.logger.Debug("candidate has no price", "asin", asin)
			return false, nil
		}
		return false, err
	}
	if page.Title == "" {
		return false, nil
	}

	categoryKey, ok := category.Detect(page.Title)
	if !ok {
		m.logger.Debug("skipping non-electronics product",
			"asin", asin,
			"title", truncate(page.Title, 40))
		return false, nil
	}

	product := models.NewTrackedProduct(asin, page.Title)
	product.Category = categoryKey
	product.Marketplace = m.cfg.Tracker.Marketplace
	product.Currency = m.cfg.Tracker.Currency

	if err := m.store.UpsertProduct(ctx, product); err != nil {
		return false, err
	}

	if page.Price > 0 {
		obs := models.NewObservation(asin, page.Price, models.SourceScraper)
		obs.Currency = product.Currency
		obs.Marketplace = product.Marketplace
		if err := m.store.RecordObservation(ctx, obs); err != nil {
			m.logger.Warn("failed to record first observation", "asin", asin, "error", err)
		}
	}

	if m.seeds != nil {
		candidate := &storage.Candidate{
			ASIN:        asin,
			Title:       page.Title,
			Category:    categoryKey,
			Marketplace: product.Marketplace,
			Source:      source.name,
			Status:      storage.StatusImported,
		}
		if err := m.seeds.Add(candidate); err != nil {
			m.logger.Warn("failed to export candidate", "asin", asin, "error", err)
		}
	}

	m.logger.Info("product discovered",
		"asin", asin,
		"category", categoryKey,
		"source", source.name,
		"title", truncate(page.Title, 50))
	return true, nil
}

// loadKnownASINs seeds the duplicate filter with everything already tracked
// plus everything in the seed file.
func (m *Manager) loadKnownASINs(ctx context.Context) (map[string]bool, error) {
	products, err := m.store.ListProducts(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(products))
	for _, p := range products {
		known[p.ASIN] = true
	}

	if m.seeds != nil {
		for asin := range m.seeds.Known() {
			known[asin] = true
		}
	}

	return known, nil
}

// cooldown pauses the crawl after a burst of product page fetches.
func (m *Manager) cooldown(ctx context.Context) error {
	if m.cooldownMax <= 0 {
		return nil
	}

	pause := m.cooldownMin
	if m.cooldownMax > m.cooldownMin {
		pause += time.Duration(rand.Int63n(int64(m.cooldownMax - m.cooldownMin)))
	}

	m.logger.Debug("cooling down", "pause", pause)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pause):
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
