// Package api is the HTTP surface the browser extension talks to. Every
// endpoint answers JSON; the extension-facing routes deliberately answer 200
// with a success flag for "no data yet" situations so the content script can
// render a friendly state instead of treating them as failures.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghostprice/price-tracker/internal/category"
	"github.com/ghostprice/price-tracker/internal/config"
	"github.com/ghostprice/price-tracker/internal/database"
	"github.com/ghostprice/price-tracker/internal/jobs"
	"github.com/ghostprice/price-tracker/internal/models"
	"github.com/ghostprice/price-tracker/internal/parser"
	"github.com/ghostprice/price-tracker/internal/pricesource"
	"github.com/ghostprice/price-tracker/internal/pricestats"
)

// PageFetcher is the slice of the scraper the live price endpoint needs.
type PageFetcher interface {
	FetchPage(ctx context.Context, asin, marketplace string) (*parser.ProductPage, error)
}

// HistoryResolver fills in price history for products the store barely knows.
// Satisfied by the fallback chain.
type HistoryResolver interface {
	Resolve(ctx context.Context, asin, marketplace string, currentPrice float64) (*pricesource.Result, error)
}

type Handlers struct {
	store    database.Store
	scraper  PageFetcher
	resolver HistoryResolver
	jobs     *jobs.Manager
	cfg      *config.Config
	logger   *slog.Logger
}

func NewHandlers(store database.Store, scraper PageFetcher, resolver HistoryResolver, jobManager *jobs.Manager, cfg *config.Config, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:    store,
		scraper:  scraper,
		resolver: resolver,
		jobs:     jobManager,
		cfg:      cfg,
		logger:   logger.With("component", "api"),
	}
}

// PriceData is the compact window summary embedded in tracking responses
type PriceData struct {
	Current    float64 `json:"current"`
	Lowest30d  float64 `json:"lowest_30d"`
	Highest30d float64 `json:"highest_30d"`
	Avg30d     float64 `json:"avg_30d"`
	DataPoints int     `json:"data_points"`
}

// TrackResponse is returned when a product enters (or refreshes) tracking
type TrackResponse struct {
	Tracked         bool      `json:"tracked"`
	Category        string    `json:"category"`
	CategoryDisplay string    `json:"category_display"`
	Message         string    `json:"message"`
	PriceData       PriceData `json:"price_data"`
}

// TrackRejection is returned when the product is not in a tracked category
type TrackRejection struct {
	Tracked             bool     `json:"tracked"`
	Reason              string   `json:"reason"`
	Message             string   `json:"message"`
	SupportedCategories []string `json:"supported_categories"`
}

// TrackProduct records a price sighting reported by the extension. Products
// outside the tracked electronics categories are rejected with the list of
// categories that are supported; everything else is upserted and its current
// price recorded.
func (h *Handlers) TrackProduct(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	asin := q.Get("asin")
	if !models.IsValidASIN(asin) {
		h.respondError(w, http.StatusBadRequest, "asin must be 10 uppercase alphanumeric characters")
		return
	}

	title := q.Get("title")
	if title == "" {
		h.respondError(w, http.StatusBadRequest, "title is required")
		return
	}

	price, err := parsePrice(q.Get("price"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	currency, marketplace := h.localeParams(q.Get("currency"), q.Get("marketplace"))

	categoryKey, ok := category.Detect(title)
	if !ok {
		h.respondJSON(w, http.StatusOK, TrackRejection{
			Tracked:             false,
			Reason:              "not_electronics",
			Message:             "This product is not in our supported electronics categories.",
			SupportedCategories: category.DisplayNames(),
		})
		return
	}

	product := models.NewTrackedProduct(asin, title)
	product.Category = categoryKey
	product.Marketplace = marketplace
	product.Currency = currency

	if err := h.store.UpsertProduct(r.Context(), product); err != nil {
		h.logger.Error("failed to upsert product", "asin", asin, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to track product")
		return
	}

	obs := models.NewObservation(asin, price, models.SourceExtension)
	obs.Currency = currency
	obs.Marketplace = marketplace
	if err := h.store.RecordObservation(r.Context(), obs); err != nil {
		h.logger.Error("failed to record observation", "asin", asin, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to record price")
		return
	}

	window, err := h.store.WindowStats(r.Context(), asin, h.cfg.Tracker.WindowDays)
	if err != nil {
		h.logger.Error("failed to load window stats", "asin", asin, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load price history")
		return
	}

	stats := pricestats.FromAggregate(window.Min, window.Max, window.Avg, window.Count, price, h.cfg.Tracker.WindowDays)
	data := PriceData{Current: price, Lowest30d: price, Highest30d: price, Avg30d: price, DataPoints: 1}
	if stats != nil {
		data = PriceData{
			Current:    price,
			Lowest30d:  stats.Min,
			Highest30d: stats.Max,
			Avg30d:     stats.Avg,
			DataPoints: stats.Count,
		}
	}

	// A brand new product only has the extension's word for its price; a
	// scraper pass shortly after gives an independent observation.
	if data.DataPoints <= 1 {
		if err := h.jobs.QueueRefresh(asin, marketplace); err != nil {
			h.logger.Debug("could not queue verification refresh", "asin", asin, "error", err)
		}
	}

	display := category.DisplayName(categoryKey)
	h.respondJSON(w, http.StatusOK, TrackResponse{
		Tracked:         true,
		Category:        categoryKey,
		CategoryDisplay: display,
		Message:         fmt.Sprintf("Tracking %s price!", display),
		PriceData:       data,
	})
}

// PriceStatsBlock is the statistics section of the intelligence response
type PriceStatsBlock struct {
	Lowest30d   float64 `json:"lowest_30d"`
	Highest30d  float64 `json:"highest_30d"`
	Average30d  float64 `json:"average_30d"`
	IsAtLowest  bool    `json:"is_at_lowest"`
	IsAtHighest bool    `json:"is_at_highest"`
	PriceRange  float64 `json:"price_range"`
	Volatility  float64 `json:"volatility"`
	DataPoints  int     `json:"data_points"`
}

// IntelligenceResponse is the extension's main payload: window statistics, the
// misleading-discount verdict and a buy recommendation for the price the
// shopper is looking at right now.
type IntelligenceResponse struct {
	Status         string             `json:"status"`
	ASIN           string             `json:"asin"`
	CurrentPrice   float64            `json:"current_price"`
	Currency       string             `json:"currency"`
	PriceStats     PriceStatsBlock    `json:"price_stats"`
	FakeDiscount   pricestats.Verdict `json:"fake_discount"`
	Recommendation string             `json:"recommendation"`
	Trend          string             `json:"trend"`
	Timestamp      string             `json:"timestamp"`
	DataSource     string             `json:"data_source"`
}

// TrackingStartedResponse is the "no history yet" shape of the intelligence
// endpoint
type TrackingStartedResponse struct {
	Status       string  `json:"status"`
	ASIN         string  `json:"asin"`
	CurrentPrice float64 `json:"current_price"`
	Currency     string  `json:"currency"`
	Message      string  `json:"message"`
	DataPoints   int     `json:"data_points"`
}

// PriceIntelligence records the advertised price and answers with everything
// the extension overlays on the product page. Thin local history triggers a
// one-time bootstrap through the fallback chain; a recording failure degrades
// to whatever history already exists instead of failing the call.
func (h *Handlers) PriceIntelligence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	asin := q.Get("asin")
	if !models.IsValidASIN(asin) {
		h.respondError(w, http.StatusBadRequest, "asin must be 10 uppercase alphanumeric characters")
		return
	}

	price, err := parsePrice(q.Get("price"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	currency, marketplace := h.localeParams(q.Get("currency"), q.Get("marketplace"))
	ctx := r.Context()

	// The product row is created on first sight even without a title; the
	// next page visit, the bootstrap or a scraper pass fills the title in.
	product := models.NewTrackedProduct(asin, "")
	product.Marketplace = marketplace
	product.Currency = currency
	if err := h.store.UpsertProduct(ctx, product); err != nil {
		h.logger.Warn("failed to upsert product", "asin", asin, "error", err)
	}

	obs := models.NewObservation(asin, price, models.SourceExtension)
	obs.Currency = currency
	obs.Marketplace = marketplace
	if err := h.store.RecordObservation(ctx, obs); err != nil {
		h.logger.Warn("failed to record observation", "asin", asin, "error", err)
	}

	window, err := h.store.WindowStats(ctx, asin, h.cfg.Tracker.WindowDays)
	if err != nil {
		h.logger.Error("failed to load window stats", "asin", asin, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load price history")
		return
	}

	if window.Count < h.cfg.Tracker.MinLocalPoints {
		if bootstrapped := h.bootstrapHistory(ctx, asin, marketplace, currency, price); bootstrapped {
			if refreshed, err := h.store.WindowStats(ctx, asin, h.cfg.Tracker.WindowDays); err == nil {
				window = refreshed
			}
		}
	}

	stats := pricestats.FromAggregate(window.Min, window.Max, window.Avg, window.Count, price, h.cfg.Tracker.WindowDays)
	if stats == nil {
		h.respondJSON(w, http.StatusOK, TrackingStartedResponse{
			Status:       "tracking_started",
			ASIN:         asin,
			CurrentPrice: price,
			Currency:     currency,
			Message:      "GhostPrice is now tracking this product! Check back soon for price intelligence.",
			DataPoints:   1,
		})
		return
	}

	h.respondJSON(w, http.StatusOK, IntelligenceResponse{
		Status:       "success",
		ASIN:         asin,
		CurrentPrice: price,
		Currency:     currency,
		PriceStats: PriceStatsBlock{
			Lowest30d:   stats.Min,
			Highest30d:  stats.Max,
			Average30d:  stats.Avg,
			IsAtLowest:  stats.IsLowest,
			IsAtHighest: stats.IsHighest,
			PriceRange:  stats.PriceRange,
			Volatility:  stats.Volatility,
			DataPoints:  stats.Count,
		},
		FakeDiscount:   stats.AssessDiscount(),
		Recommendation: stats.Recommendation(),
		Trend:          stats.Trend(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		DataSource:     "GhostPrice Intelligence",
	})
}

// bootstrapHistory asks the fallback chain for a starting history and imports
// whatever it produces. Returns false when the chain had nothing; the caller
// carries on with local data either way.
func (h *Handlers) bootstrapHistory(ctx context.Context, asin, marketplace, currency string, currentPrice float64) bool {
	result, err := h.resolver.Resolve(ctx, asin, marketplace, currentPrice)
	if err != nil {
		h.logger.Debug("history bootstrap found nothing", "asin", asin, "error", err)
		return false
	}

	inserted, err := h.store.ImportHistory(ctx, asin, result.Observations(marketplace, currency))
	if err != nil {
		h.logger.Warn("failed to import bootstrapped history", "asin", asin, "error", err)
		return false
	}

	if result.Title != "" {
		update := models.NewTrackedProduct(asin, result.Title)
		update.Marketplace = marketplace
		update.Currency = currency
		if key, ok := category.Detect(result.Title); ok {
			update.Category = key
		}
		if err := h.store.UpsertProduct(ctx, update); err != nil {
			h.logger.Warn("failed to update product from bootstrap", "asin", asin, "error", err)
		}
	}

	h.logger.Info("price history bootstrapped",
		"asin", asin,
		"source", result.Source,
		"points", inserted)
	return true
}

// LivePriceResponse carries the freshest scraped price for a product
type LivePriceResponse struct {
	Success   bool    `json:"success"`
	ASIN      string  `json:"asin"`
	Price     float64 `json:"price,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	Title     string  `json:"title,omitempty"`
	Source    string  `json:"source,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// LivePrice scrapes the product page right now and returns the price it
// found. The observation is recorded for tracked products; unknown products
// get their history row but no catalogue entry, so the category gate stays
// with TrackProduct.
func (h *Handlers) LivePrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	asin := q.Get("asin")
	if !models.IsValidASIN(asin) {
		h.respondError(w, http.StatusBadRequest, "asin must be 10 uppercase alphanumeric characters")
		return
	}

	_, marketplace := h.localeParams(q.Get("currency"), q.Get("marketplace"))
	ctx := r.Context()

	page, err := h.scraper.FetchPage(ctx, asin, marketplace)
	if err != nil {
		h.logger.Warn("live price fetch failed", "asin", asin, "error", err)
		h.respondJSON(w, http.StatusOK, LivePriceResponse{
			Success: false,
			ASIN:    asin,
			Error:   err.Error(),
		})
		return
	}

	currency := h.cfg.Tracker.Currency
	if product, err := h.store.GetProduct(ctx, asin); err == nil {
		currency = product.Currency
		if page.Title != "" && page.Title != product.Title {
			product.Title = page.Title
			product.LastUpdatedAt = time.Now()
			if err := h.store.UpsertProduct(ctx, product); err != nil {
				h.logger.Warn("failed to refresh product title", "asin", asin, "error", err)
			}
		}
	}

	obs := models.NewObservation(asin, page.Price, models.SourceScraper)
	obs.Currency = currency
	obs.Marketplace = marketplace
	if err := h.store.RecordObservation(ctx, obs); err != nil {
		h.logger.Warn("failed to record live price", "asin", asin, "error", err)
	}

	h.respondJSON(w, http.StatusOK, LivePriceResponse{
		Success:   true,
		ASIN:      asin,
		Price:     page.Price,
		Currency:  currency,
		Title:     page.Title,
		Source:    models.SourceScraper,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// StatsResponse is the arbitrary-window statistics payload. Field names keep
// the 30d suffix whatever window the caller asked for; clients key on them.
type StatsResponse struct {
	Success          bool    `json:"success"`
	ASIN             string  `json:"asin"`
	CurrentPrice     float64 `json:"current_price"`
	Min30d           float64 `json:"min_30d"`
	Max30d           float64 `json:"max_30d"`
	Avg30d           float64 `json:"avg_30d"`
	IsLowest         bool    `json:"is_lowest"`
	IsHighest        bool    `json:"is_highest"`
	DataPoints       int     `json:"data_points"`
	Volatility       float64 `json:"volatility"`
	Source           string  `json:"source"`
	Recommendation   string  `json:"recommendation"`
	SavingsFromHigh  float64 `json:"savings_from_high"`
	PotentialSavings float64 `json:"potential_savings"`
}

// NoDataResponse tells the extension to send the shopper to the product page
type NoDataResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ASIN    string `json:"asin"`
}

// PriceStats reports window statistics against the latest recorded price.
// Unknown products answer success=false rather than an error status.
func (h *Handlers) PriceStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	asin := q.Get("asin")
	if !models.IsValidASIN(asin) {
		h.respondError(w, http.StatusBadRequest, "asin must be 10 uppercase alphanumeric characters")
		return
	}

	days := parseIntDefault(q.Get("days"), h.cfg.Tracker.WindowDays)
	ctx := r.Context()

	latest, err := h.store.LatestObservation(ctx, asin)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.respondJSON(w, http.StatusOK, NoDataResponse{
				Success: false,
				Message: "No price data available yet. Visit the product page to start tracking!",
				ASIN:    asin,
			})
			return
		}
		h.logger.Error("failed to load latest observation", "asin", asin, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load price history")
		return
	}

	window, err := h.store.WindowStats(ctx, asin, days)
	if err != nil {
		h.logger.Error("failed to load window stats", "asin", asin, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load price history")
		return
	}

	stats := pricestats.FromAggregate(window.Min, window.Max, window.Avg, window.Count, latest.Price, days)
	if stats == nil {
		h.respondJSON(w, http.StatusOK, NoDataResponse{
			Success: false,
			Message: "No price data available yet. Visit the product page to start tracking!",
			ASIN:    asin,
		})
		return
	}
	stats.Source = latest.Source

	h.respondJSON(w, http.StatusOK, StatsResponse{
		Success:          true,
		ASIN:             asin,
		CurrentPrice:     stats.Current,
		Min30d:           stats.Min,
		Max30d:           stats.Max,
		Avg30d:           stats.Avg,
		IsLowest:         stats.IsLowest,
		IsHighest:        stats.IsHighest,
		DataPoints:       stats.Count,
		Volatility:       stats.Volatility,
		Source:           stats.Source,
		Recommendation:   stats.Recommendation(),
		SavingsFromHigh:  stats.SavingsFromMax(),
		PotentialSavings: stats.PotentialSavings(),
	})
}

// ProductsResponse lists tracked products
type ProductsResponse struct {
	Success  bool                    `json:"success"`
	Count    int                     `json:"count"`
	Products []models.TrackedProduct `json:"products"`
}

// ListProducts returns tracked products, newest activity first, optionally
// filtered by category.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), 50)

	products, err := h.store.ListProducts(r.Context(), q.Get("category"), limit)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []models.TrackedProduct{}
	}

	h.respondJSON(w, http.StatusOK, ProductsResponse{
		Success:  true,
		Count:    len(products),
		Products: products,
	})
}

// HistoryResponse carries a product's observation rows for charting
type HistoryResponse struct {
	ASIN    string                    `json:"asin"`
	Days    int                       `json:"days"`
	Count   int                       `json:"count"`
	History []models.PriceObservation `json:"history"`
}

// ProductHistory returns a tracked product's observations inside the window,
// oldest first so charts draw left to right.
func (h *Handlers) ProductHistory(w http.ResponseWriter, r *http.Request) {
	asin := chi.URLParam(r, "asin")
	if !models.IsValidASIN(asin) {
		h.respondError(w, http.StatusBadRequest, "asin must be 10 uppercase alphanumeric characters")
		return
	}

	if _, err := h.store.GetProduct(r.Context(), asin); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "product is not tracked")
			return
		}
		h.logger.Error("failed to load product", "asin", asin, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load product")
		return
	}

	days := parseIntDefault(r.URL.Query().Get("days"), h.cfg.Tracker.WindowDays)
	history, err := h.store.History(r.Context(), asin, days)
	if err != nil {
		h.logger.Error("failed to load history", "asin", asin, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load price history")
		return
	}
	if history == nil {
		history = []models.PriceObservation{}
	}

	h.respondJSON(w, http.StatusOK, HistoryResponse{
		ASIN:    asin,
		Days:    days,
		Count:   len(history),
		History: history,
	})
}

// localeParams fills in the configured defaults for missing currency and
// marketplace query parameters
func (h *Handlers) localeParams(currency, marketplace string) (string, string) {
	if currency == "" {
		currency = h.cfg.Tracker.Currency
	}
	if marketplace == "" {
		marketplace = h.cfg.Tracker.Marketplace
	}
	return currency, marketplace
}

func parsePrice(raw string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("price is required")
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("price must be a number")
	}
	if price <= 0 {
		return 0, fmt.Errorf("price must be greater than zero")
	}
	return price, nil
}

func parseIntDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
