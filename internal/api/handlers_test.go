package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ghostprice/price-tracker/internal/config"
	"github.com/ghostprice/price-tracker/internal/database"
	"github.com/ghostprice/price-tracker/internal/jobs"
	"github.com/ghostprice/price-tracker/internal/models"
	"github.com/ghostprice/price-tracker/internal/parser"
	"github.com/ghostprice/price-tracker/internal/pricesource"
	"github.com/ghostprice/price-tracker/internal/queue"
)

type mockFetcher struct {
	mock.Mock
}

func (f *mockFetcher) FetchPage(ctx context.Context, asin, marketplace string) (*parser.ProductPage, error) {
	args := f.Called(ctx, asin, marketplace)
	if page := args.Get(0); page != nil {
		return page.(*parser.ProductPage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (f *mockFetcher) FetchListing(ctx context.Context, url string, max int) ([]string, error) {
	args := f.Called(ctx, url, max)
	if asins := args.Get(0); asins != nil {
		return asins.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockResolver struct {
	mock.Mock
}

func (r *mockResolver) Resolve(ctx context.Context, asin, marketplace string, currentPrice float64) (*pricesource.Result, error) {
	args := r.Called(ctx, asin, marketplace, currentPrice)
	if result := args.Get(0); result != nil {
		return result.(*pricesource.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

type testEnv struct {
	handlers *Handlers
	store    database.Store
	fetcher  *mockFetcher
	resolver *mockResolver
	refreshQ *queue.RefreshQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := database.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Tracker: config.TrackerConfig{
			Marketplace:    "IN",
			Currency:       "INR",
			WindowDays:     30,
			SyntheticDays:  30,
			MinLocalPoints: 5,
		},
	}

	fetcher := &mockFetcher{}
	resolver := &mockResolver{}
	refreshQ := queue.NewRefreshQueue()
	manager := jobs.NewManager(store, fetcher, resolver, refreshQ, cfg, logger)

	return &testEnv{
		handlers: NewHandlers(store, fetcher, resolver, manager, cfg, logger),
		store:    store,
		fetcher:  fetcher,
		resolver: resolver,
		refreshQ: refreshQ,
	}
}

func (e *testEnv) serve(method, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	e.handlers.Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func (e *testEnv) trackProduct(t *testing.T, asin, title, categoryKey string) {
	t.Helper()

	product := models.NewTrackedProduct(asin, title)
	product.Category = categoryKey
	require.NoError(t, e.store.UpsertProduct(context.Background(), product))
}

// seedHistory inserts one observation per price, one day apart, oldest first.
// The two hour shift keeps every point clear of day-window cutoffs.
func (e *testEnv) seedHistory(t *testing.T, asin, source string, prices ...float64) {
	t.Helper()

	base := time.Now().Add(-2 * time.Hour)
	observations := make([]models.PriceObservation, len(prices))
	for i, price := range prices {
		observations[i] = models.PriceObservation{
			ASIN:        asin,
			Price:       price,
			Currency:    "INR",
			Marketplace: "IN",
			Source:      source,
			Timestamp:   base.AddDate(0, 0, -(len(prices) - 1 - i)),
		}
	}

	_, err := e.store.ImportHistory(context.Background(), asin, observations)
	require.NoError(t, err)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func trackURL(asin, title string, price float64) string {
	params := url.Values{}
	params.Set("asin", asin)
	params.Set("title", title)
	params.Set("price", fmt.Sprintf("%.2f", price))
	return "/api/v1/track?" + params.Encode()
}

func TestTrackProductTracksElectronics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(http.MethodGet, trackURL("B0TRACK001", "HP Pavilion 15 Gaming Laptop", 55990))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TrackResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Tracked)
	assert.Equal(t, "laptops", resp.Category)
	assert.Equal(t, "Laptops & Notebooks", resp.CategoryDisplay)
	assert.Equal(t, "Tracking Laptops & Notebooks price!", resp.Message)
	assert.Equal(t, 55990.0, resp.PriceData.Current)
	assert.Equal(t, 55990.0, resp.PriceData.Lowest30d)
	assert.Equal(t, 1, resp.PriceData.DataPoints)

	product, err := env.store.GetProduct(context.Background(), "B0TRACK001")
	require.NoError(t, err)
	assert.Equal(t, "laptops", product.Category)

	// First sighting queues a verification scrape
	assert.Equal(t, 1, env.refreshQ.Size())
}

func TestTrackProductSecondSightingKeepsHistory(t *testing.T) {
	env := newTestEnv(t)
	env.trackProduct(t, "B0TRACK002", "Dell XPS 13 Laptop", "laptops")
	env.seedHistory(t, "B0TRACK002", models.SourceExtension, 61990)

	rec := env.serve(http.MethodGet, trackURL("B0TRACK002", "Dell XPS 13 Laptop", 55990))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TrackResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Tracked)
	assert.Equal(t, 2, resp.PriceData.DataPoints)
	assert.Equal(t, 55990.0, resp.PriceData.Lowest30d)
	assert.Equal(t, 61990.0, resp.PriceData.Highest30d)
	assert.InDelta(t, 58990.0, resp.PriceData.Avg30d, 0.01)

	// Known product, no verification scrape
	assert.Equal(t, 0, env.refreshQ.Size())
}

func TestTrackProductRejectsNonElectronics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(http.MethodGet, trackURL("B0BEDSHEET", "Solimo Cotton Bedsheet King Size", 599))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TrackRejection
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Tracked)
	assert.Equal(t, "not_electronics", resp.Reason)
	assert.NotEmpty(t, resp.SupportedCategories)

	_, err := env.store.GetProduct(context.Background(), "B0BEDSHEET")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestTrackProductValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		target string
	}{
		{"invalid asin", trackURL("not-an-asin", "HP Laptop", 55990)},
		{"missing title", "/api/v1/track?asin=B0TRACK003&price=55990"},
		{"missing price", "/api/v1/track?asin=B0TRACK003&title=HP+Laptop"},
		{"zero price", trackURL("B0TRACK003", "HP Laptop", 0)},
		{"garbage price", "/api/v1/track?asin=B0TRACK003&title=HP+Laptop&price=free"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.serve(http.MethodGet, tc.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPriceIntelligenceFlagsInflatedReference(t *testing.T) {
	env := newTestEnv(t)
	env.trackProduct(t, "B0INFLATE1", "Sony Bravia 4K Monitor", "monitors")
	// Five quiet days at 1000, then a spike to 2000 right before the "sale"
	env.seedHistory(t, "B0INFLATE1", models.SourceExtension, 1000, 1000, 1000, 1000, 1000, 2000)

	rec := env.serve(http.MethodGet, "/api/v1/price-intelligence?asin=B0INFLATE1&price=1500")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IntelligenceResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 1500.0, resp.CurrentPrice)
	assert.Equal(t, 7, resp.PriceStats.DataPoints)
	assert.Equal(t, 1000.0, resp.PriceStats.Lowest30d)
	assert.Equal(t, 2000.0, resp.PriceStats.Highest30d)
	assert.InDelta(t, 1214.29, resp.PriceStats.Average30d, 0.01)
	assert.False(t, resp.PriceStats.IsAtLowest)
	assert.False(t, resp.PriceStats.IsAtHighest)

	assert.True(t, resp.FakeDiscount.Misleading)
	assert.Equal(t, "reference price looks inflated against the recent average", resp.FakeDiscount.Reason)
	assert.InDelta(t, 25.0, resp.FakeDiscount.RealDiscount, 0.01)

	assert.Equal(t, "WAIT", resp.Recommendation)
	assert.Equal(t, "rising", resp.Trend)
	assert.Equal(t, "GhostPrice Intelligence", resp.DataSource)

	// Six local points, no reason to hit the fallback chain
	env.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPriceIntelligenceGenuineDrop(t *testing.T) {
	env := newTestEnv(t)
	env.trackProduct(t, "B0GENUINE1", "Sony WH-1000XM5 Headphones", "headphones")
	env.seedHistory(t, "B0GENUINE1", models.SourceExtension, 2000, 2000, 2000, 2000, 2000)

	rec := env.serve(http.MethodGet, "/api/v1/price-intelligence?asin=B0GENUINE1&price=1500")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IntelligenceResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "success", resp.Status)
	assert.False(t, resp.FakeDiscount.Misleading)
	assert.InDelta(t, 25.0, resp.FakeDiscount.RealDiscount, 0.01)
	assert.True(t, resp.PriceStats.IsAtLowest)
	assert.Equal(t, "BUY_NOW", resp.Recommendation)
	assert.Equal(t, "dropping", resp.Trend)
}

func TestPriceIntelligenceBootstrapsThinHistory(t *testing.T) {
	env := newTestEnv(t)

	now := time.Now()
	env.resolver.On("Resolve", mock.Anything, "B0FRESH001", "IN", 24990.0).Return(&pricesource.Result{
		ASIN:         "B0FRESH001",
		Title:        "Sony WH-1000XM4 Wireless Headphones",
		CurrentPrice: 24990,
		Points: []pricesource.Point{
			{Price: 27990, Timestamp: now.AddDate(0, 0, -3)},
			{Price: 26990, Timestamp: now.AddDate(0, 0, -2)},
			{Price: 25990, Timestamp: now.AddDate(0, 0, -1)},
		},
		Source: models.SourceKeepa,
	}, nil).Once()

	rec := env.serve(http.MethodGet, "/api/v1/price-intelligence?asin=B0FRESH001&price=24990")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IntelligenceResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 4, resp.PriceStats.DataPoints)
	assert.Equal(t, 24990.0, resp.PriceStats.Lowest30d)
	assert.Equal(t, 27990.0, resp.PriceStats.Highest30d)
	assert.True(t, resp.PriceStats.IsAtLowest)
	assert.Equal(t, "BUY_NOW", resp.Recommendation)

	// The bootstrap title fills in the product row and its category
	product, err := env.store.GetProduct(context.Background(), "B0FRESH001")
	require.NoError(t, err)
	assert.Equal(t, "Sony WH-1000XM4 Wireless Headphones", product.Title)
	assert.Equal(t, "headphones", product.Category)

	env.resolver.AssertExpectations(t)
}

func TestPriceIntelligenceValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(http.MethodGet, "/api/v1/price-intelligence?asin=bogus&price=100")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.serve(http.MethodGet, "/api/v1/price-intelligence?asin=B0VALID001&price=-5")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLivePriceRecordsScrapedPrice(t *testing.T) {
	env := newTestEnv(t)
	env.trackProduct(t, "B0LIVE0001", "Logitech MX Master 3S", "keyboards_mice")

	env.fetcher.On("FetchPage", mock.Anything, "B0LIVE0001", "IN").Return(&parser.ProductPage{
		ASIN:  "B0LIVE0001",
		Title: "Logitech MX Master 3S Wireless Performance Mouse",
		Price: 8999,
	}, nil).Once()

	rec := env.serve(http.MethodGet, "/api/v1/live-price?asin=B0LIVE0001")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LivePriceResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 8999.0, resp.Price)
	assert.Equal(t, models.SourceScraper, resp.Source)

	latest, err := env.store.LatestObservation(context.Background(), "B0LIVE0001")
	require.NoError(t, err)
	assert.Equal(t, 8999.0, latest.Price)
	assert.Equal(t, models.SourceScraper, latest.Source)

	product, err := env.store.GetProduct(context.Background(), "B0LIVE0001")
	require.NoError(t, err)
	assert.Equal(t, "Logitech MX Master 3S Wireless Performance Mouse", product.Title)

	env.fetcher.AssertExpectations(t)
}

func TestLivePriceReportsBlockedPage(t *testing.T) {
	env := newTestEnv(t)

	env.fetcher.On("FetchPage", mock.Anything, "B0BLOCKED1", "IN").
		Return(nil, pricesource.ErrBlocked).Once()

	rec := env.serve(http.MethodGet, "/api/v1/live-price?asin=B0BLOCKED1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LivePriceResponse
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "blocked")
}

func TestPriceStatsComputesWindow(t *testing.T) {
	env := newTestEnv(t)
	env.trackProduct(t, "B0STATS001", "Samsung Galaxy Tab S9", "tablets")
	env.seedHistory(t, "B0STATS001", models.SourceKeepa, 49990, 44990, 39990)

	rec := env.serve(http.MethodGet, "/api/v1/price-stats?asin=B0STATS001")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 39990.0, resp.CurrentPrice)
	assert.Equal(t, 39990.0, resp.Min30d)
	assert.Equal(t, 49990.0, resp.Max30d)
	assert.InDelta(t, 44990.0, resp.Avg30d, 0.01)
	assert.True(t, resp.IsLowest)
	assert.False(t, resp.IsHighest)
	assert.Equal(t, 3, resp.DataPoints)
	assert.Equal(t, models.SourceKeepa, resp.Source)
	assert.Equal(t, "BUY_NOW", resp.Recommendation)
	assert.InDelta(t, 10000.0, resp.SavingsFromHigh, 0.01)
	assert.Equal(t, 0.0, resp.PotentialSavings)

	// A narrower window only sees the newest observation
	rec = env.serve(http.MethodGet, "/api/v1/price-stats?asin=B0STATS001&days=1")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Equal(t, 1, resp.DataPoints)
	assert.Equal(t, 39990.0, resp.Max30d)
}

func TestPriceStatsNoData(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(http.MethodGet, "/api/v1/price-stats?asin=B0NODATA01")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp NoDataResponse
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "B0NODATA01", resp.ASIN)
	assert.Contains(t, resp.Message, "No price data available yet")
}

func TestListProducts(t *testing.T) {
	env := newTestEnv(t)
	env.trackProduct(t, "B0LIST0001", "HP Pavilion Laptop", "laptops")
	env.trackProduct(t, "B0LIST0002", "Dell Inspiron Laptop", "laptops")
	env.trackProduct(t, "B0LIST0003", "JBL Flip 6 Speaker", "speakers")

	rec := env.serve(http.MethodGet, "/api/v1/products")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProductsResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Count)

	rec = env.serve(http.MethodGet, "/api/v1/products?category=laptops")
	decodeBody(t, rec, &resp)
	assert.Equal(t, 2, resp.Count)

	rec = env.serve(http.MethodGet, "/api/v1/products?limit=1")
	decodeBody(t, rec, &resp)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Products, 1)
}

func TestProductHistoryAscending(t *testing.T) {
	env := newTestEnv(t)
	env.trackProduct(t, "B0CHART001", "Canon EOS R50 Camera", "cameras")
	env.seedHistory(t, "B0CHART001", models.SourceScraper, 71990, 69990, 67990)

	rec := env.serve(http.MethodGet, "/api/v1/products/B0CHART001/history")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "B0CHART001", resp.ASIN)
	assert.Equal(t, 3, resp.Count)
	require.Len(t, resp.History, 3)
	assert.Equal(t, 71990.0, resp.History[0].Price)
	assert.Equal(t, 67990.0, resp.History[2].Price)
	assert.True(t, resp.History[0].Timestamp.Before(resp.History[2].Timestamp))
}

func TestProductHistoryUnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(http.MethodGet, "/api/v1/products/B0MISSING1/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
