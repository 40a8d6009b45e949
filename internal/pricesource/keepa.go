package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ghostprice/price-tracker/internal/ratelimit"
)

const keepaBaseURL = "https://api.keepa.com"

// keepaEpoch: Keepa timestamps count minutes since 2011-01-01 UTC
var keepaEpoch = time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)

// keepaDomains maps marketplace codes to Keepa's numeric domain ids
var keepaDomains = map[string]int{
	"US": 1,
	"GB": 2,
	"UK": 2,
	"DE": 3,
	"FR": 4,
	"JP": 5,
	"CA": 6,
	"IT": 7,
	"IN": 8,
	"ES": 9,
}

// KeepaSource fetches price history from the Keepa API. Keepa bills requests
// from a token pool, so calls go through a token-bucket limiter.
type KeepaSource struct {
	apiKey     string
	baseURL    string
	windowDays int
	client     *http.Client
	limiter    *ratelimit.TokenBucketRateLimiter
	logger     *slog.Logger
}

func NewKeepaSource(apiKey string, windowDays int, logger *slog.Logger) *KeepaSource {
	return &KeepaSource{
		apiKey:     apiKey,
		baseURL:    keepaBaseURL,
		windowDays: windowDays,
		client:     &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.NewAPIQuotaLimiter(),
		logger:     logger.With("component", "keepa"),
	}
}

func (k *KeepaSource) Name() string { return "keepa" }

type keepaProduct struct {
	ASIN  string      `json:"asin"`
	Title string      `json:"title"`
	CSV   [][]float64 `json:"csv"`
}

type keepaResponse struct {
	Products   []keepaProduct `json:"products"`
	TokensLeft int            `json:"tokensLeft"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// FetchHistory asks Keepa for the product with price history enabled.
// csv[0] is the Amazon price series, csv[1] the marketplace-new series used
// as fallback; both are flat [minutes, price*100] pairs with -1 marking out
// of stock.
func (k *KeepaSource) FetchHistory(ctx context.Context, asin, marketplace string) (*Result, error) {
	if k.apiKey == "" {
		return nil, ErrNotConfigured
	}

	if err := k.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	domain, ok := keepaDomains[marketplace]
	if !ok {
		domain = keepaDomains["IN"]
	}

	url := fmt.Sprintf("%s/product?key=%s&domain=%d&asin=%s&stats=%d&history=1",
		k.baseURL, k.apiKey, domain, asin, k.windowDays)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keepa request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusPaymentRequired:
		return nil, ErrQuotaExceeded
	default:
		return nil, fmt.Errorf("keepa returned status %d", resp.StatusCode)
	}

	var body keepaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode keepa response: %w", err)
	}
	if body.Error != nil {
		return nil, fmt.Errorf("keepa error: %s", body.Error.Message)
	}
	if len(body.Products) == 0 {
		return nil, ErrNoData
	}

	product := body.Products[0]
	points := decodeKeepaSeries(pickKeepaSeries(product.CSV))
	if len(points) == 0 {
		return nil, ErrNoData
	}

	k.logger.Debug("keepa history fetched",
		"asin", asin,
		"points", len(points),
		"tokens_left", body.TokensLeft)

	return &Result{
		ASIN:         asin,
		Title:        product.Title,
		CurrentPrice: points[len(points)-1].Price,
		Points:       points,
		Source:       "keepa",
	}, nil
}

// pickKeepaSeries prefers the Amazon price series, then marketplace-new
func pickKeepaSeries(csv [][]float64) []float64 {
	if len(csv) > 0 && len(csv[0]) > 0 {
		return csv[0]
	}
	if len(csv) > 1 && len(csv[1]) > 0 {
		return csv[1]
	}
	return nil
}

// decodeKeepaSeries converts flat [minutes, price*100] pairs into points,
// skipping out-of-stock markers
func decodeKeepaSeries(series []float64) []Point {
	var points []Point
	for i := 0; i+1 < len(series); i += 2 {
		price := series[i+1]
		if price < 0 {
			continue
		}
		points = append(points, Point{
			Price:     price / 100,
			Timestamp: keepaEpoch.Add(time.Duration(series[i]) * time.Minute),
		})
	}
	return points
}
