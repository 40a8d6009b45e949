package pricesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/ghostprice/price-tracker/internal/parser"
	"github.com/ghostprice/price-tracker/internal/ratelimit"
)

// Desktop user agents rotated per request so fetches don't share a fingerprint
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// BrowserFetcher renders a page in a real browser. Used as the escape hatch
// when the plain HTTP fetch runs into bot protection.
type BrowserFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// ScraperSource reads the current price straight off the product page. It is
// the free source of last resort: no history, just one fresh point.
type ScraperSource struct {
	client  *http.Client
	limiter *ratelimit.SimpleRateLimiter
	parser  *parser.AmazonParser
	browser BrowserFetcher
	logger  *slog.Logger

	// baseURL overrides the storefront host, used by tests
	baseURL string
}

func NewScraperSource(minDelay, maxDelay, timeout time.Duration, logger *slog.Logger) *ScraperSource {
	return &ScraperSource{
		client:  &http.Client{Timeout: timeout},
		limiter: ratelimit.NewSimpleRateLimiter(minDelay, maxDelay),
		parser:  parser.NewAmazonParser(),
		logger:  logger.With("component", "scraper"),
	}
}

// WithBrowser enables the headless browser fallback for blocked fetches
func (s *ScraperSource) WithBrowser(browser BrowserFetcher) *ScraperSource {
	s.browser = browser
	return s
}

func (s *ScraperSource) Name() string { return "scraper" }

// FetchHistory fetches the product page and returns a single-point history
// holding the current price
func (s *ScraperSource) FetchHistory(ctx context.Context, asin, marketplace string) (*Result, error) {
	page, err := s.FetchPage(ctx, asin, marketplace)
	if err != nil {
		return nil, err
	}

	return &Result{
		ASIN:         asin,
		Title:        page.Title,
		CurrentPrice: page.Price,
		Points:       []Point{{Price: page.Price, Timestamp: time.Now()}},
		Source:       "scraper",
	}, nil
}

// FetchPage fetches and parses a single product page. The jittered delay runs
// before every request; on bot protection the browser fallback takes over when
// one is wired.
func (s *ScraperSource) FetchPage(ctx context.Context, asin, marketplace string) (*parser.ProductPage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := s.productURL(asin, marketplace)
	html, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	page, err := s.parser.ParseProductPage(html, asin)
	if errors.Is(err, parser.ErrBlocked) && s.browser != nil {
		s.logger.Warn("plain fetch blocked, retrying with browser", "asin", asin)

		html, berr := s.browser.FetchHTML(ctx, url)
		if berr != nil {
			return nil, fmt.Errorf("browser fallback failed: %w", berr)
		}
		page, err = s.parser.ParseProductPage(html, asin)
	}
	if err != nil {
		if errors.Is(err, parser.ErrBlocked) {
			return nil, ErrBlocked
		}
		if errors.Is(err, parser.ErrPriceNotFound) {
			return nil, fmt.Errorf("%w: no price on page for %s", ErrNoData, asin)
		}
		return nil, err
	}

	return page, nil
}

// FetchListing fetches a category listing page and extracts candidate ASINs
func (s *ScraperSource) FetchListing(ctx context.Context, url string, max int) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	html, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if s.parser.IsCaptcha(html) {
		return nil, ErrBlocked
	}

	return s.parser.ExtractASINs(html, max)
}

func (s *ScraperSource) productURL(asin, marketplace string) string {
	if s.baseURL != "" {
		return fmt.Sprintf("%s/dp/%s", s.baseURL, asin)
	}
	return ProductURL(asin, marketplace)
}

func (s *ScraperSource) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("page fetch failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusForbidden:
		// Amazon answers throttled clients with 503/403 rather than 429
		return "", ErrBlocked
	default:
		return "", fmt.Errorf("page fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read page body: %w", err)
	}

	return string(body), nil
}
