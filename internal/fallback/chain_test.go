package fallback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostprice/price-tracker/internal/models"
	"github.com/ghostprice/price-tracker/internal/pricesource"
)

type stubSource struct {
	name   string
	result *pricesource.Result
	err    error
	calls  int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchHistory(ctx context.Context, asin, marketplace string) (*pricesource.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func singlePointResult(source string, price float64) *pricesource.Result {
	return &pricesource.Result{
		ASIN:         "B09TESTASIN",
		CurrentPrice: price,
		Points:       []pricesource.Point{{Price: price, Timestamp: time.Now()}},
		Source:       source,
	}
}

func TestChainFirstSuccessWins(t *testing.T) {
	first := &stubSource{name: "keepa", err: pricesource.ErrRateLimited}
	second := &stubSource{name: "apify", result: singlePointResult(models.SourceApify, 24990)}
	third := &stubSource{name: "scraper", result: singlePointResult(models.SourceScraper, 25990)}

	chain := NewChain(testLogger(), 30, first, second, third)

	result, err := chain.Resolve(context.Background(), "B09TESTASIN", "IN", 0)
	require.NoError(t, err)
	assert.Equal(t, models.SourceApify, result.Source)
	assert.Equal(t, 24990.0, result.CurrentPrice)

	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls, "later sources must not be consulted after a hit")
}

func TestChainSkipsNotConfiguredSources(t *testing.T) {
	first := &stubSource{name: "keepa", err: pricesource.ErrNotConfigured}
	second := &stubSource{name: "paapi", err: pricesource.ErrEligibilityPending}
	third := &stubSource{name: "scraper", result: singlePointResult(models.SourceScraper, 1499)}

	chain := NewChain(testLogger(), 30, first, second, third)

	result, err := chain.Resolve(context.Background(), "B09TESTASIN", "IN", 0)
	require.NoError(t, err)
	assert.Equal(t, models.SourceScraper, result.Source)
}

func TestChainSkipsEmptyResults(t *testing.T) {
	empty := &stubSource{name: "keepa", result: &pricesource.Result{ASIN: "B09TESTASIN"}}
	second := &stubSource{name: "apify", result: singlePointResult(models.SourceApify, 899)}

	chain := NewChain(testLogger(), 30, empty, second)

	result, err := chain.Resolve(context.Background(), "B09TESTASIN", "IN", 0)
	require.NoError(t, err)
	assert.Equal(t, models.SourceApify, result.Source)
}

func TestChainSynthesizesWhenAllFailWithKnownPrice(t *testing.T) {
	first := &stubSource{name: "keepa", err: pricesource.ErrNotConfigured}
	second := &stubSource{name: "scraper", err: pricesource.ErrBlocked}

	chain := NewChain(testLogger(), 30, first, second)

	result, err := chain.Resolve(context.Background(), "B09TESTASIN", "IN", 24990)
	require.NoError(t, err)
	assert.Equal(t, models.SourceSynthetic, result.Source)
	assert.Len(t, result.Points, 31)
	assert.Equal(t, 24990.0, result.Points[len(result.Points)-1].Price)
}

func TestChainNoDataWhenAllFailWithoutPrice(t *testing.T) {
	first := &stubSource{name: "keepa", err: pricesource.ErrQuotaExceeded}
	second := &stubSource{name: "scraper", err: pricesource.ErrBlocked}

	chain := NewChain(testLogger(), 30, first, second)

	result, err := chain.Resolve(context.Background(), "B09TESTASIN", "IN", 0)
	assert.ErrorIs(t, err, pricesource.ErrNoData)
	assert.Nil(t, result)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestChainHonoursContextCancellation(t *testing.T) {
	source := &stubSource{name: "keepa", result: singlePointResult(models.SourceKeepa, 100)}
	chain := NewChain(testLogger(), 30, source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := chain.Resolve(ctx, "B09TESTASIN", "IN", 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, source.calls)
}

func TestChainFailureError(t *testing.T) {
	boom := errors.New("boom")
	source := &stubSource{name: "keepa", err: boom}

	chain := NewChain(testLogger(), 30, source)

	_, err := chain.Resolve(context.Background(), "B09TESTASIN", "IN", 0)
	assert.ErrorIs(t, err, pricesource.ErrNoData)
}
