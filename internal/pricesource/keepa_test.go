package pricesource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestKeepa(t *testing.T, handler http.HandlerFunc) *KeepaSource {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	source := NewKeepaSource("test-key", 30, testLogger())
	source.baseURL = server.URL
	source.limiter.SetDelay(time.Millisecond, 0)
	return source
}

func TestKeepaFetchHistory(t *testing.T) {
	source := newTestKeepa(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "test-key", query.Get("key"))
		assert.Equal(t, "8", query.Get("domain"), "IN maps to keepa domain 8")
		assert.Equal(t, "B09Y2MYL5C", query.Get("asin"))
		assert.Equal(t, "30", query.Get("stats"))
		assert.Equal(t, "1", query.Get("history"))

		// Flat [minutes, price*100] pairs; -1 marks out of stock
		fmt.Fprint(w, `{
			"tokensLeft": 58,
			"products": [{
				"asin": "B09Y2MYL5C",
				"title": "Sony WH-1000XM5",
				"csv": [[7000000, 2499900, 7010000, -1, 7020000, 2399900]]
			}]
		}`)
	})

	result, err := source.FetchHistory(context.Background(), "B09Y2MYL5C", "IN")
	require.NoError(t, err)

	assert.Equal(t, "keepa", result.Source)
	assert.Equal(t, "Sony WH-1000XM5", result.Title)
	require.Len(t, result.Points, 2, "out of stock markers are skipped")
	assert.Equal(t, 24999.0, result.Points[0].Price)
	assert.Equal(t, 23999.0, result.Points[1].Price)
	assert.Equal(t, 23999.0, result.CurrentPrice, "current price follows the last point")
	assert.Greater(t, result.Points[0].Timestamp.Year(), 2020)
}

func TestKeepaFallsBackToNewSeries(t *testing.T) {
	source := newTestKeepa(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"products": [{
				"asin": "B09Y2MYL5C",
				"title": "Sony WH-1000XM5",
				"csv": [null, [7000000, 2599900]]
			}]
		}`)
	})

	result, err := source.FetchHistory(context.Background(), "B09Y2MYL5C", "US")
	require.NoError(t, err)
	require.Len(t, result.Points, 1)
	assert.Equal(t, 25999.0, result.Points[0].Price)
}

func TestKeepaNotConfigured(t *testing.T) {
	source := NewKeepaSource("", 30, testLogger())

	_, err := source.FetchHistory(context.Background(), "B09Y2MYL5C", "IN")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestKeepaRateLimited(t *testing.T) {
	source := newTestKeepa(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := source.FetchHistory(context.Background(), "B09Y2MYL5C", "IN")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestKeepaNoProducts(t *testing.T) {
	source := newTestKeepa(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"products": []}`)
	})

	_, err := source.FetchHistory(context.Background(), "B09Y2MYL5C", "IN")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestKeepaAllOutOfStock(t *testing.T) {
	source := newTestKeepa(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"products": [{"asin": "B09Y2MYL5C", "csv": [[7000000, -1, 7010000, -1]]}]
		}`)
	})

	_, err := source.FetchHistory(context.Background(), "B09Y2MYL5C", "IN")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestKeepaErrorBody(t *testing.T) {
	source := newTestKeepa(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": {"message": "invalid api key"}}`)
	})

	_, err := source.FetchHistory(context.Background(), "B09Y2MYL5C", "IN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestDecodeKeepaSeriesEpoch(t *testing.T) {
	// 0 minutes after the epoch is exactly 2011-01-01
	points := decodeKeepaSeries([]float64{0, 10000})
	require.Len(t, points, 1)
	assert.Equal(t, 100.0, points[0].Price)
	assert.Equal(t, 2011, points[0].Timestamp.Year())
}
