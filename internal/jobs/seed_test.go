package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ghostprice/price-tracker/internal/models"
	"github.com/ghostprice/price-tracker/internal/pricesource"
	"github.com/ghostprice/price-tracker/internal/storage"
)

func newSeedStore(t *testing.T) *storage.SeedStore {
	t.Helper()
	seeds, err := storage.NewSeedStore(filepath.Join(t.TempDir(), "seeds.json"))
	require.NoError(t, err)
	return seeds
}

func TestRunSeedImport(t *testing.T) {
	m, store, _, resolver := newTestManager(t)
	seeds := newSeedStore(t)
	m.WithSeedStore(seeds)
	ctx := context.Background()

	require.NoError(t, seeds.Add(&storage.Candidate{ASIN: "B0SEEDGOOD"}))
	require.NoError(t, seeds.Add(&storage.Candidate{ASIN: "B0SEEDBAD1"}))
	require.NoError(t, seeds.Add(&storage.Candidate{ASIN: "bad"}))

	now := time.Now()
	resolver.On("Resolve", mock.Anything, "B0SEEDGOOD", "IN", 0.0).
		Return(&pricesource.Result{
			ASIN:         "B0SEEDGOOD",
			Title:        "Sony WH-1000XM4 Wireless Headphones",
			CurrentPrice: 24990,
			Source:       models.SourceKeepa,
			Points: []pricesource.Point{
				{Price: 26990, Timestamp: now.AddDate(0, 0, -20)},
				{Price: 25990, Timestamp: now.AddDate(0, 0, -10)},
				{Price: 24990, Timestamp: now},
			},
		}, nil)
	resolver.On("Resolve", mock.Anything, "B0SEEDBAD1", "IN", 0.0).
		Return(nil, pricesource.ErrNoData)

	imported, failed, err := m.RunSeedImport(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 2, failed)

	product, err := store.GetProduct(ctx, "B0SEEDGOOD")
	require.NoError(t, err)
	assert.Equal(t, "headphones", product.Category, "category comes from the resolved title")

	history, err := store.History(ctx, "B0SEEDGOOD", 30)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	good, _ := seeds.Get("B0SEEDGOOD")
	assert.Equal(t, storage.StatusImported, good.Status)

	bad, _ := seeds.Get("B0SEEDBAD1")
	assert.Equal(t, storage.StatusFailed, bad.Status)
	assert.NotEmpty(t, bad.Error)

	invalid, _ := seeds.Get("bad")
	assert.Equal(t, storage.StatusSkipped, invalid.Status)
}

func TestRunSeedImportKeepsFileCategory(t *testing.T) {
	m, store, _, resolver := newTestManager(t)
	seeds := newSeedStore(t)
	m.WithSeedStore(seeds)
	ctx := context.Background()

	// The hand-curated category wins over the title detector.
	require.NoError(t, seeds.Add(&storage.Candidate{
		ASIN:     "B0SEEDCURA",
		Title:    "Generic Gadget Doohickey",
		Category: "pc_components",
	}))

	resolver.On("Resolve", mock.Anything, "B0SEEDCURA", "IN", 0.0).
		Return(&pricesource.Result{
			ASIN:   "B0SEEDCURA",
			Source: models.SourceScraper,
			Points: []pricesource.Point{{Price: 3499, Timestamp: time.Now()}},
		}, nil)

	imported, failed, err := m.RunSeedImport(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 0, failed)

	product, err := store.GetProduct(ctx, "B0SEEDCURA")
	require.NoError(t, err)
	assert.Equal(t, "pc_components", product.Category)
	assert.Equal(t, "Generic Gadget Doohickey", product.Title, "file title fills in when the source has none")
}

func TestRunSeedImportWithoutStore(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	_, _, err := m.RunSeedImport(context.Background())
	assert.ErrorContains(t, err, "no seed store configured")
}

func TestRunSeedImportNothingPending(t *testing.T) {
	m, _, _, resolver := newTestManager(t)
	m.WithSeedStore(newSeedStore(t))

	imported, failed, err := m.RunSeedImport(context.Background())
	require.NoError(t, err)
	assert.Zero(t, imported)
	assert.Zero(t, failed)
	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
