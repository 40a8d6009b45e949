package fallback

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostprice/price-tracker/internal/models"
)

func TestSynthesizeEndsAtCurrentPrice(t *testing.T) {
	result := Synthesize("B09TESTASIN", 24990, 30)

	require.Len(t, result.Points, 31)
	assert.Equal(t, models.SourceSynthetic, result.Source)
	assert.Equal(t, 24990.0, result.CurrentPrice)

	last := result.Points[len(result.Points)-1]
	assert.Equal(t, 24990.0, last.Price)
	assert.WithinDuration(t, time.Now(), last.Timestamp, 5*time.Second)
}

func TestSynthesizeStaysWithinBand(t *testing.T) {
	const current = 1000.0
	result := Synthesize("B09TESTASIN", current, 30)

	for _, point := range result.Points[:len(result.Points)-1] {
		assert.GreaterOrEqual(t, point.Price, current*0.90)
		assert.LessOrEqual(t, point.Price, current*1.15)
		assert.Zero(t, math.Mod(point.Price, 10), "generated prices are rounded to the nearest 10")
	}
}

func TestSynthesizeTimestampsAscendDaily(t *testing.T) {
	result := Synthesize("B09TESTASIN", 500, 7)

	require.Len(t, result.Points, 8)
	for i := 1; i < len(result.Points); i++ {
		assert.True(t, result.Points[i].Timestamp.After(result.Points[i-1].Timestamp),
			"point %d should be newer than point %d", i, i-1)
	}

	oldest := result.Points[0].Timestamp
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -7), oldest, 5*time.Second)
}

func TestSynthesizeSmallPricesStayPositive(t *testing.T) {
	result := Synthesize("B09TESTASIN", 4, 30)

	for _, point := range result.Points {
		assert.Greater(t, point.Price, 0.0)
	}
}
