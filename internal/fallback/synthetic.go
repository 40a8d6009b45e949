package fallback

import (
	"math"
	"math/rand"
	"time"

	"github.com/ghostprice/price-tracker/internal/models"
	"github.com/ghostprice/price-tracker/internal/pricesource"
)

// Synthesize builds a plausible history ending at the known current price:
// one point per day going back, each within -10%/+15% of current and rounded
// to the nearest 10, then the current price itself as the final point. The
// result is tagged synthetic so downstream consumers can tell it apart from
// observed data.
func Synthesize(asin string, currentPrice float64, days int) *pricesource.Result {
	now := time.Now()
	points := make([]pricesource.Point, 0, days+1)

	for day := days; day >= 1; day-- {
		variation := -0.10 + rand.Float64()*0.25
		price := math.Round(currentPrice*(1+variation)/10) * 10
		if price <= 0 {
			price = math.Round(currentPrice)
		}
		points = append(points, pricesource.Point{
			Price:     price,
			Timestamp: now.AddDate(0, 0, -day),
		})
	}

	points = append(points, pricesource.Point{
		Price:     currentPrice,
		Timestamp: now,
	})

	return &pricesource.Result{
		ASIN:         asin,
		CurrentPrice: currentPrice,
		Points:       points,
		Source:       models.SourceSynthetic,
	}
}
