// Package pricestats turns raw price history into the numbers and verdicts the
// extension shows: window aggregates, a misleading-discount check, a buy
// recommendation and a trend direction.
package pricestats

import (
	"math"

	"github.com/ghostprice/price-tracker/internal/models"
)

const (
	RecommendBuyNow    = "BUY_NOW"
	RecommendGoodDeal  = "GOOD_DEAL"
	RecommendWait      = "WAIT"
	RecommendFairPrice = "FAIR_PRICE"
	RecommendUnknown   = "UNKNOWN"
)

const (
	TrendDropping = "dropping"
	TrendRising   = "rising"
	TrendStable   = "stable"
)

// Stats summarizes a product's price behavior inside a trailing day window
type Stats struct {
	Min        float64 `json:"min_price"`
	Max        float64 `json:"max_price"`
	Avg        float64 `json:"avg_price"`
	Count      int     `json:"data_points"`
	Current    float64 `json:"current_price"`
	PriceRange float64 `json:"price_range"`
	Volatility float64 `json:"volatility_percent"`
	IsLowest   bool    `json:"is_lowest_price"`
	IsHighest  bool    `json:"is_highest_price"`
	WindowDays int     `json:"window_days"`
	Source     string  `json:"source,omitempty"`
}

// Verdict is the misleading-discount assessment for the currently advertised
// price. RealDiscount measures against the window maximum, not against
// whatever strike-through price the listing shows.
type Verdict struct {
	Misleading   bool    `json:"is_misleading"`
	RealDiscount float64 `json:"real_discount_percent"`
	WindowMax    float64 `json:"window_max"`
	WindowAvg    float64 `json:"window_avg"`
	Reason       string  `json:"reason,omitempty"`
}

// Compute builds Stats from the observations inside the window. The current
// price falls back to the latest observation when the caller has none. Returns
// nil when there is no history at all.
func Compute(history []models.PriceObservation, current float64, windowDays int) *Stats {
	if len(history) == 0 {
		return nil
	}

	latest := history[0]
	min := history[0].Price
	max := history[0].Price
	sum := 0.0

	for _, obs := range history {
		if obs.Price < min {
			min = obs.Price
		}
		if obs.Price > max {
			max = obs.Price
		}
		if obs.Timestamp.After(latest.Timestamp) {
			latest = obs
		}
		sum += obs.Price
	}

	if current <= 0 {
		current = latest.Price
	}

	avg := sum / float64(len(history))

	s := &Stats{
		Min:        min,
		Max:        max,
		Avg:        round2(avg),
		Count:      len(history),
		Current:    current,
		PriceRange: round2(max - min),
		IsLowest:   current <= min,
		IsHighest:  current >= max,
		WindowDays: windowDays,
		Source:     latest.Source,
	}
	if avg > 0 {
		s.Volatility = round2((max - min) / avg * 100)
	}

	return s
}

// FromAggregate builds Stats from a SQL-side window aggregate, for callers
// that never materialize the history rows
func FromAggregate(min, max, avg float64, count int, current float64, windowDays int) *Stats {
	if count == 0 {
		return nil
	}
	if current <= 0 {
		current = avg
	}

	s := &Stats{
		Min:        min,
		Max:        max,
		Avg:        round2(avg),
		Count:      count,
		Current:    current,
		PriceRange: round2(max - min),
		IsLowest:   current <= min,
		IsHighest:  current >= max,
		WindowDays: windowDays,
	}
	if avg > 0 {
		s.Volatility = round2((max - min) / avg * 100)
	}

	return s
}

// AssessDiscount flags discounts that look better than they are. Two patterns
// count as misleading: the current price sits at the top of its recent range
// (current >= max * 0.95), or the range ceiling itself is inflated well above
// the average (max > avg * 1.15), the raise-before-the-sale pattern.
func (s *Stats) AssessDiscount() Verdict {
	v := Verdict{
		WindowMax: s.Max,
		WindowAvg: s.Avg,
	}
	if s.Max > 0 {
		v.RealDiscount = round2((s.Max - s.Current) / s.Max * 100)
	}

	switch {
	case s.Current >= s.Max*0.95:
		v.Misleading = true
		v.Reason = "current price is at the top of its recent range"
	case s.Avg > 0 && s.Max > s.Avg*1.15:
		v.Misleading = true
		v.Reason = "reference price looks inflated against the recent average"
	}

	return v
}

// Recommendation maps the current price's position in the window to a simple
// buy signal
func (s *Stats) Recommendation() string {
	if s == nil || s.Count == 0 {
		return RecommendUnknown
	}

	switch {
	case s.Current <= s.Min*1.01:
		return RecommendBuyNow
	case s.Current <= s.Avg*0.95:
		return RecommendGoodDeal
	case s.Current >= s.Avg*1.10:
		return RecommendWait
	default:
		return RecommendFairPrice
	}
}

// Trend reports where the current price sits relative to the window average
func (s *Stats) Trend() string {
	if s == nil || s.Count == 0 || s.Avg <= 0 {
		return TrendStable
	}

	switch {
	case s.Current < s.Avg*0.9:
		return TrendDropping
	case s.Current > s.Avg*1.1:
		return TrendRising
	default:
		return TrendStable
	}
}

// SavingsFromMax is how much cheaper the current price is than the window peak
func (s *Stats) SavingsFromMax() float64 {
	if s == nil || s.Current >= s.Max {
		return 0
	}
	return round2(s.Max - s.Current)
}

// PotentialSavings is how much cheaper the product has been inside the window
func (s *Stats) PotentialSavings() float64 {
	if s == nil || s.Current <= s.Min {
		return 0
	}
	return round2(s.Current - s.Min)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
