// Package pricesource contains the adapters that answer "what has this product
// cost recently": the Keepa API, the Apify actor, the Product Advertising API
// and the page scraper of last resort. All of them speak the same small
// contract so the fallback chain can try them in order.
package pricesource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghostprice/price-tracker/internal/models"
)

var (
	// ErrNotConfigured means the adapter has no key/token and cannot run
	ErrNotConfigured = errors.New("source not configured")
	// ErrNoData means the source answered but had no usable price points
	ErrNoData = errors.New("no price data")
	// ErrBlocked means bot protection intercepted the request
	ErrBlocked = errors.New("blocked by bot protection")
	// ErrQuotaExceeded means the paid source ran out of credits
	ErrQuotaExceeded = errors.New("source credits exhausted")
	// ErrRateLimited means the source asked us to slow down
	ErrRateLimited = errors.New("source rate limited")
	// ErrEligibilityPending means the API account is still waiting for approval
	ErrEligibilityPending = errors.New("api eligibility pending")
)

// Point is one historical price at one moment
type Point struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is what an adapter learned about a product
type Result struct {
	ASIN         string
	Title        string
	CurrentPrice float64
	Points       []Point
	Source       string
}

// Observations converts the result's points into storable observations tagged
// with the result's source. Non-positive prices are dropped.
func (r *Result) Observations(marketplace, currency string) []models.PriceObservation {
	observations := make([]models.PriceObservation, 0, len(r.Points))
	for _, point := range r.Points {
		if point.Price <= 0 {
			continue
		}
		observations = append(observations, models.PriceObservation{
			ASIN:        r.ASIN,
			Price:       point.Price,
			Currency:    currency,
			Marketplace: marketplace,
			Source:      r.Source,
			Timestamp:   point.Timestamp,
		})
	}
	return observations
}

// Source is a price history provider. FetchHistory returns an error for any
// reason the source cannot answer; callers treat every error as "try the next
// one".
type Source interface {
	Name() string
	FetchHistory(ctx context.Context, asin, marketplace string) (*Result, error)
}

// marketplaceDomains maps marketplace codes to Amazon storefront hosts
var marketplaceDomains = map[string]string{
	"IN": "www.amazon.in",
	"US": "www.amazon.com",
	"UK": "www.amazon.co.uk",
	"DE": "www.amazon.de",
	"CA": "www.amazon.ca",
}

// Domain returns the storefront host for a marketplace code, defaulting to
// the Indian storefront
func Domain(marketplace string) string {
	if host, ok := marketplaceDomains[marketplace]; ok {
		return host
	}
	return marketplaceDomains["IN"]
}

// ProductURL builds the canonical product page URL for an ASIN
func ProductURL(asin, marketplace string) string {
	return fmt.Sprintf("https://%s/dp/%s", Domain(marketplace), asin)
}
