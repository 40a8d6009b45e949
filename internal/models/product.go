package models

import (
	"regexp"
	"time"
)

var asinPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// IsValidASIN reports whether s looks like an Amazon product code:
// exactly ten uppercase alphanumeric characters.
func IsValidASIN(s string) bool {
	return asinPattern.MatchString(s)
}

// TrackedProduct is a product the tracker watches. Products are created the
// first time a price is observed for them (by the extension, the discovery
// job or the seed importer) and are never deleted.
type TrackedProduct struct {
	ASIN          string    `json:"asin"`
	Title         string    `json:"product_title"`
	Category      string    `json:"category,omitempty"`
	Marketplace   string    `json:"marketplace"`
	Currency      string    `json:"currency"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// NewTrackedProduct creates a product with marketplace defaults applied.
func NewTrackedProduct(asin, title string) *TrackedProduct {
	now := time.Now()
	return &TrackedProduct{
		ASIN:          asin,
		Title:         title,
		Marketplace:   DefaultMarketplace,
		Currency:      DefaultCurrency,
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}
}

// Validate returns a list of validation problems, empty when the product is
// storable.
func (p *TrackedProduct) Validate() []string {
	var problems []string

	if p.ASIN == "" {
		problems = append(problems, "asin is required")
	} else if !IsValidASIN(p.ASIN) {
		problems = append(problems, "asin must be 10 uppercase alphanumeric characters")
	}

	if p.Title == "" {
		problems = append(problems, "product title is required")
	}

	if p.Marketplace == "" {
		problems = append(problems, "marketplace is required")
	}

	return problems
}

func (p *TrackedProduct) IsValid() bool {
	return len(p.Validate()) == 0
}

// Marketplace defaults. The tracker started on the Indian marketplace; both
// are overridable per request and per configuration.
const (
	DefaultMarketplace = "IN"
	DefaultCurrency    = "INR"
)

// Observation sources. The source column is free text so adapters can tag
// themselves, but these are the tags the rest of the system looks for.
const (
	SourceExtension = "extension"
	SourceKeepa     = "keepa"
	SourceApify     = "apify"
	SourceScraper   = "scraper"
	SourcePAAPI     = "paapi"
	SourceSynthetic = "synthetic"
)

// PriceObservation is one append-only price snapshot for a product.
// Observations are never mutated; the retention sweep is the only delete path.
type PriceObservation struct {
	ID          int64     `json:"id,omitempty"`
	ASIN        string    `json:"asin"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	Marketplace string    `json:"marketplace"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewObservation creates an observation stamped now.
func NewObservation(asin string, price float64, source string) *PriceObservation {
	return &PriceObservation{
		ASIN:        asin,
		Price:       price,
		Currency:    DefaultCurrency,
		Marketplace: DefaultMarketplace,
		Source:      source,
		Timestamp:   time.Now(),
	}
}

// Validate returns a list of validation problems, empty when the observation
// is storable.
func (o *PriceObservation) Validate() []string {
	var problems []string

	if o.ASIN == "" {
		problems = append(problems, "asin is required")
	} else if !IsValidASIN(o.ASIN) {
		problems = append(problems, "asin must be 10 uppercase alphanumeric characters")
	}

	if o.Price <= 0 {
		problems = append(problems, "price must be greater than zero")
	}

	if o.Source == "" {
		problems = append(problems, "source is required")
	}

	if o.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}

	return problems
}

func (o *PriceObservation) IsValid() bool {
	return len(o.Validate()) == 0
}
