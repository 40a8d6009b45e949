package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/ghostprice/price-tracker/internal/models"
)

const (
	// TypeObservationRecorded is emitted for every price observation written to history
	TypeObservationRecorded = "PRICE_OBSERVATION_RECORDED"
	// TypeDropDetected is emitted when a new observation undercuts the previous latest price
	TypeDropDetected = "PRICE_DROP_DETECTED"
)

// StreamPriceEvents is the Redis stream the relay publishes price events to
const StreamPriceEvents = "ghostprice:price-events"

// PricePayload is the JSON body stored in the outbox and forwarded to consumers
type PricePayload struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	ASIN          string    `json:"asin"`
	Price         float64   `json:"price"`
	PreviousPrice float64   `json:"previous_price,omitempty"`
	Currency      string    `json:"currency"`
	Marketplace   string    `json:"marketplace"`
	Source        string    `json:"source"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewObservationRecorded builds the payload for a freshly recorded observation
func NewObservationRecorded(obs *models.PriceObservation) PricePayload {
	return PricePayload{
		EventID:     uuid.New().String(),
		EventType:   TypeObservationRecorded,
		ASIN:        obs.ASIN,
		Price:       obs.Price,
		Currency:    obs.Currency,
		Marketplace: obs.Marketplace,
		Source:      obs.Source,
		OccurredAt:  obs.Timestamp,
	}
}

// NewDropDetected builds the payload for a price drop against the previous latest price
func NewDropDetected(obs *models.PriceObservation, previousPrice float64) PricePayload {
	return PricePayload{
		EventID:       uuid.New().String(),
		EventType:     TypeDropDetected,
		ASIN:          obs.ASIN,
		Price:         obs.Price,
		PreviousPrice: previousPrice,
		Currency:      obs.Currency,
		Marketplace:   obs.Marketplace,
		Source:        obs.Source,
		OccurredAt:    obs.Timestamp,
	}
}

// DropPercent returns the size of the drop relative to the previous price
func (p PricePayload) DropPercent() float64 {
	if p.PreviousPrice <= 0 {
		return 0
	}
	return (p.PreviousPrice - p.Price) / p.PreviousPrice * 100
}
