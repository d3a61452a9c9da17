package marketv1

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a market.
type Status string

const (
	// StatusActive represents a market accepting orders.
	StatusActive Status = "active"
	// StatusInactive represents a market temporarily closed to orders.
	StatusInactive Status = "inactive"
	// StatusDeprecated represents a market permanently retired.
	StatusDeprecated Status = "deprecated"
)

var (
	// ErrMarketNotFound indicates an unknown market id.
	ErrMarketNotFound = errors.New("market not found")
	// ErrMarketInactive indicates a market that is not accepting orders.
	ErrMarketInactive = errors.New("market is not active")
)

// Market maps an asset pair to a market identifier and lifecycle status.
// The core consults it to resolve the asset pair for an order; it never
// mutates it.
type Market struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	BuyAsset          string    `json:"buy_asset"`
	SellAsset         string    `json:"sell_asset"`
	Description       string    `json:"description,omitempty"`
	MinOrderSize      string    `json:"min_order_size,omitempty"`
	PricePrecision    int       `json:"price_precision,omitempty"`
	QuantityPrecision int       `json:"quantity_precision,omitempty"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
