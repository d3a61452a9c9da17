package orderv1

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the side of an order.
type Side string

const (
	// SideBuy represents a buy order.
	SideBuy Side = "buy"
	// SideSell represents a sell order.
	SideSell Side = "sell"
)

// Status represents the lifecycle state of an order. Orders move
// open -> partiallyfilled -> filled, or open -> filled directly.
// There is no transition out of filled.
type Status string

const (
	// StatusOpen represents an order with its full quantity remaining.
	StatusOpen Status = "open"
	// StatusPartiallyFilled represents an order with some, but not all, quantity filled.
	StatusPartiallyFilled Status = "partiallyfilled"
	// StatusFilled represents a fully executed order. Terminal.
	StatusFilled Status = "filled"
)

var (
	// ErrMissingField indicates a required order field is empty.
	ErrMissingField = errors.New("missing required order field")
	// ErrInvalidPrice indicates a non-positive order price.
	ErrInvalidPrice = errors.New("price must be positive")
	// ErrInvalidQuantity indicates a non-positive order quantity.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInvalidSide indicates a side other than buy or sell.
	ErrInvalidSide = errors.New("side must be buy or sell")
	// ErrDuplicateOrder indicates an order id already known to the book.
	ErrDuplicateOrder = errors.New("order already exists")
	// ErrOrderNotFound indicates an order id unknown to the book.
	ErrOrderNotFound = errors.New("order not found")
)

// Order represents a single order owned by a market book shard.
type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	MarketID  string          `json:"market_id"`
	BuyAsset  string          `json:"buy_asset"`
	SellAsset string          `json:"sell_asset"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Remaining decimal.Decimal `json:"remaining_quantity"`
	Side      Side            `json:"side"`
	Status    Status          `json:"status"`
	// Sequence is assigned by the owning shard and is strictly monotonic,
	// used as the FIFO tie-break for equal prices.
	Sequence  int64     `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsBuy checks if the order is a buy order.
func (o *Order) IsBuy() bool {
	return o.Side == SideBuy
}

// IsSell checks if the order is a sell order.
func (o *Order) IsSell() bool {
	return o.Side == SideSell
}

// IsFilled checks if the order has no remaining quantity.
func (o *Order) IsFilled() bool {
	return o.Status == StatusFilled
}

// Fill reduces the remaining quantity by qty and recomputes the status.
// The caller guarantees 0 < qty <= remaining.
func (o *Order) Fill(qty decimal.Decimal, at time.Time) {
	o.Remaining = o.Remaining.Sub(qty)
	o.Status = statusFor(o.Quantity, o.Remaining)
	o.UpdatedAt = at
}

// statusFor derives the order status from the quantity invariant:
// filled iff remaining = 0, open iff remaining = quantity, otherwise
// partially filled.
func statusFor(quantity, remaining decimal.Decimal) Status {
	switch {
	case remaining.IsZero():
		return StatusFilled
	case remaining.Equal(quantity):
		return StatusOpen
	default:
		return StatusPartiallyFilled
	}
}

// Validate checks the required fields of an order before it reaches a shard.
func (o *Order) Validate() error {
	if o.ID == "" || o.UserID == "" || o.MarketID == "" {
		return ErrMissingField
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return ErrInvalidSide
	}
	if !o.Price.IsPositive() {
		return ErrInvalidPrice
	}
	if !o.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	return nil
}

// Clone returns a copy of the order safe to hand outside the owning shard.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}
