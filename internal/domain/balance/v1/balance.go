package balancev1

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount indicates a non-positive amount passed to a ledger operation.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Entry is a single (user, asset) balance row. A pair not yet seen is
// implicitly (0, 0). Available and reserved only change through the ledger
// operations; they never go negative.
type Entry struct {
	UserID    string          `json:"user_id"`
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Total is the conserved quantity: available + reserved.
func (e *Entry) Total() decimal.Decimal {
	return e.Available.Add(e.Reserved)
}
