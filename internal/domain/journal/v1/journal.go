package journalv1

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingReservation records funds reserved for an order that has not yet
// been recorded by its market book. The reconciler releases reservations
// that stay pending past the grace period, since the order never reached
// the book.
type PendingReservation struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	MarketID  string          `json:"market_id"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
