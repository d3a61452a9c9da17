package snapshotv1

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookOrder is a resting order captured in a snapshot.
type BookOrder struct {
	OrderID   string          `json:"orderID"`
	UserID    string          `json:"userID"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Remaining decimal.Decimal `json:"remaining"`
	Side      string          `json:"side"`
	Sequence  int64           `json:"sequence"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Snapshot is the persisted resting state of one market book shard.
type Snapshot struct {
	MarketID string      `json:"marketID"`
	Sequence int64       `json:"sequence"`
	Orders   []BookOrder `json:"orders"`
	TakenAt  time.Time   `json:"takenAt"`
}
