package tradev1

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a single execution between a buy and a sell order.
// Trades are immutable once created: the matching shard produces them,
// the coordinator settles and records them, the trade store keeps them.
type Trade struct {
	ID          string          `json:"id"`
	MarketID    string          `json:"market_id"`
	BuyAsset    string          `json:"buy_asset"`
	SellAsset   string          `json:"sell_asset"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	BuyUserID   string          `json:"buy_user_id"`
	SellUserID  string          `json:"sell_user_id"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Notional is the quote amount of the trade: price * quantity of the buy asset.
func (t *Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}
