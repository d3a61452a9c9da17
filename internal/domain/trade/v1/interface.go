package tradev1

import "context"

// Store is the append-only trade history. Append is idempotent on trade id:
// re-appending an already stored trade is a no-op.
type Store interface {
	Append(ctx context.Context, trades []*Trade) error
	GetAllTrades(ctx context.Context) ([]*Trade, error)
	GetUserTrades(ctx context.Context, userID string) ([]*Trade, error)
	GetOrderTrades(ctx context.Context, orderID string) ([]*Trade, error)
	GetMarketTrades(ctx context.Context, marketID string) ([]*Trade, error)
}

// Publisher pushes executed trades to the market's notification channel.
// Delivery is at-most-once and best-effort; subscribers needing completeness
// must query the trade store instead.
type Publisher interface {
	Publish(ctx context.Context, marketID string, trades []*Trade) error
}
