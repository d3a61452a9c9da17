package orderv1

import (
	"context"

	tradev1 "github.com/Ephibbs/PanoMarket/internal/domain/trade/v1"
	"github.com/shopspring/decimal"
)

// SubmitResult is the outcome of submitting an order to a market book.
type SubmitResult struct {
	Trades    []*tradev1.Trade `json:"trades"`
	Remaining decimal.Decimal  `json:"remainingQuantity"`
	Status    Status           `json:"orderStatus"`
}

// BookView is the resting state of a market book: asks sorted by price
// ascending, bids sorted by price descending. Filled orders are excluded.
type BookView struct {
	Asks []*Order `json:"asks"`
	Bids []*Order `json:"bids"`
}

// Book is a single market shard. Implementations serialize all operations,
// so each call is atomic with respect to the others on the same shard.
type Book interface {
	SubmitOrder(ctx context.Context, order *Order) (*SubmitResult, error)
	GetOrderBook(ctx context.Context) (*BookView, error)
	GetUserOrders(ctx context.Context, userID string) ([]*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}
