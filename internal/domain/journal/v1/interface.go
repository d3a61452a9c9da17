package journalv1

import (
	"context"

	tradev1 "github.com/Ephibbs/PanoMarket/internal/domain/trade/v1"
)

// Journal is the durable saga state for the settlement pipeline. Entries are
// written before the step they cover and removed once the step completes, so
// a crash leaves behind exactly the work the reconciler must replay.
type Journal interface {
	AddReservation(ctx context.Context, r *PendingReservation) error
	RemoveReservation(ctx context.Context, orderID string) error
	PendingReservations(ctx context.Context) ([]*PendingReservation, error)

	AddTrades(ctx context.Context, trades []*tradev1.Trade) error
	RemoveTrade(ctx context.Context, tradeID string) error
	PendingTrades(ctx context.Context) ([]*tradev1.Trade, error)
}
