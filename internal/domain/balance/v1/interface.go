package balancev1

import (
	"context"

	tradev1 "github.com/Ephibbs/PanoMarket/internal/domain/trade/v1"
	"github.com/shopspring/decimal"
)

// Ledger is the single shard owning all user/asset balances. Implementations
// serialize all operations, so each call is atomic with respect to the others.
//
// Reserve, Release and Transfer return false (without error) when the
// precondition on the source balance does not hold; no state is mutated in
// that case.
type Ledger interface {
	// Deposit credits amount to the user's available balance.
	Deposit(ctx context.Context, userID, asset string, amount decimal.Decimal) error

	// Reserve moves amount from available to reserved, earmarking it for a
	// pending order. Returns false when available < amount.
	Reserve(ctx context.Context, userID, asset string, amount decimal.Decimal) (bool, error)

	// Release is the inverse of Reserve. Returns false when reserved < amount.
	Release(ctx context.Context, userID, asset string, amount decimal.Decimal) (bool, error)

	// Transfer moves funds earmarked by a prior reservation: it debits the
	// sender's reserved balance and credits the recipient's available balance,
	// creating the recipient's entry if absent. Returns false when the
	// sender's reserved balance < amount.
	Transfer(ctx context.Context, fromUserID, toUserID, asset string, amount decimal.Decimal) (bool, error)

	// SettleTrade applies both legs of a trade atomically and idempotently,
	// keyed by trade id: price*quantity of the buy asset from the buyer's
	// reserved balance to the seller, and quantity of the sell asset from the
	// seller's reserved balance to the buyer. Returns false without error
	// when the trade was already settled. Neither leg is applied when either
	// reserved balance is insufficient.
	SettleTrade(ctx context.Context, trade *tradev1.Trade) (bool, error)

	// GetUserBalances returns a snapshot of the user's entries, sorted by asset.
	GetUserBalances(ctx context.Context, userID string) ([]Entry, error)

	// GetAllBalances returns a snapshot of every entry, sorted by user then asset.
	GetAllBalances(ctx context.Context) ([]Entry, error)
}
