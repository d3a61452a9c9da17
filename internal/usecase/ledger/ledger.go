package ledger

import (
	"context"
	"sort"
	"time"

	balancev1 "github.com/Ephibbs/PanoMarket/internal/domain/balance/v1"
	tradev1 "github.com/Ephibbs/PanoMarket/internal/domain/trade/v1"
	"github.com/Ephibbs/PanoMarket/pkg/errors"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/Ephibbs/PanoMarket/pkg/shard"
	"github.com/shopspring/decimal"
)

type balanceKey struct {
	userID string
	asset  string
}

// Ledger is the single consistency domain over all (user, asset) balances.
// All state is confined to the shard goroutine; every operation is atomic
// and linearizable with respect to every other operation on the ledger.
type Ledger struct {
	logger logger.Interface
	shard  *shard.Shard

	// owned by the shard goroutine
	balances map[balanceKey]*balancev1.Entry
	settled  map[string]struct{} // trade ids already applied
}

var _ balancev1.Ledger = (*Ledger)(nil)

// New creates the ledger shard and starts its processing goroutine.
func New(log logger.Interface, queueSize int) *Ledger {
	return &Ledger{
		logger:   log,
		shard:    shard.New(queueSize),
		balances: make(map[balanceKey]*balancev1.Entry),
		settled:  make(map[string]struct{}),
	}
}

// Close shuts the shard down after draining pending requests.
func (l *Ledger) Close() {
	l.shard.Close()
}

// entry returns the balance row for (userID, asset), creating the implicit
// (0, 0) row on first touch. Shard goroutine only.
func (l *Ledger) entry(userID, asset string) *balancev1.Entry {
	key := balanceKey{userID: userID, asset: asset}
	e, ok := l.balances[key]
	if !ok {
		e = &balancev1.Entry{
			UserID:    userID,
			Asset:     asset,
			Available: decimal.Zero,
			Reserved:  decimal.Zero,
		}
		l.balances[key] = e
	}
	return e
}

// Deposit credits amount to the user's available balance.
func (l *Ledger) Deposit(ctx context.Context, userID, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return balancev1.ErrInvalidAmount
	}

	return l.shard.Do(ctx, func() {
		e := l.entry(userID, asset)
		e.Available = e.Available.Add(amount)
		e.UpdatedAt = time.Now()
	})
}

// Reserve moves amount from available to reserved. Returns false without
// mutating state when the available balance is insufficient.
func (l *Ledger) Reserve(ctx context.Context, userID, asset string, amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() {
		return false, balancev1.ErrInvalidAmount
	}

	var ok bool
	err := l.shard.Do(ctx, func() {
		e := l.entry(userID, asset)
		if e.Available.LessThan(amount) {
			return
		}
		e.Available = e.Available.Sub(amount)
		e.Reserved = e.Reserved.Add(amount)
		e.UpdatedAt = time.Now()
		ok = true
	})
	return ok, err
}

// Release moves amount from reserved back to available. Returns false
// without mutating state when the reserved balance is insufficient.
func (l *Ledger) Release(ctx context.Context, userID, asset string, amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() {
		return false, balancev1.ErrInvalidAmount
	}

	var ok bool
	err := l.shard.Do(ctx, func() {
		e := l.entry(userID, asset)
		if e.Reserved.LessThan(amount) {
			return
		}
		e.Reserved = e.Reserved.Sub(amount)
		e.Available = e.Available.Add(amount)
		e.UpdatedAt = time.Now()
		ok = true
	})
	return ok, err
}

// Transfer debits the sender's reserved balance and credits the recipient's
// available balance. The amount was already removed from the sender's
// available balance at reservation time, so settlement must not touch the
// sender's available balance again.
func (l *Ledger) Transfer(ctx context.Context, fromUserID, toUserID, asset string, amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() {
		return false, balancev1.ErrInvalidAmount
	}

	var ok bool
	err := l.shard.Do(ctx, func() {
		ok = l.transferLocked(fromUserID, toUserID, asset, amount)
	})
	return ok, err
}

// transferLocked applies a reserved-to-available transfer. Shard goroutine only.
func (l *Ledger) transferLocked(fromUserID, toUserID, asset string, amount decimal.Decimal) bool {
	from := l.entry(fromUserID, asset)
	if from.Reserved.LessThan(amount) {
		return false
	}

	now := time.Now()
	from.Reserved = from.Reserved.Sub(amount)
	from.UpdatedAt = now

	to := l.entry(toUserID, asset)
	to.Available = to.Available.Add(amount)
	to.UpdatedAt = now

	return true
}

// SettleTrade applies both legs of a trade atomically, keyed by trade id so
// replays are no-ops. Either both reserved balances cover their leg and both
// transfers apply, or nothing is mutated and a settlement error is returned
// for the reconciler to retry.
func (l *Ledger) SettleTrade(ctx context.Context, trade *tradev1.Trade) (bool, error) {
	notional := trade.Notional()
	if !notional.IsPositive() || !trade.Quantity.IsPositive() {
		return false, balancev1.ErrInvalidAmount
	}

	var (
		applied   bool
		settleErr error
	)
	err := l.shard.Do(ctx, func() {
		if _, done := l.settled[trade.ID]; done {
			return
		}

		buyer := l.entry(trade.BuyUserID, trade.BuyAsset)
		seller := l.entry(trade.SellUserID, trade.SellAsset)
		if buyer.Reserved.LessThan(notional) || seller.Reserved.LessThan(trade.Quantity) {
			settleErr = errors.NewErrorDetailsWithObject(
				"reserved balance does not cover trade settlement",
				string(errors.SettlementFailedError),
				"trade_id",
				trade,
			)
			return
		}

		l.transferLocked(trade.BuyUserID, trade.SellUserID, trade.BuyAsset, notional)
		l.transferLocked(trade.SellUserID, trade.BuyUserID, trade.SellAsset, trade.Quantity)
		l.settled[trade.ID] = struct{}{}
		applied = true
	})
	if err != nil {
		return false, err
	}
	if settleErr != nil {
		return false, settleErr
	}

	if applied {
		l.logger.DebugContext(ctx, "trade settled", logger.Field{
			Key:   "tradeID",
			Value: trade.ID,
		})
	}
	return applied, nil
}

// GetUserBalances returns a snapshot of the user's entries, sorted by asset.
func (l *Ledger) GetUserBalances(ctx context.Context, userID string) ([]balancev1.Entry, error) {
	var entries []balancev1.Entry
	err := l.shard.Do(ctx, func() {
		for key, e := range l.balances {
			if key.userID == userID {
				entries = append(entries, *e)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Asset < entries[j].Asset
	})
	return entries, nil
}

// GetAllBalances returns a snapshot of every entry, sorted by user then asset.
func (l *Ledger) GetAllBalances(ctx context.Context) ([]balancev1.Entry, error) {
	var entries []balancev1.Entry
	err := l.shard.Do(ctx, func() {
		for _, e := range l.balances {
			entries = append(entries, *e)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UserID != entries[j].UserID {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].Asset < entries[j].Asset
	})
	return entries, nil
}
