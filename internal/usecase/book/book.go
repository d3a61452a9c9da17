package book

import (
	"context"
	"sort"
	"time"

	orderv1 "github.com/Ephibbs/PanoMarket/internal/domain/order/v1"
	snapshotv1 "github.com/Ephibbs/PanoMarket/internal/domain/snapshot/v1"
	tradev1 "github.com/Ephibbs/PanoMarket/internal/domain/trade/v1"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/Ephibbs/PanoMarket/pkg/shard"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Book is one market shard: it owns the market's resting orders and runs the
// matching algorithm. All state is confined to the shard goroutine, so a
// submit either fully applies its match or, if the request never reached the
// shard, leaves the book untouched.
type Book struct {
	marketID  string
	buyAsset  string
	sellAsset string

	logger logger.Interface
	shard  *shard.Shard

	// owned by the shard goroutine
	sequence int64
	orders   map[string]*orderv1.Order
	asks     *side
	bids     *side
}

var _ orderv1.Book = (*Book)(nil)

// New creates a market book shard and starts its processing goroutine.
func New(log logger.Interface, marketID, buyAsset, sellAsset string, queueSize int) *Book {
	return &Book{
		marketID:  marketID,
		buyAsset:  buyAsset,
		sellAsset: sellAsset,
		logger:    log,
		shard:     shard.New(queueSize),
		orders:    make(map[string]*orderv1.Order),
		asks:      newAskSide(),
		bids:      newBidSide(),
	}
}

// MarketID returns the market this book belongs to.
func (b *Book) MarketID() string {
	return b.marketID
}

// Close shuts the shard down after draining pending requests.
func (b *Book) Close() {
	b.shard.Close()
}

// SubmitOrder matches the incoming order against the opposite side and then
// records it. The order is recorded even when it produces zero trades; any
// leftover quantity rests on the book.
func (b *Book) SubmitOrder(ctx context.Context, o *orderv1.Order) (*orderv1.SubmitResult, error) {
	o.MarketID = b.marketID
	if err := o.Validate(); err != nil {
		return nil, err
	}

	var (
		result *orderv1.SubmitResult
		dupErr error
	)
	err := b.shard.Do(ctx, func() {
		if _, exists := b.orders[o.ID]; exists {
			dupErr = orderv1.ErrDuplicateOrder
			return
		}

		b.sequence++
		now := time.Now()
		o.BuyAsset = b.buyAsset
		o.SellAsset = b.sellAsset
		o.Sequence = b.sequence
		o.Remaining = o.Quantity
		o.Status = orderv1.StatusOpen
		o.CreatedAt = now
		o.UpdatedAt = now

		trades := b.match(o)

		b.orders[o.ID] = o
		if !o.IsFilled() {
			b.sideFor(o).insert(o)
		}

		result = &orderv1.SubmitResult{
			Trades:    trades,
			Remaining: o.Remaining,
			Status:    o.Status,
		}
	})
	if err != nil {
		return nil, err
	}
	if dupErr != nil {
		return nil, dupErr
	}

	b.logger.DebugContext(ctx, "order submitted", logger.Field{
		Key:   "orderID",
		Value: o.ID,
	}, logger.Field{
		Key:   "trades",
		Value: len(result.Trades),
	}, logger.Field{
		Key:   "status",
		Value: result.Status,
	})

	return result, nil
}

// match runs the continuous double auction with price-time priority: repeat
// while the aggressor has remaining quantity, selecting the best eligible
// resting order on the opposite side, best price first, strict FIFO within a
// price. Finding no eligible order is the normal exit, not an error.
// Shard goroutine only.
func (b *Book) match(aggressor *orderv1.Order) []*tradev1.Trade {
	opposite := b.asks
	eligible := func(price decimal.Decimal) bool {
		return price.LessThanOrEqual(aggressor.Price)
	}
	if aggressor.IsSell() {
		opposite = b.bids
		eligible = func(price decimal.Decimal) bool {
			return price.GreaterThanOrEqual(aggressor.Price)
		}
	}

	var trades []*tradev1.Trade
	for aggressor.Remaining.IsPositive() {
		lvl := opposite.best()
		if lvl == nil || !eligible(lvl.price) {
			break
		}

		resting := lvl.orders[0]
		fill := decimal.Min(aggressor.Remaining, resting.Remaining)
		now := time.Now()
		resting.Fill(fill, now)
		aggressor.Fill(fill, now)

		trades = append(trades, b.newTrade(aggressor, resting, fill, now))

		if resting.IsFilled() {
			lvl.orders = lvl.orders[1:]
			if lvl.empty() {
				opposite.dropBest()
			}
		}
	}
	return trades
}

// newTrade builds the execution record for one fill. The print price is the
// resting order's price: the aggressor never pays worse than its limit, but
// the maker's price governs the print.
func (b *Book) newTrade(aggressor, resting *orderv1.Order, quantity decimal.Decimal, at time.Time) *tradev1.Trade {
	t := &tradev1.Trade{
		ID:        ulid.Make().String(),
		MarketID:  b.marketID,
		BuyAsset:  b.buyAsset,
		SellAsset: b.sellAsset,
		Price:     resting.Price,
		Quantity:  quantity,
		Timestamp: at,
	}
	if aggressor.IsBuy() {
		t.BuyOrderID = aggressor.ID
		t.BuyUserID = aggressor.UserID
		t.SellOrderID = resting.ID
		t.SellUserID = resting.UserID
	} else {
		t.BuyOrderID = resting.ID
		t.BuyUserID = resting.UserID
		t.SellOrderID = aggressor.ID
		t.SellUserID = aggressor.UserID
	}
	return t
}

func (b *Book) sideFor(o *orderv1.Order) *side {
	if o.IsBuy() {
		return b.bids
	}
	return b.asks
}

// GetOrderBook returns the resting orders: asks by price ascending, bids by
// price descending, FIFO within a price.
func (b *Book) GetOrderBook(ctx context.Context) (*orderv1.BookView, error) {
	view := &orderv1.BookView{}
	err := b.shard.Do(ctx, func() {
		for _, o := range b.asks.flatten() {
			view.Asks = append(view.Asks, o.Clone())
		}
		for _, o := range b.bids.flatten() {
			view.Bids = append(view.Bids, o.Clone())
		}
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// GetUserOrders returns all of the user's orders, most recent first.
func (b *Book) GetUserOrders(ctx context.Context, userID string) ([]*orderv1.Order, error) {
	var orders []*orderv1.Order
	err := b.shard.Do(ctx, func() {
		for _, o := range b.orders {
			if o.UserID == userID {
				orders = append(orders, o.Clone())
			}
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Sequence > orders[j].Sequence
	})
	return orders, nil
}

// GetOrder returns a single order by id.
func (b *Book) GetOrder(ctx context.Context, orderID string) (*orderv1.Order, error) {
	var found *orderv1.Order
	err := b.shard.Do(ctx, func() {
		if o, ok := b.orders[orderID]; ok {
			found = o.Clone()
		}
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, orderv1.ErrOrderNotFound
	}
	return found, nil
}

// CreateSnapshot captures the resting state of the book.
func (b *Book) CreateSnapshot(ctx context.Context) (*snapshotv1.Snapshot, error) {
	snapshot := &snapshotv1.Snapshot{MarketID: b.marketID}
	err := b.shard.Do(ctx, func() {
		snapshot.Sequence = b.sequence
		snapshot.TakenAt = time.Now()
		for _, o := range append(b.asks.flatten(), b.bids.flatten()...) {
			snapshot.Orders = append(snapshot.Orders, snapshotv1.BookOrder{
				OrderID:   o.ID,
				UserID:    o.UserID,
				Price:     o.Price,
				Quantity:  o.Quantity,
				Remaining: o.Remaining,
				Side:      string(o.Side),
				Sequence:  o.Sequence,
				CreatedAt: o.CreatedAt,
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Restore rebuilds the resting book from a snapshot, replacing current state.
// Resting orders are re-inserted in sequence order so FIFO priority survives
// the round trip.
func (b *Book) Restore(ctx context.Context, snapshot *snapshotv1.Snapshot) error {
	if snapshot == nil {
		return nil
	}

	restored := make([]snapshotv1.BookOrder, len(snapshot.Orders))
	copy(restored, snapshot.Orders)
	sort.Slice(restored, func(i, j int) bool {
		return restored[i].Sequence < restored[j].Sequence
	})

	return b.shard.Do(ctx, func() {
		b.orders = make(map[string]*orderv1.Order)
		b.asks = newAskSide()
		b.bids = newBidSide()
		b.sequence = snapshot.Sequence

		for _, bo := range restored {
			o := &orderv1.Order{
				ID:        bo.OrderID,
				UserID:    bo.UserID,
				MarketID:  b.marketID,
				BuyAsset:  b.buyAsset,
				SellAsset: b.sellAsset,
				Price:     bo.Price,
				Quantity:  bo.Quantity,
				Remaining: bo.Remaining,
				Side:      orderv1.Side(bo.Side),
				Sequence:  bo.Sequence,
				CreatedAt: bo.CreatedAt,
				UpdatedAt: bo.CreatedAt,
			}
			switch {
			case bo.Remaining.Equal(bo.Quantity):
				o.Status = orderv1.StatusOpen
			default:
				o.Status = orderv1.StatusPartiallyFilled
			}
			b.orders[o.ID] = o
			b.sideFor(o).insert(o)
		}
	})
}
