package book

import (
	"context"
	"testing"

	orderv1 "github.com/Ephibbs/PanoMarket/internal/domain/order/v1"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBook(t *testing.T) *Book {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	b := New(log, "BTC-USD", "USD", "BTC", 16)
	t.Cleanup(b.Close)
	return b
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newOrder(id, userID string, side orderv1.Side, price, quantity string) *orderv1.Order {
	return &orderv1.Order{
		ID:       id,
		UserID:   userID,
		Side:     side,
		Price:    dec(price),
		Quantity: dec(quantity),
	}
}

func submit(t *testing.T, b *Book, o *orderv1.Order) *orderv1.SubmitResult {
	t.Helper()
	result, err := b.SubmitOrder(context.Background(), o)
	require.NoError(t, err)
	return result
}

func TestBook_RestingOrder_NoMatch(t *testing.T) {
	b := newTestBook(t)

	result := submit(t, b, newOrder("o1", "alice", orderv1.SideBuy, "100", "10"))

	assert.Empty(t, result.Trades)
	assert.True(t, result.Remaining.Equal(dec("10")))
	assert.Equal(t, orderv1.StatusOpen, result.Status)

	view, err := b.GetOrderBook(context.Background())
	require.NoError(t, err)
	assert.Empty(t, view.Asks)
	require.Len(t, view.Bids, 1)
	assert.Equal(t, "o1", view.Bids[0].ID)
}

func TestBook_CrossingOrders_FullFill(t *testing.T) {
	b := newTestBook(t)

	submit(t, b, newOrder("sell1", "alice", orderv1.SideSell, "100", "5"))
	result := submit(t, b, newOrder("buy1", "bob", orderv1.SideBuy, "100", "5"))

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.True(t, trade.Price.Equal(dec("100")))
	assert.True(t, trade.Quantity.Equal(dec("5")))
	assert.Equal(t, "buy1", trade.BuyOrderID)
	assert.Equal(t, "sell1", trade.SellOrderID)
	assert.Equal(t, "bob", trade.BuyUserID)
	assert.Equal(t, "alice", trade.SellUserID)
	assert.Equal(t, orderv1.StatusFilled, result.Status)
	assert.True(t, result.Remaining.IsZero())

	// Both sides fully consumed, nothing rests.
	view, err := b.GetOrderBook(context.Background())
	require.NoError(t, err)
	assert.Empty(t, view.Asks)
	assert.Empty(t, view.Bids)
}

func TestBook_MakerPriceGovernsTrade(t *testing.T) {
	b := newTestBook(t)

	submit(t, b, newOrder("sell1", "alice", orderv1.SideSell, "95", "5"))
	result := submit(t, b, newOrder("buy1", "bob", orderv1.SideBuy, "100", "5"))

	// The aggressor was willing to pay 100 but the resting price wins.
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Price.Equal(dec("95")))
}

func TestBook_PricePriority(t *testing.T) {
	b := newTestBook(t)

	submit(t, b, newOrder("sell-high", "alice", orderv1.SideSell, "102", "5"))
	submit(t, b, newOrder("sell-low", "carol", orderv1.SideSell, "99", "5"))

	result := submit(t, b, newOrder("buy1", "bob", orderv1.SideBuy, "105", "5"))

	// The cheaper ask fills first even though it arrived later.
	require.Len(t, result.Trades, 1)
	assert.Equal(t, "sell-low", result.Trades[0].SellOrderID)
	assert.True(t, result.Trades[0].Price.Equal(dec("99")))
}

func TestBook_TimePriority_SamePrice(t *testing.T) {
	b := newTestBook(t)

	submit(t, b, newOrder("sell-first", "alice", orderv1.SideSell, "100", "5"))
	submit(t, b, newOrder("sell-second", "carol", orderv1.SideSell, "100", "5"))

	result := submit(t, b, newOrder("buy1", "bob", orderv1.SideBuy, "100", "5"))

	require.Len(t, result.Trades, 1)
	assert.Equal(t, "sell-first", result.Trades[0].SellOrderID)

	// The later arrival still rests.
	view, err := b.GetOrderBook(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Asks, 1)
	assert.Equal(t, "sell-second", view.Asks[0].ID)
}

func TestBook_PartialFill_WalksLevels(t *testing.T) {
	b := newTestBook(t)

	submit(t, b, newOrder("sell1", "alice", orderv1.SideSell, "100", "3"))
	submit(t, b, newOrder("sell2", "carol", orderv1.SideSell, "101", "3"))

	result := submit(t, b, newOrder("buy1", "bob", orderv1.SideBuy, "101", "8"))

	require.Len(t, result.Trades, 2)
	assert.True(t, result.Trades[0].Price.Equal(dec("100")))
	assert.True(t, result.Trades[1].Price.Equal(dec("101")))
	assert.True(t, result.Remaining.Equal(dec("2")))
	assert.Equal(t, orderv1.StatusPartiallyFilled, result.Status)

	// The leftover rests as the best (and only) bid.
	view, err := b.GetOrderBook(context.Background())
	require.NoError(t, err)
	assert.Empty(t, view.Asks)
	require.Len(t, view.Bids, 1)
	assert.Equal(t, "buy1", view.Bids[0].ID)
	assert.True(t, view.Bids[0].Remaining.Equal(dec("2")))
}

func TestBook_NoCross_PriceGap(t *testing.T) {
	b := newTestBook(t)

	submit(t, b, newOrder("sell1", "alice", orderv1.SideSell, "105", "5"))
	result := submit(t, b, newOrder("buy1", "bob", orderv1.SideBuy, "100", "5"))

	assert.Empty(t, result.Trades)
	assert.Equal(t, orderv1.StatusOpen, result.Status)

	view, err := b.GetOrderBook(context.Background())
	require.NoError(t, err)
	assert.Len(t, view.Asks, 1)
	assert.Len(t, view.Bids, 1)
}

func TestBook_DuplicateOrderID(t *testing.T) {
	b := newTestBook(t)

	submit(t, b, newOrder("o1", "alice", orderv1.SideBuy, "100", "5"))

	_, err := b.SubmitOrder(context.Background(), newOrder("o1", "alice", orderv1.SideBuy, "100", "5"))
	assert.ErrorIs(t, err, orderv1.ErrDuplicateOrder)
}

func TestBook_Validation(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	_, err := b.SubmitOrder(ctx, newOrder("o1", "alice", orderv1.SideBuy, "0", "5"))
	assert.ErrorIs(t, err, orderv1.ErrInvalidPrice)

	_, err = b.SubmitOrder(ctx, newOrder("o2", "alice", orderv1.SideBuy, "100", "-1"))
	assert.ErrorIs(t, err, orderv1.ErrInvalidQuantity)

	_, err = b.SubmitOrder(ctx, newOrder("o3", "alice", "short", "100", "5"))
	assert.ErrorIs(t, err, orderv1.ErrInvalidSide)

	_, err = b.SubmitOrder(ctx, newOrder("", "alice", orderv1.SideBuy, "100", "5"))
	assert.ErrorIs(t, err, orderv1.ErrMissingField)
}

func TestBook_GetOrder_TracksStatus(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	submit(t, b, newOrder("sell1", "alice", orderv1.SideSell, "100", "10"))
	submit(t, b, newOrder("buy1", "bob", orderv1.SideBuy, "100", "4"))

	resting, err := b.GetOrder(ctx, "sell1")
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusPartiallyFilled, resting.Status)
	assert.True(t, resting.Remaining.Equal(dec("6")))

	aggressor, err := b.GetOrder(ctx, "buy1")
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusFilled, aggressor.Status)

	_, err = b.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, orderv1.ErrOrderNotFound)
}

func TestBook_GetUserOrders_MostRecentFirst(t *testing.T) {
	b := newTestBook(t)

	submit(t, b, newOrder("o1", "alice", orderv1.SideBuy, "99", "1"))
	submit(t, b, newOrder("o2", "bob", orderv1.SideBuy, "98", "1"))
	submit(t, b, newOrder("o3", "alice", orderv1.SideBuy, "97", "1"))

	orders, err := b.GetUserOrders(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o3", orders[0].ID)
	assert.Equal(t, "o1", orders[1].ID)
}

func TestBook_ViewOrdering(t *testing.T) {
	b := newTestBook(t)

	submit(t, b, newOrder("a1", "u1", orderv1.SideSell, "103", "1"))
	submit(t, b, newOrder("a2", "u2", orderv1.SideSell, "101", "1"))
	submit(t, b, newOrder("b1", "u3", orderv1.SideBuy, "97", "1"))
	submit(t, b, newOrder("b2", "u4", orderv1.SideBuy, "99", "1"))

	view, err := b.GetOrderBook(context.Background())
	require.NoError(t, err)

	// Asks ascending, bids descending.
	require.Len(t, view.Asks, 2)
	assert.Equal(t, "a2", view.Asks[0].ID)
	assert.Equal(t, "a1", view.Asks[1].ID)
	require.Len(t, view.Bids, 2)
	assert.Equal(t, "b2", view.Bids[0].ID)
	assert.Equal(t, "b1", view.Bids[1].ID)
}

func TestBook_SnapshotRestore_PreservesPriority(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	submit(t, b, newOrder("sell-first", "alice", orderv1.SideSell, "100", "5"))
	submit(t, b, newOrder("sell-second", "carol", orderv1.SideSell, "100", "5"))
	submit(t, b, newOrder("bid1", "dave", orderv1.SideBuy, "90", "2"))

	snapshot, err := b.CreateSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Orders, 3)

	restored := newTestBook(t)
	require.NoError(t, restored.Restore(ctx, snapshot))

	// FIFO at the shared price level survives the round trip.
	result, err := restored.SubmitOrder(ctx, newOrder("buy1", "bob", orderv1.SideBuy, "100", "5"))
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, "sell-first", result.Trades[0].SellOrderID)

	view, err := restored.GetOrderBook(ctx)
	require.NoError(t, err)
	require.Len(t, view.Asks, 1)
	assert.Equal(t, "sell-second", view.Asks[0].ID)
	require.Len(t, view.Bids, 1)
	assert.Equal(t, "bid1", view.Bids[0].ID)
}
