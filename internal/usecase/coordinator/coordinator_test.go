package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	journalv1 "github.com/Ephibbs/PanoMarket/internal/domain/journal/v1"
	marketv1 "github.com/Ephibbs/PanoMarket/internal/domain/market/v1"
	orderv1 "github.com/Ephibbs/PanoMarket/internal/domain/order/v1"
	tradev1 "github.com/Ephibbs/PanoMarket/internal/domain/trade/v1"
	"github.com/Ephibbs/PanoMarket/internal/usecase/book"
	"github.com/Ephibbs/PanoMarket/internal/usecase/ledger"
	pkgerrors "github.com/Ephibbs/PanoMarket/pkg/errors"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry serves a fixed set of markets from memory.
type fakeRegistry struct {
	markets map[string]*marketv1.Market
}

func newFakeRegistry(markets ...*marketv1.Market) *fakeRegistry {
	r := &fakeRegistry{markets: make(map[string]*marketv1.Market)}
	for _, m := range markets {
		r.markets[m.ID] = m
	}
	return r
}

func (r *fakeRegistry) ResolveAssets(_ context.Context, marketID string) (string, string, error) {
	m, ok := r.markets[marketID]
	if !ok {
		return "", "", marketv1.ErrMarketNotFound
	}
	if m.Status != marketv1.StatusActive {
		return "", "", marketv1.ErrMarketInactive
	}
	return m.BuyAsset, m.SellAsset, nil
}

func (r *fakeRegistry) Create(_ context.Context, m *marketv1.Market) error {
	r.markets[m.ID] = m
	return nil
}

func (r *fakeRegistry) GetByID(_ context.Context, marketID string) (*marketv1.Market, error) {
	m, ok := r.markets[marketID]
	if !ok {
		return nil, marketv1.ErrMarketNotFound
	}
	return m, nil
}

func (r *fakeRegistry) GetByAssets(_ context.Context, buyAsset, sellAsset string) (*marketv1.Market, error) {
	for _, m := range r.markets {
		if m.BuyAsset == buyAsset && m.SellAsset == sellAsset {
			return m, nil
		}
	}
	return nil, marketv1.ErrMarketNotFound
}

func (r *fakeRegistry) List(_ context.Context, activeOnly bool) ([]*marketv1.Market, error) {
	var out []*marketv1.Market
	for _, m := range r.markets {
		if activeOnly && m.Status != marketv1.StatusActive {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *fakeRegistry) SetStatus(_ context.Context, marketID string, status marketv1.Status) error {
	m, ok := r.markets[marketID]
	if !ok {
		return marketv1.ErrMarketNotFound
	}
	m.Status = status
	return nil
}

// fakeJournal keeps saga state in maps.
type fakeJournal struct {
	mu           sync.Mutex
	reservations map[string]*journalv1.PendingReservation
	trades       map[string]*tradev1.Trade
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{
		reservations: make(map[string]*journalv1.PendingReservation),
		trades:       make(map[string]*tradev1.Trade),
	}
}

func (j *fakeJournal) AddReservation(_ context.Context, r *journalv1.PendingReservation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reservations[r.OrderID] = r
	return nil
}

func (j *fakeJournal) RemoveReservation(_ context.Context, orderID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.reservations, orderID)
	return nil
}

func (j *fakeJournal) PendingReservations(_ context.Context) ([]*journalv1.PendingReservation, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*journalv1.PendingReservation
	for _, r := range j.reservations {
		out = append(out, r)
	}
	return out, nil
}

func (j *fakeJournal) AddTrades(_ context.Context, trades []*tradev1.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, t := range trades {
		j.trades[t.ID] = t
	}
	return nil
}

func (j *fakeJournal) RemoveTrade(_ context.Context, tradeID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.trades, tradeID)
	return nil
}

func (j *fakeJournal) PendingTrades(_ context.Context) ([]*tradev1.Trade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*tradev1.Trade
	for _, t := range j.trades {
		out = append(out, t)
	}
	return out, nil
}

func (j *fakeJournal) pendingCount() (int, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.reservations), len(j.trades)
}

// fakeStore keeps appended trades in memory, deduplicated by id.
type fakeStore struct {
	mu     sync.Mutex
	trades []*tradev1.Trade
	seen   map[string]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[string]struct{})}
}

func (s *fakeStore) Append(_ context.Context, trades []*tradev1.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range trades {
		if _, ok := s.seen[t.ID]; ok {
			continue
		}
		s.seen[t.ID] = struct{}{}
		s.trades = append(s.trades, t)
	}
	return nil
}

func (s *fakeStore) GetAllTrades(_ context.Context) ([]*tradev1.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*tradev1.Trade{}, s.trades...), nil
}

func (s *fakeStore) GetUserTrades(ctx context.Context, userID string) ([]*tradev1.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*tradev1.Trade
	for _, t := range s.trades {
		if t.BuyUserID == userID || t.SellUserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) GetOrderTrades(ctx context.Context, orderID string) ([]*tradev1.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*tradev1.Trade
	for _, t := range s.trades {
		if t.BuyOrderID == orderID || t.SellOrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) GetMarketTrades(ctx context.Context, marketID string) ([]*tradev1.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*tradev1.Trade
	for _, t := range s.trades {
		if t.MarketID == marketID {
			out = append(out, t)
		}
	}
	return out, nil
}

// fakePublisher records published trades.
type fakePublisher struct {
	mu        sync.Mutex
	published []*tradev1.Trade
}

func (p *fakePublisher) Publish(_ context.Context, _ string, trades []*tradev1.Trade) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, trades...)
	return nil
}

// singleBookProvider serves one pre-built book shard.
type singleBookProvider struct {
	book *book.Book
}

func (p *singleBookProvider) BookFor(_ context.Context, marketID string) (orderv1.Book, error) {
	if marketID != p.book.MarketID() {
		return nil, marketv1.ErrMarketNotFound
	}
	return p.book, nil
}

type fixture struct {
	coordinator *Coordinator
	ledger      *ledger.Ledger
	book        *book.Book
	journal     *fakeJournal
	store       *fakeStore
	publisher   *fakePublisher
}

// newFixture builds a coordinator over a real ledger and book with in-memory
// collaborators. The settle queue has no capacity, so settlement runs inline
// and tests observe its effects synchronously.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	l := ledger.New(log, 16)
	t.Cleanup(l.Close)
	b := book.New(log, "BTC-USD", "USD", "BTC", 16)
	t.Cleanup(b.Close)

	registry := newFakeRegistry(&marketv1.Market{
		ID:        "BTC-USD",
		BuyAsset:  "USD",
		SellAsset: "BTC",
		Status:    marketv1.StatusActive,
	})
	journal := newFakeJournal()
	store := newFakeStore()
	publisher := &fakePublisher{}

	c := NewCoordinator(l, &singleBookProvider{book: b}, registry, store, publisher, journal, log, 0)
	return &fixture{
		coordinator: c,
		ledger:      l,
		book:        b,
		journal:     journal,
		store:       store,
		publisher:   publisher,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func deposit(t *testing.T, f *fixture, userID, asset, amount string) {
	t.Helper()
	require.NoError(t, f.ledger.Deposit(context.Background(), userID, asset, dec(amount)))
}

func place(t *testing.T, f *fixture, orderID, userID string, side orderv1.Side, price, quantity string) *PlaceOrderResult {
	t.Helper()
	result, err := f.coordinator.PlaceOrder(context.Background(), &PlaceOrderRequest{
		OrderID:  orderID,
		UserID:   userID,
		MarketID: "BTC-USD",
		Side:     side,
		Price:    dec(price),
		Quantity: dec(quantity),
	})
	require.NoError(t, err)
	return result
}

func TestCoordinator_InsufficientBalance(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator.PlaceOrder(context.Background(), &PlaceOrderRequest{
		OrderID:  "o1",
		UserID:   "alice",
		MarketID: "BTC-USD",
		Side:     orderv1.SideBuy,
		Price:    dec("100"),
		Quantity: dec("1"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.ErrorCodeEquals(err, pkgerrors.InsufficientBalanceError))

	// No journal residue, nothing on the book.
	reservations, trades := f.journal.pendingCount()
	assert.Zero(t, reservations)
	assert.Zero(t, trades)

	view, err := f.book.GetOrderBook(context.Background())
	require.NoError(t, err)
	assert.Empty(t, view.Bids)
}

func TestCoordinator_UnknownMarket(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator.PlaceOrder(context.Background(), &PlaceOrderRequest{
		OrderID:  "o1",
		UserID:   "alice",
		MarketID: "ETH-USD",
		Side:     orderv1.SideBuy,
		Price:    dec("100"),
		Quantity: dec("1"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.ErrorCodeEquals(err, pkgerrors.MarketNotFoundError))
}

func TestCoordinator_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator.PlaceOrder(context.Background(), &PlaceOrderRequest{
		OrderID:  "o1",
		UserID:   "alice",
		MarketID: "BTC-USD",
		Side:     orderv1.SideBuy,
		Price:    dec("-1"),
		Quantity: dec("1"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.ErrorCodeEquals(err, pkgerrors.OrderValidationError))
}

func TestCoordinator_RestingOrder_ReservesFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposit(t, f, "alice", "USD", "1000")

	result := place(t, f, "o1", "alice", orderv1.SideBuy, "100", "5")
	assert.Empty(t, result.Trades)
	assert.Equal(t, orderv1.StatusOpen, result.Status)

	// 100 * 5 of the buy asset moved to reserved.
	entries, err := f.ledger.GetUserBalances(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, entries[0].Available.Equal(dec("500")))
	assert.True(t, entries[0].Reserved.Equal(dec("500")))

	// The reservation journal entry was cleared once the book recorded the order.
	reservations, _ := f.journal.pendingCount()
	assert.Zero(t, reservations)
}

func TestCoordinator_FullPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposit(t, f, "seller", "BTC", "1")
	deposit(t, f, "buyer", "USD", "10000")

	sellResult := place(t, f, "sell1", "seller", orderv1.SideSell, "10000", "1")
	assert.Empty(t, sellResult.Trades)

	buyResult := place(t, f, "buy1", "buyer", orderv1.SideBuy, "10000", "1")
	require.Len(t, buyResult.Trades, 1)
	assert.Equal(t, orderv1.StatusFilled, buyResult.Status)

	// Settlement ran inline: the buyer holds the BTC, the seller the USD.
	buyer, err := f.ledger.GetUserBalances(ctx, "buyer")
	require.NoError(t, err)
	require.Len(t, buyer, 2)
	assert.True(t, buyer[0].Available.Equal(dec("1")))
	assert.True(t, buyer[1].Available.IsZero())
	assert.True(t, buyer[1].Reserved.IsZero())

	seller, err := f.ledger.GetUserBalances(ctx, "seller")
	require.NoError(t, err)
	require.Len(t, seller, 2)
	assert.True(t, seller[0].Reserved.IsZero())
	assert.True(t, seller[1].Available.Equal(dec("10000")))

	// Recorded and published exactly once, journal drained.
	stored, err := f.store.GetAllTrades(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, buyResult.Trades[0].ID, stored[0].ID)
	assert.Len(t, f.publisher.published, 1)

	reservations, trades := f.journal.pendingCount()
	assert.Zero(t, reservations)
	assert.Zero(t, trades)
}

func TestCoordinator_PriceImprovement_LeavesExcessReserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposit(t, f, "seller", "BTC", "1")
	deposit(t, f, "buyer", "USD", "10000")

	place(t, f, "sell1", "seller", orderv1.SideSell, "9000", "1")

	// Buyer reserves at its own limit (10000) but pays the maker price (9000).
	result := place(t, f, "buy1", "buyer", orderv1.SideBuy, "10000", "1")
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Price.Equal(dec("9000")))

	buyer, err := f.ledger.GetUserBalances(ctx, "buyer")
	require.NoError(t, err)
	// The 1000 difference stays reserved against the filled order until
	// released; it is not silently refunded.
	assert.True(t, buyer[1].Reserved.Equal(dec("1000")))
	assert.True(t, buyer[1].Available.IsZero())
}

func TestCoordinator_PartialFill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposit(t, f, "seller", "BTC", "3")
	deposit(t, f, "buyer", "USD", "10000")

	place(t, f, "sell1", "seller", orderv1.SideSell, "1000", "3")

	result := place(t, f, "buy1", "buyer", orderv1.SideBuy, "1000", "2")
	require.Len(t, result.Trades, 1)
	assert.Equal(t, orderv1.StatusFilled, result.Status)

	// The resting sell is partially filled with 1 BTC still reserved.
	resting, err := f.book.GetOrder(ctx, "sell1")
	require.NoError(t, err)
	assert.Equal(t, orderv1.StatusPartiallyFilled, resting.Status)
	assert.True(t, resting.Remaining.Equal(dec("1")))

	seller, err := f.ledger.GetUserBalances(ctx, "seller")
	require.NoError(t, err)
	assert.True(t, seller[0].Reserved.Equal(dec("1")))
	assert.True(t, seller[1].Available.Equal(dec("2000")))
}

func TestCoordinator_DuplicateOrder_ReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposit(t, f, "alice", "USD", "1000")
	place(t, f, "o1", "alice", orderv1.SideBuy, "100", "5")

	_, err := f.coordinator.PlaceOrder(ctx, &PlaceOrderRequest{
		OrderID:  "o1",
		UserID:   "alice",
		MarketID: "BTC-USD",
		Side:     orderv1.SideBuy,
		Price:    dec("100"),
		Quantity: dec("5"),
	})
	require.Error(t, err)

	// Only the first submission's reservation remains.
	entries, err := f.ledger.GetUserBalances(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, entries[0].Available.Equal(dec("500")))
	assert.True(t, entries[0].Reserved.Equal(dec("500")))
}

func TestReconciler_ReplaysPendingTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposit(t, f, "buyer", "USD", "5000")
	deposit(t, f, "seller", "BTC", "1")
	ok, err := f.ledger.Reserve(ctx, "buyer", "USD", dec("5000"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.ledger.Reserve(ctx, "seller", "BTC", dec("1"))
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate a crash after matching: the trade is journaled but never settled.
	trade := &tradev1.Trade{
		ID:         "trade-1",
		MarketID:   "BTC-USD",
		BuyAsset:   "USD",
		SellAsset:  "BTC",
		Price:      dec("5000"),
		Quantity:   dec("1"),
		BuyUserID:  "buyer",
		SellUserID: "seller",
		Timestamp:  time.Now(),
	}
	require.NoError(t, f.journal.AddTrades(ctx, []*tradev1.Trade{trade}))

	log, err := logger.NewLogger()
	require.NoError(t, err)
	reconciler := NewReconciler(f.coordinator, time.Minute, 0, log)
	reconciler.RunOnce(ctx)

	buyer, err := f.ledger.GetUserBalances(ctx, "buyer")
	require.NoError(t, err)
	assert.True(t, buyer[0].Available.Equal(dec("1")))

	stored, err := f.store.GetAllTrades(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	_, trades := f.journal.pendingCount()
	assert.Zero(t, trades)

	// A second sweep changes nothing.
	reconciler.RunOnce(ctx)
	buyer, err = f.ledger.GetUserBalances(ctx, "buyer")
	require.NoError(t, err)
	assert.True(t, buyer[0].Available.Equal(dec("1")))
}

func TestReconciler_ReleasesOrphanedReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposit(t, f, "alice", "USD", "500")
	ok, err := f.ledger.Reserve(ctx, "alice", "USD", dec("500"))
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate a crash between reserve and submit: the journal entry exists
	// but the order never reached the book.
	require.NoError(t, f.journal.AddReservation(ctx, &journalv1.PendingReservation{
		OrderID:   "lost-order",
		UserID:    "alice",
		MarketID:  "BTC-USD",
		Asset:     "USD",
		Amount:    dec("500"),
		CreatedAt: time.Now().Add(-time.Hour),
	}))

	log, err := logger.NewLogger()
	require.NoError(t, err)
	reconciler := NewReconciler(f.coordinator, time.Minute, time.Minute, log)
	reconciler.RunOnce(ctx)

	entries, err := f.ledger.GetUserBalances(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, entries[0].Available.Equal(dec("500")))
	assert.True(t, entries[0].Reserved.IsZero())

	reservations, _ := f.journal.pendingCount()
	assert.Zero(t, reservations)
}

func TestReconciler_GracePeriod_KeepsYoungReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposit(t, f, "alice", "USD", "500")
	ok, err := f.ledger.Reserve(ctx, "alice", "USD", dec("500"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.journal.AddReservation(ctx, &journalv1.PendingReservation{
		OrderID:   "in-flight",
		UserID:    "alice",
		MarketID:  "BTC-USD",
		Asset:     "USD",
		Amount:    dec("500"),
		CreatedAt: time.Now(),
	}))

	log, err := logger.NewLogger()
	require.NoError(t, err)
	reconciler := NewReconciler(f.coordinator, time.Minute, time.Hour, log)
	reconciler.RunOnce(ctx)

	// Too young to be treated as orphaned.
	entries, err := f.ledger.GetUserBalances(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, entries[0].Reserved.Equal(dec("500")))

	reservations, _ := f.journal.pendingCount()
	assert.Equal(t, 1, reservations)
}
