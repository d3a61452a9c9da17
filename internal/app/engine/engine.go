package engine

import (
	"context"
	"sync"
	"time"

	balancev1 "github.com/Ephibbs/PanoMarket/internal/domain/balance/v1"
	journalv1 "github.com/Ephibbs/PanoMarket/internal/domain/journal/v1"
	marketv1 "github.com/Ephibbs/PanoMarket/internal/domain/market/v1"
	orderv1 "github.com/Ephibbs/PanoMarket/internal/domain/order/v1"
	snapshotv1 "github.com/Ephibbs/PanoMarket/internal/domain/snapshot/v1"
	tradev1 "github.com/Ephibbs/PanoMarket/internal/domain/trade/v1"
	"github.com/Ephibbs/PanoMarket/internal/usecase/book"
	"github.com/Ephibbs/PanoMarket/internal/usecase/coordinator"
	"github.com/Ephibbs/PanoMarket/internal/usecase/ledger"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/shopspring/decimal"
)

// Engine wires the shards together and runs their upkeep: the ledger shard,
// one book shard per market created on demand, the settlement coordinator,
// the reconciler sweep and the periodic snapshot of every live book.
type Engine struct {
	ledger      *ledger.Ledger
	coordinator *coordinator.Coordinator
	reconciler  *coordinator.Reconciler
	registry    marketv1.Registry
	store       tradev1.Store
	snapshots   snapshotv1.Store
	logger      logger.Interface
	options     *Options

	mu    sync.RWMutex
	books map[string]*book.Book

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates the engine and its ledger shard. Book shards are created
// lazily by BookFor; Start must be called before orders are placed.
func NewEngine(
	registry marketv1.Registry,
	store tradev1.Store,
	publisher tradev1.Publisher,
	journal journalv1.Journal,
	snapshots snapshotv1.Store,
	log logger.Interface,
	options *Options,
) *Engine {
	if options == nil {
		options = DefaultOptions()
	}

	e := &Engine{
		ledger:    ledger.New(log, options.LedgerQueueSize),
		registry:  registry,
		store:     store,
		snapshots: snapshots,
		logger:    log,
		options:   options,
		books:     make(map[string]*book.Book),
	}
	e.coordinator = coordinator.NewCoordinator(
		e.ledger,
		e,
		registry,
		store,
		publisher,
		journal,
		log,
		options.SettleQueueSize,
	)
	e.reconciler = coordinator.NewReconciler(
		e.coordinator,
		options.ReconcileInterval,
		options.ReservationGrace,
		log,
	)

	return e
}

// Start restores the books of all active markets and launches the settlement
// worker, the reconciler sweep and the snapshot manager.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	markets, err := e.registry.List(e.ctx, true)
	if err != nil {
		return err
	}
	for _, market := range markets {
		if _, err := e.BookFor(e.ctx, market.ID); err != nil {
			return err
		}
	}

	e.coordinator.Start(e.ctx)

	e.wg.Add(2)
	go e.runReconciler()
	go e.runSnapshotManager()

	e.logger.Info("engine started", logger.Field{
		Key:   "markets",
		Value: len(markets),
	})

	return nil
}

// Stop shuts the engine down: upkeep goroutines first, then the settlement
// worker, then the shards. A final snapshot of every book is taken so a
// restart resumes close to where it left off.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("engine stop timeout exceeded")
		return ctx.Err()
	}

	e.coordinator.Stop()
	e.snapshotAll(ctx)

	e.mu.Lock()
	for _, b := range e.books {
		b.Close()
	}
	e.mu.Unlock()
	e.ledger.Close()

	e.logger.Info("engine stopped")
	return nil
}

// BookFor returns the market's book shard, creating it and restoring its
// last snapshot on first use. Inactive markets still get a book so their
// resting state stays reachable; order placement is gated separately.
func (e *Engine) BookFor(ctx context.Context, marketID string) (orderv1.Book, error) {
	e.mu.RLock()
	b, ok := e.books[marketID]
	e.mu.RUnlock()
	if ok {
		return b, nil
	}

	market, err := e.registry.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.books[marketID]; ok {
		return b, nil
	}

	b = book.New(e.logger, market.ID, market.BuyAsset, market.SellAsset, e.options.BookQueueSize)
	snapshot, err := e.snapshots.Load(ctx, market.ID)
	if err != nil {
		b.Close()
		return nil, err
	}
	if snapshot != nil {
		if err := b.Restore(ctx, snapshot); err != nil {
			b.Close()
			return nil, err
		}
		e.logger.InfoContext(ctx, "book restored from snapshot", logger.Field{
			Key:   "marketID",
			Value: market.ID,
		}, logger.Field{
			Key:   "orders",
			Value: len(snapshot.Orders),
		})
	}

	e.books[marketID] = b
	return b, nil
}

// PlaceOrder runs the settlement pipeline for one order.
func (e *Engine) PlaceOrder(ctx context.Context, req *coordinator.PlaceOrderRequest) (*coordinator.PlaceOrderResult, error) {
	return e.coordinator.PlaceOrder(ctx, req)
}

// GetOrderBook returns the market's resting orders in priority order.
func (e *Engine) GetOrderBook(ctx context.Context, marketID string) (*orderv1.BookView, error) {
	b, err := e.BookFor(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return b.GetOrderBook(ctx)
}

// GetUserOrders returns the user's orders on one market, most recent first.
func (e *Engine) GetUserOrders(ctx context.Context, marketID, userID string) ([]*orderv1.Order, error) {
	b, err := e.BookFor(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return b.GetUserOrders(ctx, userID)
}

// GetOrder returns one order by id.
func (e *Engine) GetOrder(ctx context.Context, marketID, orderID string) (*orderv1.Order, error) {
	b, err := e.BookFor(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return b.GetOrder(ctx, orderID)
}

// Deposit credits a user's available balance.
func (e *Engine) Deposit(ctx context.Context, userID, asset string, amount decimal.Decimal) error {
	return e.ledger.Deposit(ctx, userID, asset, amount)
}

// GetUserBalances returns the user's balances, sorted by asset.
func (e *Engine) GetUserBalances(ctx context.Context, userID string) ([]balancev1.Entry, error) {
	return e.ledger.GetUserBalances(ctx, userID)
}

// GetAllBalances returns every balance entry, sorted by user then asset.
func (e *Engine) GetAllBalances(ctx context.Context) ([]balancev1.Entry, error) {
	return e.ledger.GetAllBalances(ctx)
}

// GetUserTrades returns trades where the user was on either side.
func (e *Engine) GetUserTrades(ctx context.Context, userID string) ([]*tradev1.Trade, error) {
	return e.store.GetUserTrades(ctx, userID)
}

// GetMarketTrades returns the market's trade history, most recent first.
func (e *Engine) GetMarketTrades(ctx context.Context, marketID string) ([]*tradev1.Trade, error) {
	return e.store.GetMarketTrades(ctx, marketID)
}

// CreateMarket registers a new market.
func (e *Engine) CreateMarket(ctx context.Context, market *marketv1.Market) error {
	return e.registry.Create(ctx, market)
}

// ListMarkets lists registered markets.
func (e *Engine) ListMarkets(ctx context.Context, activeOnly bool) ([]*marketv1.Market, error) {
	return e.registry.List(ctx, activeOnly)
}

// SetMarketStatus updates a market's lifecycle status. A market taken out of
// the active state keeps its book; resting orders stay queryable and their
// reservations intact.
func (e *Engine) SetMarketStatus(ctx context.Context, marketID string, status marketv1.Status) error {
	return e.registry.SetStatus(ctx, marketID, status)
}

func (e *Engine) runReconciler() {
	defer e.wg.Done()
	e.logger.Info("reconciler started")
	e.reconciler.Run(e.ctx)
	e.logger.Info("reconciler shutting down")
}

func (e *Engine) runSnapshotManager() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.options.SnapshotInterval)
	defer ticker.Stop()

	e.logger.Info("snapshot manager started")
	for {
		select {
		case <-e.ctx.Done():
			e.logger.Info("snapshot manager shutting down")
			return
		case <-ticker.C:
			e.snapshotAll(e.ctx)
		}
	}
}

// snapshotAll snapshots every live book. Failures are logged per market and
// do not block the other books.
func (e *Engine) snapshotAll(ctx context.Context) {
	e.mu.RLock()
	books := make([]*book.Book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.RUnlock()

	for _, b := range books {
		snapshot, err := b.CreateSnapshot(ctx)
		if err != nil {
			e.logger.ErrorContext(ctx, err, logger.Field{
				Key:   "marketID",
				Value: b.MarketID(),
			}, logger.Field{
				Key:   "action",
				Value: "create_snapshot",
			})
			continue
		}
		if err := e.snapshots.Store(ctx, snapshot); err != nil {
			e.logger.ErrorContext(ctx, err, logger.Field{
				Key:   "marketID",
				Value: b.MarketID(),
			}, logger.Field{
				Key:   "action",
				Value: "store_snapshot",
			})
		}
	}
}
