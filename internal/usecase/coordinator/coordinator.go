package coordinator

import (
	"context"
	"sync"
	"time"

	balancev1 "github.com/Ephibbs/PanoMarket/internal/domain/balance/v1"
	journalv1 "github.com/Ephibbs/PanoMarket/internal/domain/journal/v1"
	marketv1 "github.com/Ephibbs/PanoMarket/internal/domain/market/v1"
	orderv1 "github.com/Ephibbs/PanoMarket/internal/domain/order/v1"
	tradev1 "github.com/Ephibbs/PanoMarket/internal/domain/trade/v1"
	"github.com/Ephibbs/PanoMarket/pkg/errors"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookProvider resolves a market id to its book shard, creating it on demand.
type BookProvider interface {
	BookFor(ctx context.Context, marketID string) (orderv1.Book, error)
}

// PlaceOrderRequest is an incoming order before it reaches any shard.
type PlaceOrderRequest struct {
	OrderID  string          `json:"orderID,omitempty"`
	UserID   string          `json:"userID"`
	MarketID string          `json:"marketID"`
	Side     orderv1.Side    `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// PlaceOrderResult is returned to the caller as soon as matching completes.
// Settlement and trade recording may still be in flight: balances are not
// guaranteed to reflect the returned trades until they are separately re-read.
type PlaceOrderResult struct {
	OrderID   string           `json:"orderID"`
	Trades    []*tradev1.Trade `json:"trades"`
	Remaining decimal.Decimal  `json:"remainingQuantity"`
	Status    orderv1.Status   `json:"orderStatus"`
}

type settleBatch struct {
	marketID string
	trades   []*tradev1.Trade
}

// Coordinator orchestrates the reserve -> match -> settle -> record ->
// publish pipeline. It is the only component that talks to both the ledger
// and the market books. None of the pipeline steps is atomic with any other;
// the journal plus idempotent settlement close the partial-failure windows.
type Coordinator struct {
	ledger    balancev1.Ledger
	books     BookProvider
	registry  marketv1.Registry
	store     tradev1.Store
	publisher tradev1.Publisher
	journal   journalv1.Journal
	logger    logger.Interface

	settleQueue chan settleBatch
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewCoordinator creates a settlement coordinator. Start must be called
// before orders are placed.
func NewCoordinator(
	ledger balancev1.Ledger,
	books BookProvider,
	registry marketv1.Registry,
	store tradev1.Store,
	publisher tradev1.Publisher,
	journal journalv1.Journal,
	log logger.Interface,
	settleQueueSize int,
) *Coordinator {
	return &Coordinator{
		ledger:      ledger,
		books:       books,
		registry:    registry,
		store:       store,
		publisher:   publisher,
		journal:     journal,
		logger:      log,
		settleQueue: make(chan settleBatch, settleQueueSize),
	}
}

// Start launches the settlement worker.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.runSettlementWorker()
}

// Stop shuts the settlement worker down. Batches still queued stay journaled
// and are replayed by the reconciler on the next run.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// PlaceOrder runs the pipeline for one incoming order. The result is
// returned once matching completes; settlement, recording and publication
// happen asynchronously but are guaranteed to eventually execute for every
// trade produced.
func (c *Coordinator) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResult, error) {
	if req.OrderID == "" {
		req.OrderID = uuid.NewString()
	}

	order := &orderv1.Order{
		ID:       req.OrderID,
		UserID:   req.UserID,
		MarketID: req.MarketID,
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
	}
	if err := order.Validate(); err != nil {
		return nil, errors.NewErrorDetails(err.Error(), string(errors.OrderValidationError), "order")
	}

	buyAsset, sellAsset, err := c.registry.ResolveAssets(ctx, req.MarketID)
	if err != nil {
		switch err {
		case marketv1.ErrMarketNotFound:
			return nil, errors.NewErrorDetails(err.Error(), string(errors.MarketNotFoundError), "marketID")
		case marketv1.ErrMarketInactive:
			return nil, errors.NewErrorDetails(err.Error(), string(errors.MarketInactiveError), "marketID")
		}
		return nil, errors.TracerFromError(err)
	}

	book, err := c.books.BookFor(ctx, req.MarketID)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}

	asset, amount := reservationFor(req, buyAsset, sellAsset)

	// Journal before reserving: a crash between reserve and submit leaves an
	// entry the reconciler can key on ("order never recorded by the book").
	if err := c.journal.AddReservation(ctx, &journalv1.PendingReservation{
		OrderID:   order.ID,
		UserID:    order.UserID,
		MarketID:  order.MarketID,
		Asset:     asset,
		Amount:    amount,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, errors.TracerFromError(err)
	}

	reserved, err := c.ledger.Reserve(ctx, order.UserID, asset, amount)
	if err != nil {
		c.removeReservation(ctx, order.ID)
		return nil, errors.TracerFromError(err)
	}
	if !reserved {
		c.removeReservation(ctx, order.ID)
		return nil, errors.NewErrorDetails(
			"available balance does not cover the order",
			string(errors.InsufficientBalanceError),
			"amount",
		)
	}

	result, err := book.SubmitOrder(ctx, order)
	if err != nil {
		// The order never reached the book: the reservation can be released
		// right away. The journal entry covers a crash before this line.
		if released, rerr := c.ledger.Release(ctx, order.UserID, asset, amount); rerr != nil || !released {
			c.logger.ErrorContext(ctx, errors.NewTracer("failed to release reservation for rejected order"), logger.Field{
				Key:   "orderID",
				Value: order.ID,
			})
		} else {
			c.removeReservation(ctx, order.ID)
		}
		return nil, errors.TracerFromError(err)
	}
	c.removeReservation(ctx, order.ID)

	if len(result.Trades) > 0 {
		if err := c.journal.AddTrades(ctx, result.Trades); err != nil {
			// Settlement still runs through the queue below; only the crash
			// replay record is missing.
			c.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{
				Key:   "action",
				Value: "journal_trades",
			})
		}
		c.enqueueSettlement(ctx, settleBatch{marketID: order.MarketID, trades: result.Trades})
	}

	return &PlaceOrderResult{
		OrderID:   order.ID,
		Trades:    result.Trades,
		Remaining: result.Remaining,
		Status:    result.Status,
	}, nil
}

// reservationFor computes the funds an order locks up: price*quantity of the
// buy asset for a buy, quantity of the sell asset for a sell.
func reservationFor(req *PlaceOrderRequest, buyAsset, sellAsset string) (string, decimal.Decimal) {
	if req.Side == orderv1.SideBuy {
		return buyAsset, req.Price.Mul(req.Quantity)
	}
	return sellAsset, req.Quantity
}

func (c *Coordinator) removeReservation(ctx context.Context, orderID string) {
	if err := c.journal.RemoveReservation(ctx, orderID); err != nil {
		c.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{
			Key:   "orderID",
			Value: orderID,
		})
	}
}

// enqueueSettlement hands a batch to the worker; when the queue is full or
// the worker is stopped, settlement runs inline so a produced trade is never
// left waiting on a crashed response path.
func (c *Coordinator) enqueueSettlement(ctx context.Context, batch settleBatch) {
	select {
	case c.settleQueue <- batch:
	default:
		c.settleTrades(ctx, batch.marketID, batch.trades, true)
	}
}

func (c *Coordinator) runSettlementWorker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case batch := <-c.settleQueue:
			c.settleTrades(c.ctx, batch.marketID, batch.trades, true)
		}
	}
}

// settleTrades runs the post-match steps for a batch of trades: settle funds
// on the ledger, append to the trade store, clear the journal entry, then
// publish. Each step is idempotent per trade id, so the batch is safe to
// re-run after any partial failure. A trade that fails to settle stays
// journaled and is never re-matched.
func (c *Coordinator) settleTrades(ctx context.Context, marketID string, trades []*tradev1.Trade, publish bool) {
	var completed []*tradev1.Trade
	for _, trade := range trades {
		if err := c.settleOne(ctx, trade); err != nil {
			c.logger.ErrorContext(ctx, err, logger.Field{
				Key:   "tradeID",
				Value: trade.ID,
			}, logger.Field{
				Key:   "action",
				Value: "settle_trade",
			})
			continue
		}
		completed = append(completed, trade)
	}

	if publish && len(completed) > 0 {
		// At-most-once: a publish failure is logged and not retried.
		if err := c.publisher.Publish(ctx, marketID, completed); err != nil {
			c.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{
				Key:   "marketID",
				Value: marketID,
			}, logger.Field{
				Key:   "action",
				Value: "publish_trades",
			})
		}
	}
}

// settleOne applies one trade's settlement saga step by step. The ledger
// no-ops on an already settled trade id and the store ignores duplicate ids,
// so any prefix of the steps can be replayed.
func (c *Coordinator) settleOne(ctx context.Context, trade *tradev1.Trade) error {
	if _, err := c.ledger.SettleTrade(ctx, trade); err != nil {
		return err
	}
	if err := c.store.Append(ctx, []*tradev1.Trade{trade}); err != nil {
		return errors.TracerFromError(err)
	}
	if err := c.journal.RemoveTrade(ctx, trade.ID); err != nil {
		return errors.TracerFromError(err)
	}
	return nil
}
