package coordinator

import (
	"context"
	"time"

	orderv1 "github.com/Ephibbs/PanoMarket/internal/domain/order/v1"
	"github.com/Ephibbs/PanoMarket/pkg/errors"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
)

// Reconciler periodically sweeps the journal and repairs the two failure
// windows the pipeline leaves open: trades that matched but never settled,
// and reservations whose order never reached a book.
type Reconciler struct {
	coordinator *Coordinator
	interval    time.Duration
	grace       time.Duration
	logger      logger.Interface
}

// NewReconciler creates a reconciler over the coordinator's journal. grace is
// how old a pending reservation must be before it is considered orphaned;
// younger entries may belong to an order still in flight.
func NewReconciler(c *Coordinator, interval, grace time.Duration, log logger.Interface) *Reconciler {
	return &Reconciler{
		coordinator: c,
		interval:    interval,
		grace:       grace,
		logger:      log,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Every repair it applies is idempotent, so
// overlapping with the live pipeline or with another sweep is harmless.
func (r *Reconciler) RunOnce(ctx context.Context) {
	r.replayPendingTrades(ctx)
	r.releaseOrphanedReservations(ctx)
}

// replayPendingTrades re-runs settlement for trades whose journal entry was
// never cleared. Already settled trades no-op on the ledger and the store, so
// the replay only finishes whatever step the crash interrupted. Replayed
// trades are not re-published; publication is at-most-once.
func (r *Reconciler) replayPendingTrades(ctx context.Context) {
	trades, err := r.coordinator.journal.PendingTrades(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{
			Key:   "action",
			Value: "load_pending_trades",
		})
		return
	}

	for _, trade := range trades {
		if err := r.coordinator.settleOne(ctx, trade); err != nil {
			r.logger.WarnContext(ctx, "pending trade still unsettled", logger.Field{
				Key:   "tradeID",
				Value: trade.ID,
			}, logger.Field{
				Key:   "error",
				Value: err.Error(),
			})
			continue
		}
		r.logger.InfoContext(ctx, "replayed unsettled trade", logger.Field{
			Key:   "tradeID",
			Value: trade.ID,
		})
	}
}

// releaseOrphanedReservations releases reserved funds for journaled
// reservations older than the grace period whose order never made it into the
// book. A reservation whose order is present in the book is merely a stale
// journal entry and only the entry is removed.
func (r *Reconciler) releaseOrphanedReservations(ctx context.Context) {
	reservations, err := r.coordinator.journal.PendingReservations(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{
			Key:   "action",
			Value: "load_pending_reservations",
		})
		return
	}

	for _, res := range reservations {
		if time.Since(res.CreatedAt) < r.grace {
			continue
		}

		book, err := r.coordinator.books.BookFor(ctx, res.MarketID)
		if err != nil {
			r.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{
				Key:   "marketID",
				Value: res.MarketID,
			})
			continue
		}

		_, err = book.GetOrder(ctx, res.OrderID)
		switch err {
		case nil:
			// The order reached the book, so the reservation is live and the
			// journal entry is just leftover.
			r.coordinator.removeReservation(ctx, res.OrderID)
		case orderv1.ErrOrderNotFound:
			released, rerr := r.coordinator.ledger.Release(ctx, res.UserID, res.Asset, res.Amount)
			if rerr != nil {
				r.logger.ErrorContext(ctx, errors.TracerFromError(rerr), logger.Field{
					Key:   "orderID",
					Value: res.OrderID,
				})
				continue
			}
			if !released {
				// Reserved balance no longer covers the amount: the funds were
				// consumed by settlement after the journal write. Drop the entry.
				r.logger.WarnContext(ctx, "orphaned reservation no longer releasable", logger.Field{
					Key:   "orderID",
					Value: res.OrderID,
				})
			} else {
				r.logger.InfoContext(ctx, "released orphaned reservation", logger.Field{
					Key:   "orderID",
					Value: res.OrderID,
				}, logger.Field{
					Key:   "asset",
					Value: res.Asset,
				})
			}
			r.coordinator.removeReservation(ctx, res.OrderID)
		default:
			r.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{
				Key:   "orderID",
				Value: res.OrderID,
			})
		}
	}
}
