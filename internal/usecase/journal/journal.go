package journal

import (
	"context"
	"encoding/json"

	journalv1 "github.com/Ephibbs/PanoMarket/internal/domain/journal/v1"
	tradev1 "github.com/Ephibbs/PanoMarket/internal/domain/trade/v1"
	"github.com/Ephibbs/PanoMarket/pkg/errors"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/Ephibbs/PanoMarket/pkg/redis"
)

const (
	reservationsKey = "journal:reservations"
	tradesKey       = "journal:trades"
)

// Journal stores pipeline saga state in two Redis hashes, keyed by order id
// and trade id. Writes go to Redis before the step they cover so a crashed
// process leaves its in-flight work visible to the reconciler.
type Journal struct {
	redis  redis.Client
	logger logger.Interface
}

var _ journalv1.Journal = (*Journal)(nil)

// New creates a journal over the given Redis client.
func New(client redis.Client, log logger.Interface) *Journal {
	return &Journal{
		redis:  client,
		logger: log,
	}
}

// AddReservation journals a pending reservation keyed by order id.
func (j *Journal) AddReservation(ctx context.Context, r *journalv1.PendingReservation) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return errors.TracerFromError(err)
	}

	if _, err := j.redis.HSet(ctx, reservationsKey, map[string]any{r.OrderID: payload}); err != nil {
		return err
	}
	return nil
}

// RemoveReservation clears the journal entry for an order. Removing an entry
// that is already gone is not an error.
func (j *Journal) RemoveReservation(ctx context.Context, orderID string) error {
	_, err := j.redis.HDel(ctx, reservationsKey, orderID)
	return err
}

// PendingReservations returns every journaled reservation. Entries that fail
// to decode are logged and skipped rather than blocking the whole sweep.
func (j *Journal) PendingReservations(ctx context.Context) ([]*journalv1.PendingReservation, error) {
	fields, err := j.redis.HGetAll(ctx, reservationsKey)
	if err != nil {
		return nil, err
	}

	reservations := make([]*journalv1.PendingReservation, 0, len(fields))
	for orderID, payload := range fields {
		var r journalv1.PendingReservation
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			j.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{
				Key:   "orderID",
				Value: orderID,
			})
			continue
		}
		reservations = append(reservations, &r)
	}
	return reservations, nil
}

// AddTrades journals matched trades keyed by trade id, all in one HSET.
func (j *Journal) AddTrades(ctx context.Context, trades []*tradev1.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	values := make(map[string]any, len(trades))
	for _, t := range trades {
		payload, err := json.Marshal(t)
		if err != nil {
			return errors.TracerFromError(err)
		}
		values[t.ID] = payload
	}

	if _, err := j.redis.HSet(ctx, tradesKey, values); err != nil {
		return err
	}
	return nil
}

// RemoveTrade clears the journal entry for a settled trade.
func (j *Journal) RemoveTrade(ctx context.Context, tradeID string) error {
	_, err := j.redis.HDel(ctx, tradesKey, tradeID)
	return err
}

// PendingTrades returns every journaled trade awaiting settlement.
func (j *Journal) PendingTrades(ctx context.Context) ([]*tradev1.Trade, error) {
	fields, err := j.redis.HGetAll(ctx, tradesKey)
	if err != nil {
		return nil, err
	}

	trades := make([]*tradev1.Trade, 0, len(fields))
	for tradeID, payload := range fields {
		var t tradev1.Trade
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			j.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{
				Key:   "tradeID",
				Value: tradeID,
			})
			continue
		}
		trades = append(trades, &t)
	}
	return trades, nil
}
