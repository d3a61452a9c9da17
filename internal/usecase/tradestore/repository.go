package tradestore

import (
	"context"

	tradev1 "github.com/Ephibbs/PanoMarket/internal/domain/trade/v1"
	"github.com/Ephibbs/PanoMarket/pkg/errors"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/Ephibbs/PanoMarket/pkg/postgresql"
)

const tradeColumns = `id, market_id, buy_asset, sell_asset, price, quantity, buy_order_id, sell_order_id, buy_user_id, sell_user_id, timestamp`

// repository is the PostgreSQL-backed trade history.
type repository struct {
	db     postgresql.PostgreSQLClient
	logger logger.Interface
}

var _ tradev1.Store = (*repository)(nil)

// NewRepository creates a new trade repository.
func NewRepository(db postgresql.PostgreSQLClient, logger logger.Interface) *repository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

// Append inserts trades, skipping ids already present so settlement replays
// never duplicate history.
func (r *repository) Append(ctx context.Context, trades []*tradev1.Trade) error {
	query := `INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	for _, trade := range trades {
		_, err := r.db.Exec(ctx, query,
			trade.ID,
			trade.MarketID,
			trade.BuyAsset,
			trade.SellAsset,
			trade.Price,
			trade.Quantity,
			trade.BuyOrderID,
			trade.SellOrderID,
			trade.BuyUserID,
			trade.SellUserID,
			trade.Timestamp,
		)
		if err != nil {
			return errors.TracerFromError(err)
		}
	}

	return nil
}

// GetAllTrades returns the most recent trades across all markets.
func (r *repository) GetAllTrades(ctx context.Context) ([]*tradev1.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY timestamp DESC LIMIT 1000`
	return r.queryTrades(ctx, query)
}

// GetUserTrades returns trades where the user was on either side.
func (r *repository) GetUserTrades(ctx context.Context, userID string) ([]*tradev1.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE buy_user_id = $1 OR sell_user_id = $1 ORDER BY timestamp DESC`
	return r.queryTrades(ctx, query, userID)
}

// GetOrderTrades returns trades where the order was on either side.
func (r *repository) GetOrderTrades(ctx context.Context, orderID string) ([]*tradev1.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE buy_order_id = $1 OR sell_order_id = $1 ORDER BY timestamp DESC`
	return r.queryTrades(ctx, query, orderID)
}

// GetMarketTrades returns the market's trades, most recent first.
func (r *repository) GetMarketTrades(ctx context.Context, marketID string) ([]*tradev1.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE market_id = $1 ORDER BY timestamp DESC`
	return r.queryTrades(ctx, query, marketID)
}

func (r *repository) queryTrades(ctx context.Context, query string, args ...any) ([]*tradev1.Trade, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	trades := []*tradev1.Trade{}
	for rows.Next() {
		trade := &tradev1.Trade{}
		err := rows.Scan(
			&trade.ID,
			&trade.MarketID,
			&trade.BuyAsset,
			&trade.SellAsset,
			&trade.Price,
			&trade.Quantity,
			&trade.BuyOrderID,
			&trade.SellOrderID,
			&trade.BuyUserID,
			&trade.SellUserID,
			&trade.Timestamp,
		)
		if err != nil {
			return nil, errors.TracerFromError(err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.TracerFromError(err)
	}

	return trades, nil
}
