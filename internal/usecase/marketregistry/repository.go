package marketregistry

import (
	"context"
	"time"

	marketv1 "github.com/Ephibbs/PanoMarket/internal/domain/market/v1"
	"github.com/Ephibbs/PanoMarket/pkg/errors"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/Ephibbs/PanoMarket/pkg/postgresql"
	"github.com/jackc/pgx/v5"
)

const marketColumns = `id, name, buy_asset, sell_asset, description, min_order_size, price_precision, quantity_precision, status, created_at, updated_at`

// repository is the PostgreSQL-backed market registry.
type repository struct {
	db     postgresql.PostgreSQLClient
	logger logger.Interface
}

var _ marketv1.Registry = (*repository)(nil)

// NewRepository creates a new market repository.
func NewRepository(db postgresql.PostgreSQLClient, logger logger.Interface) *repository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

// ResolveAssets returns the asset pair of an active market.
func (r *repository) ResolveAssets(ctx context.Context, marketID string) (string, string, error) {
	market, err := r.GetByID(ctx, marketID)
	if err != nil {
		return "", "", err
	}
	if market.Status != marketv1.StatusActive {
		return "", "", marketv1.ErrMarketInactive
	}
	return market.BuyAsset, market.SellAsset, nil
}

// Create stores a new market. Status defaults to active when unset.
func (r *repository) Create(ctx context.Context, market *marketv1.Market) error {
	if market.Status == "" {
		market.Status = marketv1.StatusActive
	}
	now := time.Now()
	market.CreatedAt = now
	market.UpdatedAt = now

	query := `INSERT INTO markets (` + marketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		market.ID,
		market.Name,
		market.BuyAsset,
		market.SellAsset,
		market.Description,
		market.MinOrderSize,
		market.PricePrecision,
		market.QuantityPrecision,
		market.Status,
		market.CreatedAt,
		market.UpdatedAt,
	)
	if err != nil {
		return errors.TracerFromError(err)
	}

	r.logger.InfoContext(ctx, "market created", logger.Field{
		Key:   "marketID",
		Value: market.ID,
	})

	return nil
}

// GetByID gets a market by id.
func (r *repository) GetByID(ctx context.Context, marketID string) (*marketv1.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`
	return r.scanMarket(r.db.QueryRow(ctx, query, marketID))
}

// GetByAssets gets a market by its asset pair.
func (r *repository) GetByAssets(ctx context.Context, buyAsset, sellAsset string) (*marketv1.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE buy_asset = $1 AND sell_asset = $2`
	return r.scanMarket(r.db.QueryRow(ctx, query, buyAsset, sellAsset))
}

// List lists markets, optionally restricted to active ones.
func (r *repository) List(ctx context.Context, activeOnly bool) ([]*marketv1.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets`
	args := []any{}
	if activeOnly {
		query += ` WHERE status = $1`
		args = append(args, marketv1.StatusActive)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	markets := []*marketv1.Market{}
	for rows.Next() {
		market := &marketv1.Market{}
		err := rows.Scan(
			&market.ID,
			&market.Name,
			&market.BuyAsset,
			&market.SellAsset,
			&market.Description,
			&market.MinOrderSize,
			&market.PricePrecision,
			&market.QuantityPrecision,
			&market.Status,
			&market.CreatedAt,
			&market.UpdatedAt,
		)
		if err != nil {
			return nil, errors.TracerFromError(err)
		}
		markets = append(markets, market)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.TracerFromError(err)
	}

	return markets, nil
}

// SetStatus updates a market's lifecycle status.
func (r *repository) SetStatus(ctx context.Context, marketID string, status marketv1.Status) error {
	query := `UPDATE markets SET status = $1, updated_at = $2 WHERE id = $3`

	cmd, err := r.db.Exec(ctx, query, status, time.Now(), marketID)
	if err != nil {
		return errors.TracerFromError(err)
	}
	if cmd.RowsAffected() == 0 {
		return marketv1.ErrMarketNotFound
	}

	return nil
}

func (r *repository) scanMarket(row pgx.Row) (*marketv1.Market, error) {
	market := &marketv1.Market{}
	err := row.Scan(
		&market.ID,
		&market.Name,
		&market.BuyAsset,
		&market.SellAsset,
		&market.Description,
		&market.MinOrderSize,
		&market.PricePrecision,
		&market.QuantityPrecision,
		&market.Status,
		&market.CreatedAt,
		&market.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, marketv1.ErrMarketNotFound
		}
		return nil, errors.TracerFromError(err)
	}
	return market, nil
}
