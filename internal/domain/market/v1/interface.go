package marketv1

import "context"

// Registry is the market metadata store. The core uses ResolveAssets
// read-only; the management operations back the excluded admin surface.
type Registry interface {
	// ResolveAssets returns the (buy_asset, sell_asset) pair of an active
	// market. ErrMarketNotFound for an unknown id, ErrMarketInactive for a
	// market whose status is not active.
	ResolveAssets(ctx context.Context, marketID string) (string, string, error)

	Create(ctx context.Context, market *Market) error
	GetByID(ctx context.Context, marketID string) (*Market, error)
	GetByAssets(ctx context.Context, buyAsset, sellAsset string) (*Market, error)
	List(ctx context.Context, activeOnly bool) ([]*Market, error)
	SetStatus(ctx context.Context, marketID string, status Status) error
}
