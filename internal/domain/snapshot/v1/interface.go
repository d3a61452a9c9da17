package snapshotv1

import "context"

// Store persists and loads book snapshots, keyed by market id.
// Load returns (nil, nil) when no snapshot exists yet.
type Store interface {
	Store(ctx context.Context, snapshot *Snapshot) error
	Load(ctx context.Context, marketID string) (*Snapshot, error)
}
