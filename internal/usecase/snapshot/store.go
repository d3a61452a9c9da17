package snapshot

import (
	"context"
	"encoding/json"

	snapshotv1 "github.com/Ephibbs/PanoMarket/internal/domain/snapshot/v1"
	"github.com/Ephibbs/PanoMarket/pkg/errors"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/Ephibbs/PanoMarket/pkg/redis"
)

const keyPrefix = "book:snapshot:"

// Store keeps one JSON book snapshot per market in Redis. A newer snapshot
// overwrites the previous one; there is no history.
type Store struct {
	redis  redis.Client
	logger logger.Interface
}

var _ snapshotv1.Store = (*Store)(nil)

// New creates a snapshot store over the given Redis client.
func New(client redis.Client, log logger.Interface) *Store {
	return &Store{
		redis:  client,
		logger: log,
	}
}

// Store persists the snapshot, replacing any previous one for the market.
func (s *Store) Store(ctx context.Context, snapshot *snapshotv1.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.TracerFromError(err)
	}

	if err := s.redis.Set(ctx, keyPrefix+snapshot.MarketID, payload, 0); err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "book snapshot stored", logger.Field{
		Key:   "marketID",
		Value: snapshot.MarketID,
	}, logger.Field{
		Key:   "orders",
		Value: len(snapshot.Orders),
	})
	return nil
}

// Load returns the market's snapshot, or (nil, nil) when none exists.
func (s *Store) Load(ctx context.Context, marketID string) (*snapshotv1.Snapshot, error) {
	payload, err := s.redis.Get(ctx, keyPrefix+marketID)
	if err != nil {
		return nil, err
	}
	if payload == "" {
		return nil, nil
	}

	var snapshot snapshotv1.Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, errors.TracerFromError(err)
	}
	return &snapshot, nil
}
