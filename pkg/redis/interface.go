package redis

import (
	"context"
	"time"
)

// Client is the set of Redis operations used by the exchange backend.
type Client interface {
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) bool
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context) error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)

	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values map[string]any) (int64, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)

	Publish(ctx context.Context, channel string, message any) (int64, error)
}
