package redis

import "time"

// Mode represents the Redis deployment mode.
type Mode string

const (
	// Standalone is a single-node Redis deployment.
	Standalone Mode = "standalone"
	// Cluster is a Redis cluster deployment.
	Cluster Mode = "cluster"
)

// Config holds the configuration for the Redis client.
type Config struct {
	Mode     Mode
	Addrs    []string
	Username string
	Password string
	DB       int

	ConnectTimeout  time.Duration
	PoolSize        int
	MinIdleConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PoolTimeout     time.Duration

	MaxRetries          int
	MinRetryBackoff     time.Duration
	MaxRetryBackoff     time.Duration
	ReconnectMaxRetries int
}

// DefaultConfig returns a standalone config with sane pool defaults for the
// given addresses.
func DefaultConfig(addrs []string) *Config {
	return &Config{
		Mode:                Standalone,
		Addrs:               addrs,
		ConnectTimeout:      5 * time.Second,
		PoolSize:            10,
		MinIdleConns:        1,
		MaxIdleConns:        5,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     15 * time.Minute,
		PoolTimeout:         5 * time.Second,
		MaxRetries:          3,
		MinRetryBackoff:     8 * time.Millisecond,
		MaxRetryBackoff:     512 * time.Millisecond,
		ReconnectMaxRetries: 10,
	}
}
