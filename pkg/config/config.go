package config

import (
	"time"

	"github.com/Ephibbs/PanoMarket/pkg/postgresql"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MustLoad loads the configuration from environment variables and .env file.
func MustLoad[T any](cfg T) {
	_ = godotenv.Load() // Load environment variables from .env file

	env.Must(cfg, env.Parse(cfg))
}

// Load loads the configuration from environment variables and .env file.
func Load[T any](cfg T) error {
	_ = godotenv.Load()

	return env.Parse(cfg)
}

// Config holds the configuration for the exchange backend.
type Config struct {
	LogLevel     string            `env:"LOG_LEVEL" envDefault:"info"`
	MigrationDir string            `env:"MIGRATION_DIR" envDefault:"migrations"`
	Engine       EngineConfig      `envPrefix:"ENGINE_"`
	Kafka        KafkaConfig       `envPrefix:"KAFKA_"`
	Redis        RedisConfig       `envPrefix:"REDIS_"`
	Postgres     postgresql.Config `envPrefix:"POSTGRES_"`
}

// EngineConfig holds tuning knobs for the settlement pipeline and shard upkeep.
type EngineConfig struct {
	SnapshotInterval  time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"30s"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	// ReservationGrace is how long a journaled reservation may stay pending
	// before the reconciler treats it as orphaned and releases it.
	ReservationGrace time.Duration `env:"RESERVATION_GRACE" envDefault:"2m"`
	SettleQueueSize  int           `env:"SETTLE_QUEUE_SIZE" envDefault:"1024"`
}

// KafkaConfig holds the configuration for the trade publisher.
type KafkaConfig struct {
	Brokers     []string `env:"BROKER,required"`
	TopicPrefix string   `env:"TOPIC_PREFIX" envDefault:"trades"`
}

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addrs    []string `env:"ADDRESS,required"`
	Username string   `env:"USERNAME" envDefault:""`
	Password string   `env:"PASSWORD" envDefault:""`
	DB       int      `env:"DB" envDefault:"0"`
}
