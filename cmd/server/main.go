package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/Ephibbs/PanoMarket/internal/app/engine"
	"github.com/Ephibbs/PanoMarket/internal/usecase/journal"
	"github.com/Ephibbs/PanoMarket/internal/usecase/marketregistry"
	"github.com/Ephibbs/PanoMarket/internal/usecase/snapshot"
	"github.com/Ephibbs/PanoMarket/internal/usecase/tradepublisher"
	"github.com/Ephibbs/PanoMarket/internal/usecase/tradestore"
	"github.com/Ephibbs/PanoMarket/pkg/config"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/Ephibbs/PanoMarket/pkg/migration"
	"github.com/Ephibbs/PanoMarket/pkg/postgresql"
	"github.com/Ephibbs/PanoMarket/pkg/redis"
)

var cfg *config.Config
var log *logger.Logger

func init() {
	cfg = &config.Config{}
	config.MustLoad(cfg)

	l, err := logger.NewLogger(logger.WithLoggingLevel(logger.Level(cfg.LogLevel)))
	if err != nil {
		panic(err)
	}
	log = l
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	redisConfig := redis.DefaultConfig(cfg.Redis.Addrs)
	redisConfig.Username = cfg.Redis.Username
	redisConfig.Password = cfg.Redis.Password
	redisConfig.DB = cfg.Redis.DB

	rclient := redis.NewClient(log, redisConfig)
	if err := rclient.Connect(ctx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "connect_redis",
		})
		return
	}

	db, err := postgresql.NewClient(ctx, cfg.Postgres)
	if err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "connect_postgresql",
		})
		return
	}
	defer db.Close()

	migrations := migration.NewRunner(db, log, migration.Config{MigrationDir: cfg.MigrationDir})
	if err := migrations.MigrateUp(ctx, 0); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "run_migrations",
		})
		return
	}

	registry := marketregistry.NewRepository(db, log)
	tradeStore := tradestore.NewRepository(db, log)
	publisher := tradepublisher.NewPublisher(cfg.Kafka, log)
	saga := journal.New(rclient, log)
	snapshots := snapshot.New(rclient, log)

	engine := app.NewEngine(
		registry,
		tradeStore,
		publisher,
		saga,
		snapshots,
		log,
		app.OptionsFromConfig(cfg.Engine),
	)

	if err := engine.Start(ctx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "start_engine",
		})
		return
	}

	log.Info("exchange backend started")

	sig := <-sigChan
	log.Info("received shutdown signal", logger.Field{
		Key:   "signal",
		Value: sig.String(),
	})

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := engine.Stop(shutdownCtx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "stop_engine",
		})
	}

	if err := publisher.Close(); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "close_publisher",
		})
	}

	if err := rclient.Disconnect(shutdownCtx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "disconnect_redis",
		})
	}

	log.Info("exchange backend shutdown complete")
}
