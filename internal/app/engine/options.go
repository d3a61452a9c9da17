package engine

import (
	"time"

	"github.com/Ephibbs/PanoMarket/pkg/config"
)

// Options are the engine tuning knobs.
type Options struct {
	SnapshotInterval  time.Duration
	ReconcileInterval time.Duration
	ReservationGrace  time.Duration
	SettleQueueSize   int

	// Mailbox capacities for the ledger and book shards.
	LedgerQueueSize int
	BookQueueSize   int
}

// DefaultOptions returns the default engine options.
func DefaultOptions() *Options {
	return &Options{
		SnapshotInterval:  30 * time.Second,
		ReconcileInterval: time.Minute,
		ReservationGrace:  2 * time.Minute,
		SettleQueueSize:   1024,
		LedgerQueueSize:   1024,
		BookQueueSize:     1024,
	}
}

// OptionsFromConfig builds engine options from the loaded configuration,
// falling back to defaults for anything unset.
func OptionsFromConfig(cfg config.EngineConfig) *Options {
	opts := DefaultOptions()
	if cfg.SnapshotInterval > 0 {
		opts.SnapshotInterval = cfg.SnapshotInterval
	}
	if cfg.ReconcileInterval > 0 {
		opts.ReconcileInterval = cfg.ReconcileInterval
	}
	if cfg.ReservationGrace > 0 {
		opts.ReservationGrace = cfg.ReservationGrace
	}
	if cfg.SettleQueueSize > 0 {
		opts.SettleQueueSize = cfg.SettleQueueSize
	}
	return opts
}
