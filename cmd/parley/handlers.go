// handlers.go contains the shared runtime wiring every command builds on:
// configuration, logging, storage and the event bus.
package main

import (
	"fmt"
	"log/slog"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/observability"
	"github.com/parleybot/parley/internal/storage"
)

// runtime bundles the pieces a command needs to talk to the gateway's
// state and bus.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	bus    bus.Bus
	stores storage.StoreSet
}

// openRuntime loads configuration and opens the storage and bus backends
// it selects. The caller must Close the runtime.
func openRuntime(configPath string, debug bool) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logCfg := observability.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if debug {
		logCfg.Level = "debug"
	}
	logger := observability.NewLogger(logCfg)
	slog.SetDefault(logger)

	var stores storage.StoreSet
	switch cfg.Storage.Driver {
	case "memory":
		stores = storage.NewMemoryStores().StoreSet()
	default:
		stores, err = storage.NewSQLiteStores(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	var b bus.Bus
	switch cfg.Bus.Driver {
	case "amqp":
		b, err = bus.NewAMQPBus(cfg.Bus.URL, logger, bus.WithAMQPRequeueDelay(cfg.Bus.RequeueDelay))
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("connect bus: %w", err)
		}
	default:
		b = bus.NewMemoryBus(logger, bus.WithRequeueDelay(cfg.Bus.RequeueDelay))
	}

	return &runtime{cfg: cfg, logger: logger, bus: b, stores: stores}, nil
}

// Close releases the bus and storage backends.
func (r *runtime) Close() {
	if err := r.bus.Close(); err != nil {
		r.logger.Warn("close bus", "error", err)
	}
	if err := r.stores.Close(); err != nil {
		r.logger.Warn("close storage", "error", err)
	}
}
