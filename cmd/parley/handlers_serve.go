// handlers_serve.go wires and runs the full gateway.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parleybot/parley/internal/channel"
	"github.com/parleybot/parley/internal/channel/manager"
	"github.com/parleybot/parley/internal/channel/pairing"
	"github.com/parleybot/parley/internal/channel/whatsapp"
	"github.com/parleybot/parley/internal/chat"
	"github.com/parleybot/parley/internal/observability"
)

// runServe starts the gateway and blocks until a shutdown signal.
func runServe(ctx context.Context, configPath string, debug bool) error {
	rt, err := openRuntime(configPath, debug)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	channels := channel.NewService(rt.bus, rt.stores, rt.logger)
	coord := pairing.NewCoordinator(rt.bus, rt.stores.Channels, rt.logger,
		pairing.WithTimeout(rt.cfg.Pairing.Timeout))
	chats := chat.NewService(rt.bus, rt.stores.Chats, rt.stores.Messages, rt.logger)

	var managers []*manager.Manager
	if rt.cfg.WhatsApp.Enabled {
		transport := whatsapp.NewTransport(rt.cfg.WhatsApp.DataDir, rt.logger)
		m := manager.New(transport, rt.bus, rt.stores.Channels, coord, chats, channels, rt.logger,
			manager.WithPollInterval(rt.cfg.Pairing.PollInterval),
			manager.WithPairingWindow(rt.cfg.Pairing.Timeout),
			manager.WithMetrics(metrics))
		managers = append(managers, m)
	}
	if len(managers) == 0 {
		rt.logger.Warn("no transports enabled, serving storage and bus only")
	}

	for _, m := range managers {
		if err := m.Start(ctx); err != nil {
			return err
		}
	}
	defer func() {
		for _, m := range managers {
			m.Stop()
		}
	}()

	var metricsSrv *http.Server
	if rt.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: rt.cfg.Metrics.Addr, Handler: mux}
		go func() {
			rt.logger.Info("metrics endpoint listening", "addr", rt.cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	rt.logger.Info("gateway running",
		"bus", rt.cfg.Bus.Driver,
		"storage", rt.cfg.Storage.Driver,
		"transports", len(managers))

	<-ctx.Done()
	rt.logger.Info("shutting down")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			rt.logger.Warn("metrics server shutdown", "error", err)
		}
	}
	return nil
}
