// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

// Command server runs the ZeroERP event distribution service: webhook
// management and delivery, event emission, and realtime WebSocket fan-out.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Aren-Garro/ZeroERP/internal/api"
	"github.com/Aren-Garro/ZeroERP/internal/config"
	"github.com/Aren-Garro/ZeroERP/internal/events"
	"github.com/Aren-Garro/ZeroERP/internal/logging"
	"github.com/Aren-Garro/ZeroERP/internal/realtime"
	"github.com/Aren-Garro/ZeroERP/internal/supervisor"
	"github.com/Aren-Garro/ZeroERP/internal/supervisor/services"
	"github.com/Aren-Garro/ZeroERP/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("store", cfg.Store.Backend).
		Msg("Starting ZeroERP event distribution service")

	store, err := openStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open webhook store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close webhook store")
		}
	}()

	registry := webhook.NewRegistry(store)
	dispatcher := webhook.NewDispatcher(registry, webhook.DispatcherConfig{
		Timeout:         cfg.Webhook.DeliveryTimeout,
		MaxConcurrent:   cfg.Webhook.MaxConcurrent,
		RatePerSecond:   cfg.Webhook.RatePerSecond,
		BreakerEnabled:  cfg.Webhook.BreakerEnabled,
		BreakerCooldown: cfg.Webhook.BreakerCooldown,
	})

	bus := events.NewBus(cfg.Events.BusBuffer)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close event bus")
		}
	}()
	emitter := events.NewEmitter(bus)

	hub := realtime.NewHub()
	timing := realtime.Timing{
		PingInterval:   cfg.Realtime.PingInterval,
		PongWait:       cfg.Realtime.PongWait,
		WriteWait:      cfg.Realtime.WriteWait,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		SendBuffer:     cfg.Realtime.SendBuffer,
	}

	handler := api.NewHandler(registry, dispatcher, emitter, hub, timing, cfg.Security.CORSOrigins)
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins:     cfg.Security.CORSOrigins,
		RateLimitReqs:   cfg.Security.RateLimitReqs,
		RateLimitWindow: cfg.Security.RateLimitWindow,
	})
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Both consumers subscribe here, before the supervisor starts anything,
	// so an event accepted moments after the HTTP server comes up cannot be
	// published into an empty bus.
	bridge, err := realtime.NewBridge(bus, hub)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to subscribe realtime bridge")
	}
	consumer, err := webhook.NewConsumer(bus, dispatcher)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to subscribe webhook consumer")
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDistributionService(services.NewHubService(hub))
	tree.AddDistributionService(bridge)
	tree.AddDistributionService(consumer)
	tree.AddAPIService(services.NewHTTPServerService(server, supervisor.DefaultTreeConfig().ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor exited with error")
		os.Exit(1)
	}
	logging.Info().Msg("Shutdown complete")
}

// openStore selects the webhook persistence backend from configuration.
func openStore(cfg *config.Config) (webhook.Store, error) {
	if cfg.Store.Backend == "badger" {
		return webhook.OpenBadgerStore(cfg.Store.Path)
	}
	return webhook.NewMemoryStore(), nil
}
