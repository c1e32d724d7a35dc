// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

// Package config loads and validates server configuration.
//
// Configuration is loaded via Koanf v2 with layered sources
// (highest priority wins):
//   - Environment variables
//   - Config file (config.yaml)
//   - Built-in defaults
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Webhook  WebhookConfig  `koanf:"webhook"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Events   EventsConfig   `koanf:"events"`
	Store    StoreConfig    `koanf:"store"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WebhookConfig holds outbound webhook delivery settings.
type WebhookConfig struct {
	// DeliveryTimeout bounds each outbound HTTP POST.
	DeliveryTimeout time.Duration `koanf:"delivery_timeout"`

	// MaxConcurrent bounds the number of in-flight deliveries.
	MaxConcurrent int `koanf:"max_concurrent"`

	// RatePerSecond caps total outbound deliveries per second.
	// 0 disables the limiter.
	RatePerSecond float64 `koanf:"rate_per_second"`

	// BreakerEnabled toggles the per-host circuit breaker on delivery.
	BreakerEnabled bool `koanf:"breaker_enabled"`

	// BreakerCooldown is how long an open breaker stays open before
	// allowing a probe request.
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// RealtimeConfig holds WebSocket settings.
type RealtimeConfig struct {
	// PingInterval is how often the server pings each open connection.
	PingInterval time.Duration `koanf:"ping_interval"`

	// PongWait is how long a connection may go without a pong (or any
	// read) before it is considered dead and forcibly closed.
	PongWait time.Duration `koanf:"pong_wait"`

	// WriteWait bounds each outbound frame write.
	WriteWait time.Duration `koanf:"write_wait"`

	// MaxMessageSize caps inbound frame size in bytes.
	MaxMessageSize int64 `koanf:"max_message_size"`

	// SendBuffer is the per-client outbound frame buffer. A client whose
	// buffer fills is dropped rather than allowed to stall the hub.
	SendBuffer int `koanf:"send_buffer"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	// BusBuffer is the buffer size of the in-process event bus channels.
	BusBuffer int64 `koanf:"bus_buffer"`
}

// StoreConfig selects the webhook subscriber store backend.
type StoreConfig struct {
	// Backend is "memory" (default) or "badger".
	Backend string `koanf:"backend"`

	// Path is the on-disk directory for the badger backend.
	Path string `koanf:"path"`
}

// SecurityConfig holds the surface-level protections carried by the API.
type SecurityConfig struct {
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks configuration invariants. It is called after loading and
// returns the first violation found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Webhook.DeliveryTimeout <= 0 {
		return fmt.Errorf("webhook.delivery_timeout must be positive, got %s", c.Webhook.DeliveryTimeout)
	}
	if c.Webhook.MaxConcurrent < 1 {
		return fmt.Errorf("webhook.max_concurrent must be at least 1, got %d", c.Webhook.MaxConcurrent)
	}
	if c.Realtime.PingInterval <= 0 {
		return fmt.Errorf("realtime.ping_interval must be positive, got %s", c.Realtime.PingInterval)
	}
	// The pong deadline must outlast the ping interval or every connection
	// would be declared dead between pings.
	if c.Realtime.PongWait <= c.Realtime.PingInterval {
		return fmt.Errorf("realtime.pong_wait (%s) must exceed realtime.ping_interval (%s)",
			c.Realtime.PongWait, c.Realtime.PingInterval)
	}
	switch c.Store.Backend {
	case "memory":
	case "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the badger backend")
		}
	default:
		return fmt.Errorf("store.backend must be memory or badger, got %q", c.Store.Backend)
	}
	return nil
}
