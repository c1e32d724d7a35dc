// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the event distribution core:
// - Event emission volume and taxonomy rejections
// - Webhook delivery outcomes and latency
// - WebSocket connection and subscription gauges
// - API endpoint latency and throughput

var (
	// Event Emitter Metrics
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_emitted_total",
			Help: "Total number of domain events accepted by the emitter",
		},
		[]string{"event"},
	)

	EventsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_rejected_total",
			Help: "Total number of emit calls with an unrecognized event name",
		},
	)

	// Webhook Delivery Metrics
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts",
		},
		[]string{"event", "outcome"}, // outcome: "success", "http_error", "network_error", "breaker_open"
	)

	WebhookDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_duration_seconds",
			Help:    "Duration of webhook delivery attempts in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"event"},
	)

	WebhookSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_subscribers",
			Help: "Current number of registered webhook subscribers",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of connected WebSocket clients",
		},
	)

	WSSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_channel_subscriptions",
			Help: "Current total number of channel subscriptions across all clients",
		},
	)

	WSMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_total",
			Help: "Total number of WebSocket messages processed, by direction and type",
		},
		[]string{"direction", "type"}, // direction: "in", "out"
	)

	WSDroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_dropped_frames_total",
			Help: "Total number of frames dropped because a client send buffer was full",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordDelivery records one webhook delivery attempt.
func RecordDelivery(event, outcome string, elapsed time.Duration) {
	WebhookDeliveries.WithLabelValues(event, outcome).Inc()
	WebhookDeliveryDuration.WithLabelValues(event).Observe(elapsed.Seconds())
}

// RecordAPIRequest records latency and outcome for one API request.
func RecordAPIRequest(method, endpoint, statusCode string, elapsed time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}
