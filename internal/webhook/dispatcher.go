// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Aren-Garro/ZeroERP/internal/events"
	"github.com/Aren-Garro/ZeroERP/internal/logging"
	"github.com/Aren-Garro/ZeroERP/internal/metrics"
)

// Delivery headers. The signature covers the exact request body bytes.
const (
	HeaderEventName      = "X-Event-Name"
	HeaderEventTimestamp = "X-Event-Timestamp"
	HeaderEventSignature = "X-Event-Signature"
)

// ErrDeliveryFailed wraps any terminal delivery failure in the synchronous
// test path.
var ErrDeliveryFailed = errors.New("delivery failed")

// Payload is the JSON body POSTed to webhook endpoints. It is marshaled
// exactly once per event; those bytes are signed and sent unmodified to
// every matching subscriber.
type Payload struct {
	Event     events.Name            `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// DeliveryResult reports the outcome of one synchronous test delivery.
type DeliveryResult struct {
	SubscriberID string        `json:"subscriber_id"`
	URL          string        `json:"url"`
	Success      bool          `json:"success"`
	StatusCode   int           `json:"status_code,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"-"`
	DurationMS   int64         `json:"duration_ms"`
}

// DispatcherConfig tunes delivery behavior.
type DispatcherConfig struct {
	// Timeout bounds each HTTP delivery attempt.
	Timeout time.Duration
	// MaxConcurrent caps in-flight deliveries across all events.
	MaxConcurrent int
	// RatePerSecond throttles outbound deliveries globally. Zero means
	// unlimited.
	RatePerSecond float64
	// BreakerEnabled turns on per-endpoint circuit breaking.
	BreakerEnabled bool
	// BreakerCooldown is how long an open breaker waits before probing.
	BreakerCooldown time.Duration
}

// Dispatcher fans domain events out to matching webhook subscribers. Each
// delivery runs in its own goroutine; a slow or dead endpoint never blocks
// the event pipeline or deliveries to other subscribers. Per-endpoint
// circuit breakers stop hammering endpoints that persistently fail.
type Dispatcher struct {
	registry *Registry
	client   *http.Client
	cfg      DispatcherConfig

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[int]
}

// NewDispatcher creates a dispatcher over the registry.
func NewDispatcher(registry *Registry, cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 32
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.MaxConcurrent)
	}

	return &Dispatcher{
		registry: registry,
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter:  limiter,
		breakers: make(map[string]*gobreaker.CircuitBreaker[int]),
	}
}

// Dispatch delivers the event to every matching subscriber. It returns as
// soon as the deliveries are launched; failures are logged and counted, not
// surfaced, because no caller can meaningfully react to a third-party
// endpoint being down.
func (d *Dispatcher) Dispatch(ctx context.Context, event *events.Event) {
	subs, err := d.registry.FindSubscribers(event.Name)
	if err != nil {
		logging.Error().
			Err(err).
			Str("event", event.Name.String()).
			Msg("Failed to look up webhook subscribers")
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := marshalPayload(event.Name, event.Timestamp, event.Data)
	if err != nil {
		logging.Error().
			Err(err).
			Str("event", event.Name.String()).
			Msg("Failed to marshal webhook payload")
		return
	}

	for _, sub := range subs {
		sub := sub
		go func() {
			if err := d.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer d.sem.Release(1)

			result := d.deliver(ctx, sub, event.Name, event.Timestamp, payload)
			d.logResult(sub, result)
		}()
	}
}

// TestDelivery synchronously sends the synthetic test event to one
// subscriber and reports the outcome. Used by the API's test endpoint so a
// user can verify their receiver end to end, signature included.
func (d *Dispatcher) TestDelivery(ctx context.Context, subscriberID string) (*DeliveryResult, error) {
	sub, err := d.registry.Get(subscriberID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payload, err := marshalPayload(events.TestEvent, now, map[string]interface{}{
		"subscriber_id": sub.ID,
		"message":       "test delivery",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal test payload: %w", err)
	}

	result := d.deliver(ctx, sub, events.TestEvent, now, payload)
	d.logResult(sub, result)
	return result, nil
}

// marshalPayload serializes the wire body once. The returned bytes are both
// the signed content and the request body.
func marshalPayload(name events.Name, ts time.Time, data map[string]interface{}) ([]byte, error) {
	return json.Marshal(Payload{
		Event:     name,
		Timestamp: ts,
		Data:      data,
	})
}

func (d *Dispatcher) deliver(ctx context.Context, sub *Subscriber, name events.Name, ts time.Time, payload []byte) *DeliveryResult {
	result := &DeliveryResult{
		SubscriberID: sub.ID,
		URL:          sub.URL,
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			result.Error = "delivery cancelled while rate limited"
			return result
		}
	}

	start := time.Now()
	status, err := d.post(ctx, sub, name, ts, payload)
	result.Duration = time.Since(start)
	result.DurationMS = result.Duration.Milliseconds()
	result.StatusCode = status

	outcome := "success"
	switch {
	case err == nil && status >= 200 && status < 300:
		result.Success = true
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "breaker_open"
		result.Error = "circuit breaker open"
	case errors.Is(err, ErrDeliveryFailed):
		outcome = "http_error"
		result.Error = "endpoint returned " + strconv.Itoa(status)
	case err != nil:
		outcome = "network_error"
		result.Error = err.Error()
	default:
		outcome = "http_error"
		result.Error = "endpoint returned " + strconv.Itoa(status)
	}

	metrics.RecordDelivery(name.String(), outcome, result.Duration)
	return result
}

// post executes one HTTP delivery, routed through the subscriber's circuit
// breaker when enabled. Non-2xx statuses count as breaker failures.
func (d *Dispatcher) post(ctx context.Context, sub *Subscriber, name events.Name, ts time.Time, payload []byte) (int, error) {
	send := func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(payload))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderEventName, name.String())
		req.Header.Set(HeaderEventTimestamp, ts.Format(time.RFC3339Nano))
		req.Header.Set(HeaderEventSignature, Sign(sub.Secret, payload))

		resp, err := d.client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		return resp.StatusCode, nil
	}

	if !d.cfg.BreakerEnabled {
		return send()
	}

	return d.breakerFor(sub.ID).Execute(func() (int, error) {
		status, err := send()
		if err != nil {
			return 0, err
		}
		if status < 200 || status >= 300 {
			return status, fmt.Errorf("%w: endpoint returned %d", ErrDeliveryFailed, status)
		}
		return status, nil
	})
}

func (d *Dispatcher) breakerFor(subscriberID string) *gobreaker.CircuitBreaker[int] {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[subscriberID]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:    "webhook-" + subscriberID,
		Timeout: d.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Webhook circuit breaker state changed")
		},
	}
	cb := gobreaker.NewCircuitBreaker[int](settings)
	d.breakers[subscriberID] = cb
	return cb
}

// forgetBreaker drops a removed subscriber's breaker state.
func (d *Dispatcher) forgetBreaker(subscriberID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.breakers, subscriberID)
}

// RemoveSubscriber deletes a subscriber and its breaker state together.
func (d *Dispatcher) RemoveSubscriber(id string) error {
	if err := d.registry.Remove(id); err != nil {
		return err
	}
	d.forgetBreaker(id)
	return nil
}

func (d *Dispatcher) logResult(sub *Subscriber, result *DeliveryResult) {
	if result.Success {
		logging.Debug().
			Str("subscriber_id", sub.ID).
			Str("url", sub.URL).
			Int("status", result.StatusCode).
			Dur("duration", result.Duration).
			Msg("Webhook delivered")
		return
	}
	logging.Warn().
		Str("subscriber_id", sub.ID).
		Str("url", sub.URL).
		Int("status", result.StatusCode).
		Str("error", result.Error).
		Dur("duration", result.Duration).
		Msg("Webhook delivery failed")
}
