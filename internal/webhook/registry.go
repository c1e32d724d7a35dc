// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package webhook

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Aren-Garro/ZeroERP/internal/events"
	"github.com/Aren-Garro/ZeroERP/internal/logging"
	"github.com/Aren-Garro/ZeroERP/internal/metrics"
)

// Registry errors. Handlers map these onto the API error codes.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// secretBytes is the entropy of generated signing secrets (256 bits).
const secretBytes = 32

// Registry manages webhook subscribers on top of a Store. All methods are
// safe for concurrent use when the store is (both provided stores are).
type Registry struct {
	store Store
}

// NewRegistry creates a registry over the given store and seeds the
// subscriber gauge from it, so a restart on a persistent store reports the
// restored subscribers instead of zero.
func NewRegistry(store Store) *Registry {
	r := &Registry{store: store}
	count, err := r.Count()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to count stored webhook subscribers")
		return r
	}
	metrics.WebhookSubscribers.Set(float64(count))
	return r
}

// Register validates the request, generates an ID and, when secret is
// empty, a signing secret, and persists the subscriber. The returned
// Subscriber includes the secret; this is the only time it is ever exposed.
func (r *Registry) Register(rawURL string, eventNames []string, secret string) (*Subscriber, error) {
	if err := validateEndpointURL(rawURL); err != nil {
		return nil, err
	}
	if len(eventNames) == 0 {
		return nil, fmt.Errorf("%w: at least one event is required", ErrInvalidInput)
	}

	parsed := make([]events.Name, 0, len(eventNames))
	seen := make(map[events.Name]struct{}, len(eventNames))
	for _, raw := range eventNames {
		name, err := events.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		parsed = append(parsed, name)
	}

	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
		secret = generated
	}

	sub := &Subscriber{
		ID:        uuid.New().String(),
		URL:       rawURL,
		Events:    parsed,
		Secret:    secret,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.Put(sub); err != nil {
		return nil, fmt.Errorf("persist subscriber: %w", err)
	}

	metrics.WebhookSubscribers.Inc()
	logging.Info().
		Str("subscriber_id", sub.ID).
		Str("url", sub.URL).
		Int("events", len(sub.Events)).
		Msg("Webhook subscriber registered")
	return sub, nil
}

// Get returns one subscriber by ID, secret included. Used internally by the
// test-delivery path; API listings use PublicView.
func (r *Registry) Get(id string) (*Subscriber, error) {
	sub, err := r.store.Get(id)
	if errors.Is(err, ErrSubscriberNotFound) {
		return nil, fmt.Errorf("%w: subscriber %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// List returns the secret-free views of all subscribers.
func (r *Registry) List() ([]SubscriberView, error) {
	subs, err := r.store.List()
	if err != nil {
		return nil, err
	}
	views := make([]SubscriberView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, sub.PublicView())
	}
	return views, nil
}

// Remove deletes a subscriber.
func (r *Registry) Remove(id string) error {
	err := r.store.Delete(id)
	if errors.Is(err, ErrSubscriberNotFound) {
		return fmt.Errorf("%w: subscriber %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	metrics.WebhookSubscribers.Dec()
	logging.Info().
		Str("subscriber_id", id).
		Msg("Webhook subscriber removed")
	return nil
}

// FindSubscribers returns every subscriber whose event filter matches the
// given event name.
func (r *Registry) FindSubscribers(name events.Name) ([]*Subscriber, error) {
	subs, err := r.store.List()
	if err != nil {
		return nil, err
	}
	matched := make([]*Subscriber, 0, len(subs))
	for _, sub := range subs {
		if sub.WantsEvent(name) {
			matched = append(matched, sub)
		}
	}
	return matched, nil
}

// Count returns the current number of registered subscribers. NewRegistry
// uses it to seed the subscriber gauge from a persistent store.
func (r *Registry) Count() (int, error) {
	subs, err := r.store.List()
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

func validateEndpointURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: malformed url", ErrInvalidInput)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https", ErrInvalidInput)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url host is required", ErrInvalidInput)
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
