// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

// Package webhook implements the outbound webhook side of event
// distribution: the subscriber registry, HMAC payload signing, and the
// dispatcher that fans validated domain events out to registered endpoints.
package webhook

import (
	"time"

	"github.com/Aren-Garro/ZeroERP/internal/events"
)

// Subscriber is one registered webhook endpoint. The Secret is generated at
// registration time and returned to the caller exactly once; every listing
// afterwards exposes only the PublicView.
type Subscriber struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Events    []events.Name `json:"events"`
	Secret    string        `json:"secret"`
	CreatedAt time.Time     `json:"createdAt"`
}

// SubscriberView is the secret-free representation used in list responses.
type SubscriberView struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Events    []events.Name `json:"events"`
	CreatedAt time.Time     `json:"createdAt"`
}

// PublicView strips the signing secret from the subscriber.
func (s *Subscriber) PublicView() SubscriberView {
	return SubscriberView{
		ID:        s.ID,
		URL:       s.URL,
		Events:    s.Events,
		CreatedAt: s.CreatedAt,
	}
}

// WantsEvent reports whether the subscriber's event filter matches the name.
func (s *Subscriber) WantsEvent(name events.Name) bool {
	for _, e := range s.Events {
		if e == name {
			return true
		}
	}
	return false
}
