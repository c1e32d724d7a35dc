// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package events

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Event is the canonical record carried on the bus for one domain action.
// Both consumers (webhook dispatcher and realtime bridge) receive the same
// Event and fan it out through their own delivery mechanisms.
type Event struct {
	ID        string                 `json:"id"`
	Name      Name                   `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates an event with a unique ID and a UTC timestamp.
func NewEvent(name Name, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Name:      name,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Marshal serializes the event for the bus.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserializes a bus payload back into an Event.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
