// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package realtime

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestHandleFrameSubscribeFlow(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub)
	register(t, hub, c)

	c.handleFrame(InboundFrame{Type: FrameSubscribe, Payload: InboundPayload{Channel: "order.created"}})
	frame := receiveFrame(t, c)
	if frame.Type != FrameSubscribed || frame.Channel != "order.created" {
		t.Errorf("frame = %+v, want subscribed/order.created", frame)
	}
	if !hub.Registry().IsSubscribed(c, "order.created") {
		t.Error("client not subscribed after subscribe frame")
	}

	// Idempotent: same ack, no duplicate membership.
	c.handleFrame(InboundFrame{Type: FrameSubscribe, Payload: InboundPayload{Channel: "order.created"}})
	frame = receiveFrame(t, c)
	if frame.Type != FrameSubscribed {
		t.Errorf("repeat subscribe frame = %+v", frame)
	}

	c.handleFrame(InboundFrame{Type: FrameUnsubscribe, Payload: InboundPayload{Channel: "order.created"}})
	frame = receiveFrame(t, c)
	if frame.Type != FrameUnsubscribed || frame.Channel != "order.created" {
		t.Errorf("frame = %+v, want unsubscribed/order.created", frame)
	}
	if hub.Registry().IsSubscribed(c, "order.created") {
		t.Error("client still subscribed after unsubscribe frame")
	}
}

func TestHandleFramePing(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub)
	register(t, hub, c)

	c.handleFrame(InboundFrame{Type: FramePing})
	frame := receiveFrame(t, c)
	if frame.Type != FramePong {
		t.Errorf("frame type = %q, want pong", frame.Type)
	}
	if frame.Timestamp == "" {
		t.Error("pong frame has no timestamp")
	}
}

func TestHandleFrameErrors(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub)
	register(t, hub, c)

	tests := []struct {
		name  string
		frame InboundFrame
	}{
		{"subscribe without channel", InboundFrame{Type: FrameSubscribe}},
		{"unsubscribe without channel", InboundFrame{Type: FrameUnsubscribe}},
		{"broadcast without channel", InboundFrame{Type: FrameBroadcast}},
		{"broadcast without subscription", InboundFrame{Type: FrameBroadcast, Payload: InboundPayload{Channel: "warehouse"}}},
		{"unknown type", InboundFrame{Type: "shout"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.handleFrame(tt.frame)
			frame := receiveFrame(t, c)
			if frame.Type != FrameError {
				t.Errorf("frame = %+v, want error", frame)
			}
			if frame.Message == "" {
				t.Error("error frame has no reason")
			}
		})
	}
}

func TestHandleFrameBroadcast(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub)
	register(t, hub, c)

	hub.Registry().Subscribe(c, "warehouse")
	c.handleFrame(InboundFrame{
		Type: FrameBroadcast,
		Payload: InboundPayload{
			Channel: "warehouse",
			Data:    json.RawMessage(`{"note":"hello"}`),
		},
	})

	frame := receiveFrame(t, c)
	if frame.Type != FrameMessage {
		t.Errorf("frame type = %q, want message", frame.Type)
	}
	if frame.From != c.ID() {
		t.Errorf("frame from = %q, want sender's own ID", frame.From)
	}
}
