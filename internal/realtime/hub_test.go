// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/Aren-Garro/ZeroERP/internal/events"
)

// startHub runs the hub loop for the duration of the test.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop on context cancel")
		}
	})
	return hub
}

// register connects a client and consumes its connection frame.
func register(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.Register <- c
	frame := receiveFrame(t, c)
	if frame.Type != FrameConnection {
		t.Fatalf("first frame type = %q, want connection", frame.Type)
	}
	if frame.ClientID != c.ID() {
		t.Fatalf("connection frame ID = %q, want %q", frame.ClientID, c.ID())
	}
}

func receiveFrame(t *testing.T, c *Client) OutboundFrame {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed while expecting a frame")
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return OutboundFrame{}
	}
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishEventReachesEventChannelAndFirehose(t *testing.T) {
	hub := startHub(t)

	subscriber := newTestClient(hub)
	firehose := newTestClient(hub)
	bystander := newTestClient(hub)
	register(t, hub, subscriber)
	register(t, hub, firehose)
	register(t, hub, bystander)

	hub.Registry().Subscribe(subscriber, "order.created")
	hub.Registry().Subscribe(firehose, events.ChannelFirehose)
	hub.Registry().Subscribe(bystander, "inventory.low")

	event := events.NewEvent(events.OrderCreated, map[string]interface{}{"order_id": "ord-1"})
	hub.PublishEvent(event)

	for name, c := range map[string]*Client{"subscriber": subscriber, "firehose": firehose} {
		frame := receiveFrame(t, c)
		if frame.Type != FrameEvent {
			t.Errorf("%s: frame type = %q, want event", name, frame.Type)
		}
		if frame.Event != "order.created" {
			t.Errorf("%s: frame event = %q", name, frame.Event)
		}
		data, ok := frame.Data.(map[string]interface{})
		if !ok || data["order_id"] != "ord-1" {
			t.Errorf("%s: frame data = %v", name, frame.Data)
		}
	}
	expectNoFrame(t, bystander)
}

func TestRelayEchoesToAllMembersIncludingSender(t *testing.T) {
	hub := startHub(t)

	sender := newTestClient(hub)
	peer := newTestClient(hub)
	register(t, hub, sender)
	register(t, hub, peer)

	hub.Registry().Subscribe(sender, "warehouse")
	hub.Registry().Subscribe(peer, "warehouse")

	hub.Relay(sender, "warehouse", json.RawMessage(`{"note":"restock aisle 4"}`))

	for name, c := range map[string]*Client{"sender": sender, "peer": peer} {
		frame := receiveFrame(t, c)
		if frame.Type != FrameMessage {
			t.Errorf("%s: frame type = %q, want message", name, frame.Type)
		}
		if frame.Channel != "warehouse" {
			t.Errorf("%s: frame channel = %q", name, frame.Channel)
		}
		if frame.From != sender.ID() {
			t.Errorf("%s: frame from = %q, want %q", name, frame.From, sender.ID())
		}
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := startHub(t)

	timing := DefaultTiming()
	timing.SendBuffer = 1
	slow := NewClient(hub, nil, timing)
	healthy := newTestClient(hub)
	register(t, hub, slow)
	register(t, hub, healthy)

	hub.Registry().Subscribe(slow, "order.created")
	hub.Registry().Subscribe(healthy, "order.created")

	// Two events: the slow client's single-slot buffer absorbs the first,
	// the second send fails and forces a drop.
	hub.PublishEvent(events.NewEvent(events.OrderCreated, nil))
	hub.PublishEvent(events.NewEvent(events.OrderCreated, nil))

	got := 0
	for {
		select {
		case _, ok := <-slow.send:
			if !ok {
				if got != 1 {
					t.Errorf("slow client received %d frames before drop, want 1", got)
				}
				if hub.Registry().Has(slow) {
					t.Error("dropped client still registered")
				}
				// The healthy client got both events.
				for i := 0; i < 2; i++ {
					frame := receiveFrame(t, healthy)
					if frame.Type != FrameEvent {
						t.Errorf("healthy frame %d type = %q", i, frame.Type)
					}
				}
				return
			}
			got++
		case <-time.After(2 * time.Second):
			t.Fatal("slow client send channel was never closed")
		}
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	hub := startHub(t)

	c := newTestClient(hub)
	register(t, hub, c)
	hub.Registry().Subscribe(c, "order.created")

	hub.Unregister <- c
	expectNoFrame(t, c) // channel closed, no frames

	// Publishing after unregister must not resurrect the client.
	hub.PublishEvent(events.NewEvent(events.OrderCreated, nil))
	if hub.Registry().Has(c) {
		t.Error("unregistered client still present")
	}
}

func TestShutdownClosesAllClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- hub.RunWithContext(ctx)
	}()

	c := newTestClient(hub)
	hub.Register <- c
	receiveFrame(t, c)

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("RunWithContext returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	if _, ok := <-c.send; ok {
		t.Error("client send channel still open after shutdown")
	}
}

func TestTeardownDoesNotBlockAfterHubStops(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(stopped)
	}()

	c := newTestClient(hub)
	hub.Register <- c
	receiveFrame(t, c)

	select {
	case <-hub.Done():
		t.Fatal("Done closed while the hub loop is running")
	default:
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// The reader teardown handoff: with the loop gone, Done must release it.
	handed := make(chan struct{})
	go func() {
		select {
		case hub.Unregister <- c:
		case <-hub.Done():
		}
		close(handed)
	}()
	select {
	case <-handed:
	case <-time.After(time.Second):
		t.Fatal("unregister handoff blocked after hub stopped")
	}
}
