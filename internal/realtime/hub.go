// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/Aren-Garro/ZeroERP/internal/events"
	"github.com/Aren-Garro/ZeroERP/internal/logging"
	"github.com/Aren-Garro/ZeroERP/internal/metrics"
)

// channelPublish targets one frame at every member of a channel.
type channelPublish struct {
	channel string
	frame   OutboundFrame
}

// Hub owns the connection registry and serializes all fan-out through a
// single goroutine. Client goroutines and the event bridge hand it work via
// channels; slow clients are dropped rather than allowed to stall everyone
// else.
type Hub struct {
	registry *Registry

	Register   chan *Client
	Unregister chan *Client
	publish    chan channelPublish

	mu   sync.Mutex
	done chan struct{}
}

// NewHub creates a hub with an empty registry. The done channel starts
// closed: until RunWithContext runs, nothing drains Unregister, so client
// teardown must not block on it.
func NewHub() *Hub {
	done := make(chan struct{})
	close(done)
	return &Hub{
		registry:   NewRegistry(),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		publish:    make(chan channelPublish, 256),
		done:       done,
	}
}

// Done returns a channel that is closed whenever the hub loop is not
// running. Client teardown selects it against the Unregister handoff so a
// stopped hub never strands a reader goroutine; by the time the loop exits,
// shutdown has already emptied the registry, so skipping the handoff loses
// nothing.
func (h *Hub) Done() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Registry exposes the connection registry for client frame handling.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// RunWithContext runs the hub loop until the context is cancelled. It is
// designed for suture supervision: on shutdown every connection is closed
// and ctx.Err() is returned.
//
// Selection is priority ordered so behavior stays predictable when several
// channels are ready at once: shutdown first, then connection lifecycle,
// then publishes.
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.mu.Lock()
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()
	defer close(done)

	for {
		// Priority 1: shutdown (non-blocking check).
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: connection lifecycle (non-blocking check).
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: block on anything.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case pub := <-h.publish:
			h.fanOut(pub)
		}
	}
}

// PublishEvent queues a domain event for delivery to its own channel and to
// the firehose channel. Never blocks; if the hub's queue is full the frame
// is dropped and counted.
func (h *Hub) PublishEvent(event *events.Event) {
	for _, channel := range []string{event.Name.String(), events.ChannelFirehose} {
		h.enqueue(channelPublish{
			channel: channel,
			frame: OutboundFrame{
				Type:      FrameEvent,
				Event:     event.Name.String(),
				Channel:   channel,
				Data:      event.Data,
				Timestamp: wireTimestamp(event.Timestamp),
			},
		})
	}
}

// Relay queues a client broadcast for delivery to every member of the
// channel, the sender included. The frame is tagged with the sender's
// connection ID so receivers can tell peers apart.
func (h *Hub) Relay(from *Client, channel string, data json.RawMessage) {
	h.enqueue(channelPublish{
		channel: channel,
		frame: OutboundFrame{
			Type:    FrameMessage,
			Channel: channel,
			From:    from.ID(),
			Data:    data,
		},
	})
}

func (h *Hub) enqueue(pub channelPublish) {
	select {
	case h.publish <- pub:
	default:
		metrics.WSDroppedFrames.Inc()
		logging.Warn().
			Str("channel", pub.channel).
			Str("frame_type", pub.frame.Type).
			Msg("Hub queue full, dropping frame")
	}
}

func (h *Hub) addClient(client *Client) {
	h.registry.Add(client)
	metrics.WSConnections.Inc()
	client.trySend(OutboundFrame{
		Type:     FrameConnection,
		ClientID: client.ID(),
	})
	logging.Info().
		Str("connection_id", client.ID()).
		Str("remote_addr", client.remoteAddr).
		Str("user_agent", client.userAgent).
		Int("total_connections", h.registry.ConnectionCount()).
		Msg("Realtime client connected")
}

func (h *Hub) removeClient(client *Client) {
	if !h.registry.Has(client) {
		return
	}
	dropped := h.registry.Remove(client)
	client.closeSend()
	metrics.WSConnections.Dec()
	metrics.WSSubscriptions.Sub(float64(dropped))
	logging.Info().
		Str("connection_id", client.ID()).
		Dur("connected_for", time.Since(client.connectedAt)).
		Int("total_connections", h.registry.ConnectionCount()).
		Msg("Realtime client disconnected")
}

// fanOut delivers one frame to every channel member. Members are visited in
// connection-ID order so delivery order is stable. A member whose send
// buffer is full is dropped on the spot: a stalled reader must not hold a
// queue slot for everyone else.
func (h *Hub) fanOut(pub channelPublish) {
	members := h.registry.ChannelMembers(pub.channel)
	if len(members) == 0 {
		return
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].ID() < members[j].ID()
	})

	for _, client := range members {
		if client.trySend(pub.frame) {
			metrics.WSMessages.WithLabelValues("out", pub.frame.Type).Inc()
			continue
		}
		metrics.WSDroppedFrames.Inc()
		logging.Warn().
			Str("connection_id", client.ID()).
			Str("channel", pub.channel).
			Msg("Client send buffer full, dropping connection")
		h.removeClient(client)
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	count := h.registry.ConnectionCount()
	for _, client := range h.registry.All() {
		h.removeClient(client)
	}
	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "realtime-hub").
		Str("reason", reason).
		Int("clients_closed", count).
		Msg("Realtime hub stopped")
}

func (h *Hub) String() string {
	return "realtime-hub"
}
