// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package realtime

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Aren-Garro/ZeroERP/internal/logging"
	"github.com/Aren-Garro/ZeroERP/internal/metrics"
)

// Timing bundles the liveness and buffering parameters for one connection.
type Timing struct {
	// PingInterval is how often protocol pings are sent.
	PingInterval time.Duration
	// PongWait is how long a connection may stay silent before it is
	// considered dead. Must exceed PingInterval.
	PongWait time.Duration
	// WriteWait bounds each write to the socket.
	WriteWait time.Duration
	// MaxMessageSize caps inbound frames in bytes.
	MaxMessageSize int64
	// SendBuffer is the outbound frame queue per connection.
	SendBuffer int
}

// DefaultTiming returns the parameters used when no configuration applies.
func DefaultTiming() Timing {
	return Timing{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

// Client is the middleman between one WebSocket connection and the hub.
// The reader goroutine handles inbound frames; the writer goroutine drains
// the send queue and keeps the protocol-level heartbeat going.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	timing Timing

	connectedAt time.Time
	remoteAddr  string
	userAgent   string

	send chan OutboundFrame

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection. conn may be nil in tests; only
// Start touches it.
func NewClient(hub *Hub, conn *websocket.Conn, timing Timing) *Client {
	if timing.PingInterval <= 0 || timing.PongWait <= timing.PingInterval {
		timing = DefaultTiming()
	}
	if timing.SendBuffer <= 0 {
		timing.SendBuffer = 256
	}
	return &Client{
		id:          uuid.New().String(),
		hub:         hub,
		conn:        conn,
		timing:      timing,
		connectedAt: time.Now().UTC(),
		send:        make(chan OutboundFrame, timing.SendBuffer),
	}
}

// ID returns the connection identifier announced in the connection frame.
func (c *Client) ID() string {
	return c.id
}

// SetPeerInfo records the remote address and user agent for connection
// logging. Call before registering with the hub.
func (c *Client) SetPeerInfo(remoteAddr, userAgent string) {
	c.remoteAddr = remoteAddr
	c.userAgent = userAgent
}

// Start launches the reader and writer goroutines.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// trySend queues a frame without blocking. It reports false when the buffer
// is full; sends to a closed client are silently discarded.
func (c *Client) trySend(frame OutboundFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend shuts the outbound queue. Idempotent; the hub calls it on
// unregister and on forced drops.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads frames until the connection dies, then unregisters the
// client. Liveness is enforced with a read deadline refreshed by protocol
// pongs.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.Done():
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.timing.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timing.PongWait)); err != nil {
		logging.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.timing.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().
					Err(err).
					Str("connection_id", c.id).
					Msg("Unexpected websocket close")
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.trySend(errorFrame("malformed message"))
			continue
		}
		c.handleFrame(frame)
	}
}

// handleFrame processes one inbound frame. Malformed or unknown frames get
// an error frame back; the connection stays open.
func (c *Client) handleFrame(frame InboundFrame) {
	metrics.WSMessages.WithLabelValues("in", frame.Type).Inc()

	channel := frame.Payload.Channel
	switch frame.Type {
	case FrameSubscribe:
		if channel == "" {
			c.trySend(errorFrame("subscribe requires a channel"))
			return
		}
		if c.hub.Registry().Subscribe(c, channel) {
			metrics.WSSubscriptions.Inc()
		}
		c.trySend(OutboundFrame{Type: FrameSubscribed, Channel: channel})

	case FrameUnsubscribe:
		if channel == "" {
			c.trySend(errorFrame("unsubscribe requires a channel"))
			return
		}
		if c.hub.Registry().Unsubscribe(c, channel) {
			metrics.WSSubscriptions.Dec()
		}
		c.trySend(OutboundFrame{Type: FrameUnsubscribed, Channel: channel})

	case FramePing:
		c.trySend(OutboundFrame{Type: FramePong, Timestamp: wireTimestamp(time.Now())})

	case FrameBroadcast:
		if channel == "" {
			c.trySend(errorFrame("broadcast requires a channel"))
			return
		}
		if !c.hub.Registry().IsSubscribed(c, channel) {
			c.trySend(errorFrame("not subscribed to channel"))
			return
		}
		c.hub.Relay(c, channel, frame.Payload.Data)

	default:
		c.trySend(errorFrame("unknown frame type"))
	}
}

// writePump drains the send queue to the socket and sends protocol pings.
// It exits when the queue is closed or a write fails; closing the socket
// unblocks the reader, which then unregisters the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.timing.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.timing.WriteWait)); err != nil {
				logging.Error().Err(err).Msg("Failed to set write deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				logging.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("Websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.timing.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
