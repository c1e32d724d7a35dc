// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/Aren-Garro/ZeroERP/internal/events"
	"github.com/Aren-Garro/ZeroERP/internal/realtime"
	"github.com/Aren-Garro/ZeroERP/internal/webhook"
)

// wsEnv runs the full realtime pipeline: bus, emitter, bridge, hub, and an
// HTTP server exposing the upgrade endpoint.
type wsEnv struct {
	srv     *httptest.Server
	emitter *events.Emitter
	hub     *realtime.Hub
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	return newWSEnvWithTiming(t, realtime.DefaultTiming())
}

func newWSEnvWithTiming(t *testing.T, timing realtime.Timing) *wsEnv {
	t.Helper()

	registry := webhook.NewRegistry(webhook.NewMemoryStore())
	dispatcher := webhook.NewDispatcher(registry, webhook.DispatcherConfig{})
	bus := events.NewBus(16)
	emitter := events.NewEmitter(bus)
	hub := realtime.NewHub()

	bridge, err := realtime.NewBridge(bus, hub)
	if err != nil {
		t.Fatalf("NewBridge error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()
	go func() { _ = bridge.Serve(ctx) }()

	h := NewHandler(registry, dispatcher, emitter, hub, timing, []string{"*"})
	router := NewRouter(h, RouterConfig{CORSOrigins: []string{"*"}, RateLimitWindow: time.Minute})
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		bus.Close()
	})
	return &wsEnv{srv: srv, emitter: emitter, hub: hub}
}

func (env *wsEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]interface{}) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWebSocketLifecycle(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)

	// First frame announces the connection ID.
	frame := readFrame(t, conn)
	if frame["type"] != "connection" {
		t.Fatalf("first frame = %v, want connection", frame)
	}
	if frame["clientId"] == "" || frame["clientId"] == nil {
		t.Fatal("connection frame missing clientId")
	}

	// Subscribe and receive the ack.
	writeFrame(t, conn, map[string]interface{}{
		"type":    "subscribe",
		"payload": map[string]interface{}{"channel": "order.created"},
	})
	frame = readFrame(t, conn)
	if frame["type"] != "subscribed" || frame["channel"] != "order.created" {
		t.Fatalf("frame = %v, want subscribed/order.created", frame)
	}

	// An emitted event reaches the subscribed channel.
	env.emitter.Emit("order.created", map[string]interface{}{"order_id": "ord-9"})
	frame = readFrame(t, conn)
	if frame["type"] != "event" || frame["event"] != "order.created" {
		t.Fatalf("frame = %v, want event/order.created", frame)
	}
	data, ok := frame["data"].(map[string]interface{})
	if !ok || data["order_id"] != "ord-9" {
		t.Errorf("event data = %v", frame["data"])
	}

	// JSON-level ping gets a pong.
	writeFrame(t, conn, map[string]interface{}{"type": "ping"})
	frame = readFrame(t, conn)
	if frame["type"] != "pong" {
		t.Fatalf("frame = %v, want pong", frame)
	}

	// Unsubscribe stops event delivery.
	writeFrame(t, conn, map[string]interface{}{
		"type":    "unsubscribe",
		"payload": map[string]interface{}{"channel": "order.created"},
	})
	frame = readFrame(t, conn)
	if frame["type"] != "unsubscribed" {
		t.Fatalf("frame = %v, want unsubscribed", frame)
	}
}

func TestWebSocketMalformedFrame(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)
	readFrame(t, conn) // connection frame

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "error" {
		t.Fatalf("frame = %v, want error", frame)
	}

	// Connection survives: a ping still works.
	writeFrame(t, conn, map[string]interface{}{"type": "ping"})
	frame = readFrame(t, conn)
	if frame["type"] != "pong" {
		t.Fatalf("frame = %v, want pong after error", frame)
	}
}

func TestWebSocketBroadcastBetweenClients(t *testing.T) {
	env := newWSEnv(t)
	sender := env.dial(t)
	receiver := env.dial(t)

	senderConn := readFrame(t, sender)
	readFrame(t, receiver)
	senderID := senderConn["clientId"].(string)

	for _, conn := range []*websocket.Conn{sender, receiver} {
		writeFrame(t, conn, map[string]interface{}{
			"type":    "subscribe",
			"payload": map[string]interface{}{"channel": "warehouse"},
		})
		frame := readFrame(t, conn)
		if frame["type"] != "subscribed" {
			t.Fatalf("frame = %v, want subscribed", frame)
		}
	}

	writeFrame(t, sender, map[string]interface{}{
		"type": "broadcast",
		"payload": map[string]interface{}{
			"channel": "warehouse",
			"data":    map[string]interface{}{"note": "hello"},
		},
	})

	// Both members receive the relayed message, sender included.
	for name, conn := range map[string]*websocket.Conn{"sender": sender, "receiver": receiver} {
		frame := readFrame(t, conn)
		if frame["type"] != "message" {
			t.Fatalf("%s: frame = %v, want message", name, frame)
		}
		if frame["from"] != senderID {
			t.Errorf("%s: from = %v, want %s", name, frame["from"], senderID)
		}
		data, ok := frame["data"].(map[string]interface{})
		if !ok || data["note"] != "hello" {
			t.Errorf("%s: data = %v", name, frame["data"])
		}
	}
}

func TestWebSocketHeartbeatTimeoutDropsConnection(t *testing.T) {
	timing := realtime.Timing{
		PingInterval:   100 * time.Millisecond,
		PongWait:       300 * time.Millisecond,
		WriteWait:      time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     16,
	}
	env := newWSEnvWithTiming(t, timing)
	conn := env.dial(t)
	readFrame(t, conn) // connection frame

	// Swallow protocol pings so the server never gets a pong back. The
	// default gorilla ping handler would answer automatically.
	conn.SetPingHandler(func(string) error { return nil })

	start := time.Now()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("read succeeded; server should have closed the silent connection")
	}
	elapsed := time.Since(start)
	if elapsed < timing.PongWait-50*time.Millisecond {
		t.Errorf("connection closed after %v, before PongWait %v", elapsed, timing.PongWait)
	}
	if elapsed > 4*timing.PongWait {
		t.Errorf("connection closed after %v, long past PongWait %v", elapsed, timing.PongWait)
	}

	// The forced close must also clean the registry entry.
	deadline := time.After(2 * time.Second)
	for env.hub.Registry().ConnectionCount() != 0 {
		select {
		case <-deadline:
			t.Fatalf("registry still holds %d connections after timeout close", env.hub.Registry().ConnectionCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
