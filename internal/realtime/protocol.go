// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

// Package realtime implements the WebSocket side of event distribution:
// a channel-based connection registry, the hub that fans frames out to
// subscribed connections, and the bridge that feeds the hub from the
// event bus.
package realtime

import (
	"time"

	"github.com/goccy/go-json"
)

// Inbound frame types accepted from clients.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FrameBroadcast   = "broadcast"
)

// Outbound frame types sent to clients.
const (
	FrameConnection   = "connection"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FramePong         = "pong"
	FrameEvent        = "event"
	FrameMessage      = "message"
	FrameError        = "error"
)

// InboundFrame is a client request: a type plus a payload whose fields
// depend on the type. Channel is required for subscribe, unsubscribe, and
// broadcast; Data is the broadcast body.
type InboundFrame struct {
	Type    string         `json:"type"`
	Payload InboundPayload `json:"payload,omitempty"`
}

// InboundPayload carries the type-specific request fields.
type InboundPayload struct {
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OutboundFrame is a server message. Field population depends on Type:
// connection carries ClientID; subscribed/unsubscribed carry Channel;
// pong carries Timestamp; event carries Event, Channel, Data, Timestamp;
// message carries Channel, From, Data; error carries Message.
type OutboundFrame struct {
	Type      string      `json:"type"`
	ClientID  string      `json:"clientId,omitempty"`
	Channel   string      `json:"channel,omitempty"`
	Event     string      `json:"event,omitempty"`
	From      string      `json:"from,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// errorFrame builds an error frame with a human-readable reason.
func errorFrame(reason string) OutboundFrame {
	return OutboundFrame{Type: FrameError, Message: reason}
}

// wireTimestamp formats a frame timestamp the way the rest of the wire
// formats time (RFC 3339, UTC).
func wireTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
