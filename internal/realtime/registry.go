// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package realtime

import (
	"sync"
)

// Registry tracks active connections and their channel subscriptions. Both
// directions are indexed so subscribe/unsubscribe and per-channel fan-out
// are map lookups rather than scans. All methods are safe for concurrent
// use; the hub goroutine mutates it and read paths come from anywhere.
type Registry struct {
	mu sync.RWMutex

	// clients maps each connection to its subscribed channel set.
	clients map[*Client]map[string]struct{}
	// channels maps each channel name to its member set. Channels with no
	// members are removed so the map never accumulates dead entries.
	channels map[string]map[*Client]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:  make(map[*Client]map[string]struct{}),
		channels: make(map[string]map[*Client]struct{}),
	}
}

// Add registers a connection with no subscriptions.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		r.clients[c] = make(map[string]struct{})
	}
}

// Remove drops a connection and all of its subscriptions. It returns the
// number of subscriptions that were dropped so callers can keep gauges in
// step.
func (r *Registry) Remove(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels, ok := r.clients[c]
	if !ok {
		return 0
	}
	for name := range channels {
		r.dropMemberLocked(name, c)
	}
	delete(r.clients, c)
	return len(channels)
}

// Subscribe adds the connection to a channel. It reports whether the
// membership is new; subscribing twice is a no-op, and unknown connections
// are ignored.
func (r *Registry) Subscribe(c *Client, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels, ok := r.clients[c]
	if !ok {
		return false
	}
	if _, exists := channels[channel]; exists {
		return false
	}
	channels[channel] = struct{}{}
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[*Client]struct{})
		r.channels[channel] = members
	}
	members[c] = struct{}{}
	return true
}

// Unsubscribe removes the connection from a channel. It reports whether a
// membership was actually removed; leaving a channel the connection never
// joined is a no-op.
func (r *Registry) Unsubscribe(c *Client, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels, ok := r.clients[c]
	if !ok {
		return false
	}
	if _, exists := channels[channel]; !exists {
		return false
	}
	delete(channels, channel)
	r.dropMemberLocked(channel, c)
	return true
}

// Has reports whether the connection is currently registered.
func (r *Registry) Has(c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[c]
	return ok
}

// All returns every registered connection.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

// IsSubscribed reports whether the connection is a member of the channel.
func (r *Registry) IsSubscribed(c *Client, channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels, ok := r.clients[c]
	if !ok {
		return false
	}
	_, ok = channels[channel]
	return ok
}

// ChannelMembers returns the current members of a channel.
func (r *Registry) ChannelMembers(channel string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.channels[channel]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

// ConnectionCount returns the number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ChannelCount returns the number of channels with at least one member.
func (r *Registry) ChannelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

func (r *Registry) dropMemberLocked(channel string, c *Client) {
	members, ok := r.channels[channel]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.channels, channel)
	}
}
