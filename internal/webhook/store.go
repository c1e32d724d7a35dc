// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package webhook

import (
	"errors"
	"sync"
)

// ErrSubscriberNotFound is returned by stores when the ID has no record.
var ErrSubscriberNotFound = errors.New("subscriber not found")

// Store persists webhook subscribers. The registry is the only caller; it
// holds its own lock, so implementations only need to be safe for the
// registry's access pattern (memory uses its own mutex anyway so the store
// stays independently usable).
type Store interface {
	Get(id string) (*Subscriber, error)
	Put(sub *Subscriber) error
	Delete(id string) error
	List() ([]*Subscriber, error)
	Close() error
}

// MemoryStore keeps subscribers in a map. It is the default backend;
// registrations do not survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Subscriber)}
}

func (s *MemoryStore) Get(id string) (*Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	copied := *sub
	return &copied, nil
}

func (s *MemoryStore) Put(sub *Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sub
	s.subs[sub.ID] = &copied
	return nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return ErrSubscriberNotFound
	}
	delete(s.subs, id)
	return nil
}

func (s *MemoryStore) List() ([]*Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		copied := *sub
		out = append(out, &copied)
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
