// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package webhook

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// badgerKeyPrefix namespaces subscriber records inside the shared database.
const badgerKeyPrefix = "webhook:sub:"

// BadgerStore persists subscribers in BadgerDB so registrations survive
// restarts. Enabled with store.backend=badger.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the database at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already-open database. Used by tests with an
// in-memory instance.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func subscriberKey(id string) []byte {
	return []byte(badgerKeyPrefix + id)
}

func (s *BadgerStore) Get(id string) (*Subscriber, error) {
	var sub Subscriber
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(subscriberKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSubscriberNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sub)
		})
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *BadgerStore) Put(sub *Subscriber) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal subscriber: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(subscriberKey(sub.ID), data)
	})
}

func (s *BadgerStore) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(subscriberKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSubscriberNotFound
		}
		if err != nil {
			return err
		}
		return txn.Delete(subscriberKey(id))
	})
}

func (s *BadgerStore) List() ([]*Subscriber, error) {
	var out []*Subscriber
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var sub Subscriber
				if err := json.Unmarshal(val, &sub); err != nil {
					return err
				}
				out = append(out, &sub)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
