// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package retention keeps the last internally published event per topic so
// that it can be replayed to late subscribers.
package retention

import (
	"context"
	"sort"
	"sync"

	"github.com/destiny/wamprouter/match"
	"github.com/destiny/wamprouter/wamp"
)

// Store caches the most recent internal PUBLISH per topic.
type Store interface {
	// Retain stores msg under its topic, replacing the previous entry. Only
	// Internal messages are kept; the result reports whether msg was stored.
	Retain(ctx context.Context, msg *wamp.Publish) (bool, error)

	// Retained returns the stored messages whose topic matches dest.
	Retained(ctx context.Context, dest match.Destination) ([]*wamp.Publish, error)
}

// Internal reports whether msg was produced in-process rather than received
// from a remote session: it carries neither a session nor a connection.
func Internal(msg *wamp.Publish) bool {
	return msg.Meta.SessionID == 0 && msg.Meta.ConnectionID == ""
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	topics map[string]*wamp.Publish
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{topics: make(map[string]*wamp.Publish)}
}

// Retain implements Store.
func (s *MemoryStore) Retain(_ context.Context, msg *wamp.Publish) (bool, error) {
	if !Internal(msg) {
		return false, nil
	}
	s.mu.Lock()
	s.topics[msg.Topic] = msg
	s.mu.Unlock()
	return true, nil
}

// Retained implements Store. Pattern lookups scan every topic; results are
// ordered by topic.
func (s *MemoryStore) Retained(_ context.Context, dest match.Destination) ([]*wamp.Publish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if dest.Policy() == match.Exact {
		if msg, ok := s.topics[dest.Pattern()]; ok {
			return []*wamp.Publish{msg}, nil
		}
		return nil, nil
	}

	var out []*wamp.Publish
	for topic, msg := range s.topics {
		if dest.Matches(topic) {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

// Len returns the number of retained topics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics)
}
