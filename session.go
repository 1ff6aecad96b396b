// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wamprouter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/destiny/wamprouter/wamp"
)

// Session is one attached client connection.
type Session struct {
	ID           wamp.ID
	ConnectionID string
	Principal    string
	Created      time.Time

	welcomed atomic.Bool
	// leaving is set by Disconnect; the session stays routable until its
	// end is handled by its shard.
	leaving atomic.Bool

	mu     sync.Mutex
	closed bool
	out    chan wamp.Message
}

func newSession(id wamp.ID, connectionID, principal string, queue int) *Session {
	if queue <= 0 {
		queue = 1
	}
	return &Session{
		ID:           id,
		ConnectionID: connectionID,
		Principal:    principal,
		Created:      time.Now(),
		out:          make(chan wamp.Message, queue),
	}
}

// Outbound returns the messages the router queued for the session. The
// channel is closed once the router has ended the session.
func (s *Session) Outbound() <-chan wamp.Message { return s.out }

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) send(msg wamp.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.out <- msg:
		return nil
	default:
		return ErrOutboundFull
	}
}

// close reports false when the session was already closed.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.out)
	return true
}

func (s *Session) metadata() wamp.Metadata {
	return wamp.Metadata{SessionID: s.ID, ConnectionID: s.ConnectionID, Principal: s.Principal}
}
