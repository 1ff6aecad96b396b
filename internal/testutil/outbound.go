// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"testing"
	"time"

	"github.com/destiny/wamprouter/wamp"
)

// DefaultWait bounds how long the helpers wait for a message.
const DefaultWait = 2 * time.Second

// Next returns the next message from ch, failing the test on timeout or when
// ch is closed.
func Next(t testing.TB, ch <-chan wamp.Message) wamp.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("outbound channel closed")
		}
		return msg
	case <-time.After(DefaultWait):
		t.Fatalf("no message after %v", DefaultWait)
	}
	return nil
}

// Expect returns the next message from ch as a T.
func Expect[T wamp.Message](t testing.TB, ch <-chan wamp.Message) T {
	t.Helper()
	msg := Next(t, ch)
	v, ok := msg.(T)
	if !ok {
		var want T
		t.Fatalf("want %T, got %T %+v", want, msg, msg)
	}
	return v
}

// Quiet fails the test if ch yields a message within wait.
func Quiet(t testing.TB, ch <-chan wamp.Message, wait time.Duration) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if ok {
			t.Fatalf("unexpected %s: %+v", msg.MessageType(), msg)
		}
	case <-time.After(wait):
	}
}

// Closed waits for ch to be closed, discarding anything still queued.
func Closed(t testing.TB, ch <-chan wamp.Message) {
	t.Helper()
	timeout := time.After(DefaultWait)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatalf("outbound channel still open after %v", DefaultWait)
		}
	}
}
