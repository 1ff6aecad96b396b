// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package broker

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/wamprouter/match"
	"github.com/destiny/wamprouter/wamp"
)

func countKind(sigs []Signal, kind SignalKind) int {
	n := 0
	for _, s := range sigs {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

func TestSubscribeReusesExisting(t *testing.T) {
	r := NewRegistry()
	var all []Signal

	first := r.Subscribe("com.example.topic", match.Exact, 1, nil)
	all = append(all, first.Signals...)
	second := r.Subscribe("com.example.topic", match.Exact, 2, nil)
	all = append(all, second.Signals...)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.SubscriptionID, second.SubscriptionID)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, countKind(all, SubscriptionCreated))
	assert.Equal(t, 2, countKind(all, SessionSubscribed))

	m, ok := r.Lookup(first.SubscriptionID)
	require.True(t, ok)
	assert.Equal(t, []wamp.ID{1, 2}, m.Subscribers)
}

func TestResubscribeSignalsAgain(t *testing.T) {
	r := NewRegistry()
	r.Subscribe("t", match.Exact, 1, nil)
	again := r.Subscribe("t", match.Exact, 1, nil)

	assert.False(t, again.Created)
	assert.Equal(t, 1, countKind(again.Signals, SessionSubscribed))

	m, _ := r.Lookup(again.SubscriptionID)
	assert.Equal(t, []wamp.ID{1}, m.Subscribers)
}

func TestPolicyIsPartOfIdentity(t *testing.T) {
	r := NewRegistry()
	exact := r.Subscribe("user", match.Exact, 1, nil)
	prefix := r.Subscribe("user", match.Prefix, 1, nil)

	assert.NotEqual(t, exact.SubscriptionID, prefix.SubscriptionID)
	assert.True(t, prefix.Created)

	id, ok := r.Find("user", match.Prefix)
	assert.True(t, ok)
	assert.Equal(t, prefix.SubscriptionID, id)
}

func TestUnsubscribe(t *testing.T) {
	r := NewRegistry()
	res := r.Subscribe("t", match.Exact, 1, nil)
	r.Subscribe("t", match.Exact, 2, nil)

	_, err := r.Unsubscribe(999, 1)
	assert.ErrorIs(t, err, ErrNoSuchSubscription)

	_, err = r.Unsubscribe(res.SubscriptionID, 3)
	assert.ErrorIs(t, err, ErrNoSuchSubscription)

	u, err := r.Unsubscribe(res.SubscriptionID, 1)
	require.NoError(t, err)
	assert.False(t, u.Deleted)
	assert.Equal(t, 1, r.Len())

	u, err = r.Unsubscribe(res.SubscriptionID, 2)
	require.NoError(t, err)
	assert.True(t, u.Deleted)
	assert.Equal(t, 1, countKind(u.Signals, SubscriptionDeleted))
	assert.Equal(t, 0, r.Len())

	_, ok := r.Find("t", match.Exact)
	assert.False(t, ok)
	_, ok = r.Lookup(res.SubscriptionID)
	assert.False(t, ok)

	_, err = r.Unsubscribe(res.SubscriptionID, 2)
	assert.ErrorIs(t, err, ErrNoSuchSubscription)
}

func TestRemoveSession(t *testing.T) {
	r := NewRegistry()
	a := r.Subscribe("a", match.Exact, 1, nil)
	b := r.Subscribe("b", match.Prefix, 1, nil)
	shared := r.Subscribe("shared", match.Exact, 1, nil)
	r.Subscribe("shared", match.Exact, 2, nil)

	deleted := r.RemoveSession(1)
	require.Len(t, deleted, 2)
	assert.Equal(t, a.SubscriptionID, deleted[0].SubscriptionID)
	assert.Equal(t, b.SubscriptionID, deleted[1].SubscriptionID)
	for _, sig := range deleted {
		assert.Equal(t, SubscriptionDeleted, sig.Kind)
	}

	m, ok := r.Lookup(shared.SubscriptionID)
	require.True(t, ok)
	assert.Equal(t, []wamp.ID{2}, m.Subscribers)
	assert.Empty(t, r.RemoveSession(1))
}

func TestHandlersKeepSubscriptionAlive(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, string, *wamp.Event) {}

	id, hid, created := r.Bind("crud..update", match.Wildcard, noop)
	assert.True(t, created)

	res := r.Subscribe("crud..update", match.Wildcard, 1, nil)
	assert.Equal(t, id, res.SubscriptionID)
	assert.False(t, res.Created)

	u, err := r.Unsubscribe(id, 1)
	require.NoError(t, err)
	assert.False(t, u.Deleted, "bound handler keeps the subscription")
	assert.Equal(t, 1, r.Len())

	_, err = r.Unbind(id, hid+1)
	assert.ErrorIs(t, err, ErrNoSuchSubscription)

	deleted, err := r.Unbind(id, hid)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 0, r.Len())

	_, err = r.Unbind(id, hid)
	assert.ErrorIs(t, err, ErrNoSuchSubscription)
}

func TestMatching(t *testing.T) {
	r := NewRegistry()
	exact := r.Subscribe("crud.user.update", match.Exact, 1, nil)
	wild := r.Subscribe("crud..update", match.Wildcard, 2, nil)
	prefix := r.Subscribe("crud.user", match.Prefix, 3, nil)
	r.Subscribe("other", match.Exact, 4, nil)

	got := r.Matching("crud.user.update")
	require.Len(t, got, 3)
	assert.Equal(t, exact.SubscriptionID, got[0].SubscriptionID)
	assert.Equal(t, wild.SubscriptionID, got[1].SubscriptionID)
	assert.Equal(t, prefix.SubscriptionID, got[2].SubscriptionID)

	got = r.Matching("crud.user.delete")
	require.Len(t, got, 1)
	assert.Equal(t, prefix.SubscriptionID, got[0].SubscriptionID)

	assert.Empty(t, r.Matching("crud.update"))
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for s := 1; s <= 16; s++ {
		wg.Add(1)
		go func(session wamp.ID) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				topic := fmt.Sprintf("topic.%d", i%5)
				res := r.Subscribe(topic, match.Exact, session, nil)
				_ = r.Matching(topic)
				if i%2 == 0 {
					_, _ = r.Unsubscribe(res.SubscriptionID, session)
				}
			}
			r.RemoveSession(session)
		}(wamp.ID(s))
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}

func TestSignalKindString(t *testing.T) {
	assert.Equal(t, "created", SubscriptionCreated.String())
	assert.Equal(t, "deleted", SubscriptionDeleted.String())
	assert.Equal(t, "unknown", SignalKind(9).String())
}
