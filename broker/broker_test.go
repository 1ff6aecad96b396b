// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package broker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/wamprouter/match"
	"github.com/destiny/wamprouter/retention"
	"github.com/destiny/wamprouter/wamp"
)

// recorder is a Sender that keeps every message per session.
type recorder struct {
	mu     sync.Mutex
	byID   map[wamp.ID][]wamp.Message
	refuse map[wamp.ID]bool
}

func newRecorder() *recorder {
	return &recorder{byID: map[wamp.ID][]wamp.Message{}, refuse: map[wamp.ID]bool{}}
}

func (r *recorder) Send(session wamp.ID, msg wamp.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse[session] {
		return errors.New("queue full")
	}
	r.byID[session] = append(r.byID[session], msg)
	return nil
}

func (r *recorder) take(session wamp.ID) []wamp.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.byID[session]
	delete(r.byID, session)
	return msgs
}

func events(msgs []wamp.Message) []*wamp.Event {
	var out []*wamp.Event
	for _, m := range msgs {
		if ev, ok := m.(*wamp.Event); ok {
			out = append(out, ev)
		}
	}
	return out
}

func from(session wamp.ID, msg wamp.Message) wamp.Message {
	return wamp.WithMetadata(msg, wamp.Metadata{SessionID: session, ConnectionID: "conn"})
}

func subscribe(t *testing.T, b *Broker, out *recorder, session wamp.ID, topic string, policy match.Policy) wamp.ID {
	t.Helper()
	opts := wamp.Dict{}
	if policy != match.Exact {
		opts[OptMatch] = policy.String()
	}
	b.Subscribe(context.Background(), from(session, &wamp.Subscribe{Request: 1, Options: opts, Topic: topic}).(*wamp.Subscribe))
	msgs := out.take(session)
	require.NotEmpty(t, msgs)
	sub, ok := msgs[0].(*wamp.Subscribed)
	require.True(t, ok, "want SUBSCRIBED, got %T", msgs[0])
	assert.Equal(t, session, sub.Meta.SessionID)
	return sub.Subscription
}

func TestFilterOrder(t *testing.T) {
	const a, b, c = wamp.ID(1), wamp.ID(2), wamp.ID(3)
	f, err := ParseFilter(wamp.Dict{
		OptEligible: wamp.List{int64(a), int64(b)},
		OptExclude:  wamp.List{int64(b)},
	})
	require.NoError(t, err)
	assert.True(t, f.ExcludeMe)

	assert.Empty(t, f.Recipients([]wamp.ID{a, b, c}, a))

	f.ExcludeMe = false
	assert.Equal(t, []wamp.ID{a}, f.Recipients([]wamp.ID{a, b, c}, a))

	none, err := ParseFilter(wamp.Dict{})
	require.NoError(t, err)
	assert.Equal(t, []wamp.ID{b, c}, none.Recipients([]wamp.ID{a, b, c}, a))
	assert.Equal(t, []wamp.ID{a, b, c}, none.Recipients([]wamp.ID{a, b, c}, 0))

	empty, err := ParseFilter(wamp.Dict{OptEligible: wamp.List{}})
	require.NoError(t, err)
	assert.Empty(t, empty.Recipients([]wamp.ID{a, b, c}, 0))

	typed, err := ParseFilter(wamp.Dict{OptExclude: []wamp.ID{c}})
	require.NoError(t, err)
	assert.Equal(t, []wamp.ID{a, b}, typed.Recipients([]wamp.ID{a, b, c}, 0))
}

func TestParseFilterErrors(t *testing.T) {
	for name, opts := range map[string]wamp.Dict{
		"exclude_me not bool": {OptExcludeMe: "yes"},
		"exclude not list":    {OptExclude: int64(3)},
		"eligible bad id":     {OptEligible: wamp.List{"x"}},
		"eligible zero id":    {OptEligible: wamp.List{int64(0)}},
	} {
		_, err := ParseFilter(opts)
		assert.Error(t, err, name)
	}
}

func TestWildcardDelivery(t *testing.T) {
	out := newRecorder()
	b := New(out)
	subID := subscribe(t, b, out, 1, "crud..update", match.Wildcard)

	ctx := context.Background()
	b.Publish(ctx, from(2, &wamp.Publish{Request: 1, Options: wamp.Dict{}, Topic: "crud.user.update", Arguments: wamp.List{"u1"}}).(*wamp.Publish))
	b.Publish(ctx, from(2, &wamp.Publish{Request: 2, Options: wamp.Dict{}, Topic: "crud.user.delete"}).(*wamp.Publish))
	b.Publish(ctx, from(2, &wamp.Publish{Request: 3, Options: wamp.Dict{}, Topic: "crud.update"}).(*wamp.Publish))

	evs := events(out.take(1))
	require.Len(t, evs, 1)
	assert.Equal(t, subID, evs[0].Subscription)
	assert.Equal(t, "crud.user.update", evs[0].Details["topic"])
	assert.Equal(t, wamp.List{"u1"}, evs[0].Arguments)
	assert.NotZero(t, evs[0].Publication)
	assert.Empty(t, out.take(2), "no acknowledge requested")
}

func TestPublishExcludeMeAndAcknowledge(t *testing.T) {
	out := newRecorder()
	b := New(out)
	subscribe(t, b, out, 1, "chat", match.Exact)
	subscribe(t, b, out, 2, "chat", match.Exact)

	b.Publish(context.Background(), from(1, &wamp.Publish{
		Request: 7,
		Options: wamp.Dict{OptAcknowledge: true},
		Topic:   "chat",
	}).(*wamp.Publish))

	assert.Len(t, events(out.take(2)), 1)
	pubMsgs := out.take(1)
	require.Len(t, pubMsgs, 1, "publisher gets only PUBLISHED")
	ack, ok := pubMsgs[0].(*wamp.Published)
	require.True(t, ok)
	assert.Equal(t, wamp.ID(7), ack.Request)

	b.Publish(context.Background(), from(1, &wamp.Publish{
		Request: 8,
		Options: wamp.Dict{OptExcludeMe: false},
		Topic:   "chat",
	}).(*wamp.Publish))
	assert.Len(t, events(out.take(1)), 1)
	assert.Len(t, events(out.take(2)), 1)
}

func TestExactEventHasNoTopicDetail(t *testing.T) {
	out := newRecorder()
	b := New(out)
	subscribe(t, b, out, 1, "chat", match.Exact)
	b.Publish(context.Background(), &wamp.Publish{Request: 1, Options: wamp.Dict{}, Topic: "chat"})

	evs := events(out.take(1))
	require.Len(t, evs, 1)
	assert.NotContains(t, evs[0].Details, "topic")
}

func TestPublishErrors(t *testing.T) {
	out := newRecorder()
	b := New(out)

	id := b.Publish(context.Background(), from(1, &wamp.Publish{Request: 4, Options: wamp.Dict{}, Topic: "bad topic"}).(*wamp.Publish))
	assert.Zero(t, id)
	msgs := out.take(1)
	require.Len(t, msgs, 1)
	e := msgs[0].(*wamp.Error)
	assert.Equal(t, wamp.TypePublish, e.RequestType)
	assert.Equal(t, wamp.ID(4), e.Request)
	assert.Equal(t, wamp.InvalidArgument, e.Error)

	b.Publish(context.Background(), from(1, &wamp.Publish{Request: 5, Options: wamp.Dict{OptExclude: "x"}, Topic: "ok"}).(*wamp.Publish))
	msgs = out.take(1)
	require.Len(t, msgs, 1)
	assert.Equal(t, wamp.InvalidArgument, msgs[0].(*wamp.Error).Error)
}

func TestSubscribeErrors(t *testing.T) {
	out := newRecorder()
	b := New(out)
	ctx := context.Background()

	b.Subscribe(ctx, from(1, &wamp.Subscribe{Request: 1, Options: wamp.Dict{OptMatch: "regex"}, Topic: "a"}).(*wamp.Subscribe))
	b.Subscribe(ctx, from(1, &wamp.Subscribe{Request: 2, Options: wamp.Dict{}, Topic: "a..b"}).(*wamp.Subscribe))
	b.Subscribe(ctx, from(1, &wamp.Subscribe{Request: 3, Options: wamp.Dict{OptMatch: int64(1)}, Topic: "a"}).(*wamp.Subscribe))

	msgs := out.take(1)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		e, ok := m.(*wamp.Error)
		require.True(t, ok)
		assert.Equal(t, wamp.ID(i+1), e.Request)
		assert.Equal(t, wamp.TypeSubscribe, e.RequestType)
		assert.Equal(t, wamp.InvalidArgument, e.Error)
	}
	assert.Equal(t, 0, b.Registry().Len())
}

func TestUnsubscribeFlow(t *testing.T) {
	var mu sync.Mutex
	var sigs []Signal
	out := newRecorder()
	b := New(out, WithObserver(ObserverFunc(func(s Signal) {
		mu.Lock()
		sigs = append(sigs, s)
		mu.Unlock()
	})))

	subID := subscribe(t, b, out, 1, "t", match.Exact)
	ctx := context.Background()

	b.Unsubscribe(ctx, from(1, &wamp.Unsubscribe{Request: 9, Subscription: subID}).(*wamp.Unsubscribe))
	msgs := out.take(1)
	require.Len(t, msgs, 1)
	assert.Equal(t, &wamp.Unsubscribed{Meta: wamp.Metadata{SessionID: 1}, Request: 9}, msgs[0])

	b.Unsubscribe(ctx, from(1, &wamp.Unsubscribe{Request: 10, Subscription: subID}).(*wamp.Unsubscribe))
	msgs = out.take(1)
	require.Len(t, msgs, 1)
	e := msgs[0].(*wamp.Error)
	assert.Equal(t, wamp.NoSuchSubscription, e.Error)
	assert.Equal(t, wamp.TypeUnsubscribe, e.RequestType)

	mu.Lock()
	defer mu.Unlock()
	kinds := make([]SignalKind, 0, len(sigs))
	for _, s := range sigs {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []SignalKind{SubscriptionCreated, SessionSubscribed, SessionUnsubscribed, SubscriptionDeleted}, kinds)
}

func TestRetainedReplay(t *testing.T) {
	out := newRecorder()
	store := retention.NewMemoryStore()
	b := New(out, WithRetention(store))
	ctx := context.Background()

	b.Publish(ctx, &wamp.Publish{Request: 1, Options: wamp.Dict{}, Topic: "news.sport", Arguments: wamp.List{"goal"}})
	b.Publish(ctx, from(9, &wamp.Publish{Request: 2, Options: wamp.Dict{}, Topic: "news.weather"}).(*wamp.Publish))
	assert.Equal(t, 1, store.Len(), "remote publishes are not retained")
	assert.Equal(t, uint64(1), b.Stats().Retained)

	opts := wamp.Dict{OptMatch: "prefix"}
	b.Subscribe(ctx, from(1, &wamp.Subscribe{Request: 3, Options: opts, Topic: "news"}).(*wamp.Subscribe))
	msgs := out.take(1)
	require.Len(t, msgs, 2)
	sub := msgs[0].(*wamp.Subscribed)
	ev := msgs[1].(*wamp.Event)
	assert.Equal(t, sub.Subscription, ev.Subscription)
	assert.Equal(t, "news.sport", ev.Details["topic"])
	assert.Equal(t, true, ev.Details["retained"])
	assert.Equal(t, wamp.List{"goal"}, ev.Arguments)

	// Joining an existing subscription does not replay.
	b.Subscribe(ctx, from(2, &wamp.Subscribe{Request: 4, Options: opts, Topic: "news"}).(*wamp.Subscribe))
	assert.Len(t, out.take(2), 1)
}

func TestBoundHandlers(t *testing.T) {
	out := newRecorder()
	b := New(out)

	var mu sync.Mutex
	var topics []string
	_, _, err := b.Bind("crud..update", match.Wildcard, func(_ context.Context, topic string, ev *wamp.Event) {
		mu.Lock()
		topics = append(topics, topic)
		mu.Unlock()
		assert.Equal(t, topic, ev.Details["topic"])
	})
	require.NoError(t, err)

	_, _, err = b.Bind("boom", match.Exact, func(context.Context, string, *wamp.Event) { panic("handler failure") })
	require.NoError(t, err)

	ctx := context.Background()
	b.Publish(ctx, &wamp.Publish{Request: 1, Options: wamp.Dict{}, Topic: "crud.user.update"})
	b.Publish(ctx, &wamp.Publish{Request: 2, Options: wamp.Dict{}, Topic: "boom"})
	b.Publish(ctx, &wamp.Publish{Request: 3, Options: wamp.Dict{}, Topic: "crud.update"})

	mu.Lock()
	assert.Equal(t, []string{"crud.user.update"}, topics)
	mu.Unlock()
	assert.Equal(t, uint64(1), b.Stats().Handled)
	assert.Equal(t, uint64(3), b.Stats().Published)

	_, _, err = b.Bind("x", match.Exact, nil)
	assert.Error(t, err)
	_, _, err = b.Bind("a..b", match.Exact, func(context.Context, string, *wamp.Event) {})
	assert.Error(t, err)
}

func TestSessionEnded(t *testing.T) {
	var mu sync.Mutex
	deleted := 0
	out := newRecorder()
	b := New(out, WithObserver(ObserverFunc(func(s Signal) {
		if s.Kind == SubscriptionDeleted {
			mu.Lock()
			deleted++
			mu.Unlock()
		}
	})))

	subscribe(t, b, out, 1, "a", match.Exact)
	subscribe(t, b, out, 1, "b", match.Exact)
	subscribe(t, b, out, 2, "b", match.Exact)

	b.SessionEnded(1)
	mu.Lock()
	assert.Equal(t, 1, deleted)
	mu.Unlock()
	assert.Equal(t, 1, b.Registry().Len())
}

func TestUndeliverableEventsCounted(t *testing.T) {
	out := newRecorder()
	b := New(out)
	subscribe(t, b, out, 1, "t", match.Exact)
	subscribe(t, b, out, 2, "t", match.Exact)
	out.refuse[2] = true

	b.Publish(context.Background(), &wamp.Publish{Request: 1, Options: wamp.Dict{}, Topic: "t"})
	st := b.Stats()
	assert.Equal(t, uint64(1), st.EventsSent)
	assert.Equal(t, uint64(1), st.EventsFailed)
}
