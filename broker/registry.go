// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package broker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/destiny/wamprouter/idgen"
	"github.com/destiny/wamprouter/match"
	"github.com/destiny/wamprouter/wamp"
)

// ErrNoSuchSubscription reports an unknown subscription, or a session that
// is not subscribed to it.
var ErrNoSuchSubscription = errors.New("broker: no such subscription")

// EventHandler is an in-process subscriber bound at startup.
type EventHandler func(ctx context.Context, topic string, ev *wamp.Event)

// HandlerID identifies a bound handler for Unbind.
type HandlerID uint64

type boundHandler struct {
	id HandlerID
	fn EventHandler
}

// Subscription binds a destination to its subscriber sessions and bound
// handlers. It exists while at least one of the two is non-empty.
type Subscription struct {
	ID          wamp.ID
	Destination match.Destination
	Created     time.Time
	Options     wamp.Dict

	subscribers map[wamp.ID]struct{}
	handlers    []boundHandler
}

func (s *Subscription) empty() bool {
	return len(s.subscribers) == 0 && len(s.handlers) == 0
}

// SignalKind names a subscription lifecycle change.
type SignalKind int

const (
	SubscriptionCreated SignalKind = iota
	SessionSubscribed
	SessionUnsubscribed
	SubscriptionDeleted
)

func (k SignalKind) String() string {
	switch k {
	case SubscriptionCreated:
		return "created"
	case SessionSubscribed:
		return "subscribed"
	case SessionUnsubscribed:
		return "unsubscribed"
	case SubscriptionDeleted:
		return "deleted"
	}
	return "unknown"
}

// Signal describes one lifecycle change. SessionID is zero for changes not
// caused by a session.
type Signal struct {
	Kind           SignalKind
	SubscriptionID wamp.ID
	Destination    match.Destination
	SessionID      wamp.ID
}

// SubscribeResult is returned by Registry.Subscribe.
type SubscribeResult struct {
	SubscriptionID wamp.ID
	Created        bool
	Signals        []Signal
}

// UnsubscribeResult is returned by Registry.Unsubscribe.
type UnsubscribeResult struct {
	Deleted bool
	Signals []Signal
}

// Match is a snapshot of a subscription matching a published topic.
type Match struct {
	SubscriptionID wamp.ID
	Destination    match.Destination
	Subscribers    []wamp.ID
	Handlers       []EventHandler
}

type destKey struct {
	pattern string
	policy  match.Policy
}

// Registry owns every subscription. Compound mutations run under the write
// lock; lookups take the read lock and return copies.
type Registry struct {
	mu        sync.RWMutex
	byDest    map[destKey]*Subscription
	byID      map[wamp.ID]*Subscription
	patterns  map[wamp.ID]*Subscription
	bySession map[wamp.ID]map[wamp.ID]struct{}

	ids        idgen.Linear
	handlerIDs idgen.Linear
	now        func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byDest:    make(map[destKey]*Subscription),
		byID:      make(map[wamp.ID]*Subscription),
		patterns:  make(map[wamp.ID]*Subscription),
		bySession: make(map[wamp.ID]map[wamp.ID]struct{}),
		now:       time.Now,
	}
}

// getOrCreate must be called with the write lock held.
func (r *Registry) getOrCreate(topic string, policy match.Policy, options wamp.Dict) (*Subscription, bool) {
	key := destKey{pattern: topic, policy: policy}
	if sub, ok := r.byDest[key]; ok {
		return sub, false
	}
	if options == nil {
		options = wamp.Dict{}
	}
	sub := &Subscription{
		ID:          r.ids.Next(),
		Destination: match.NewDestination(topic, policy),
		Created:     r.now(),
		Options:     options,
		subscribers: make(map[wamp.ID]struct{}),
	}
	r.byDest[key] = sub
	r.byID[sub.ID] = sub
	if policy != match.Exact {
		r.patterns[sub.ID] = sub
	}
	return sub, true
}

// remove must be called with the write lock held.
func (r *Registry) remove(sub *Subscription) {
	delete(r.byDest, destKey{pattern: sub.Destination.Pattern(), policy: sub.Destination.Policy()})
	delete(r.byID, sub.ID)
	delete(r.patterns, sub.ID)
}

// Subscribe attaches session to the subscription for (topic, policy),
// creating it when absent. The subscribed signal is always reported, also
// for a session that was already subscribed.
func (r *Registry) Subscribe(topic string, policy match.Policy, session wamp.ID, options wamp.Dict) SubscribeResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, created := r.getOrCreate(topic, policy, options)
	var res SubscribeResult
	res.SubscriptionID = sub.ID
	res.Created = created
	if created {
		res.Signals = append(res.Signals, Signal{Kind: SubscriptionCreated, SubscriptionID: sub.ID, Destination: sub.Destination, SessionID: session})
	}

	sub.subscribers[session] = struct{}{}
	subs, ok := r.bySession[session]
	if !ok {
		subs = make(map[wamp.ID]struct{})
		r.bySession[session] = subs
	}
	subs[sub.ID] = struct{}{}

	res.Signals = append(res.Signals, Signal{Kind: SessionSubscribed, SubscriptionID: sub.ID, Destination: sub.Destination, SessionID: session})
	return res
}

// Unsubscribe detaches session from the subscription and deletes the
// subscription when nothing is left attached.
func (r *Registry) Unsubscribe(id wamp.ID, session wamp.ID) (UnsubscribeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.byID[id]
	if !ok {
		return UnsubscribeResult{}, ErrNoSuchSubscription
	}
	if _, ok := sub.subscribers[session]; !ok {
		return UnsubscribeResult{}, ErrNoSuchSubscription
	}
	return r.detach(sub, session), nil
}

// detach must be called with the write lock held.
func (r *Registry) detach(sub *Subscription, session wamp.ID) UnsubscribeResult {
	delete(sub.subscribers, session)
	if subs, ok := r.bySession[session]; ok {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(r.bySession, session)
		}
	}

	res := UnsubscribeResult{
		Signals: []Signal{{Kind: SessionUnsubscribed, SubscriptionID: sub.ID, Destination: sub.Destination, SessionID: session}},
	}
	if sub.empty() {
		r.remove(sub)
		res.Deleted = true
		res.Signals = append(res.Signals, Signal{Kind: SubscriptionDeleted, SubscriptionID: sub.ID, Destination: sub.Destination, SessionID: session})
	}
	return res
}

// RemoveSession detaches session from every subscription and returns one
// deleted signal per subscription left empty.
func (r *Registry) RemoveSession(session wamp.ID) []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.bySession[session]
	if !ok {
		return nil
	}
	ids := make([]wamp.ID, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var deleted []Signal
	for _, id := range ids {
		sub, ok := r.byID[id]
		if !ok {
			continue
		}
		res := r.detach(sub, session)
		if res.Deleted {
			deleted = append(deleted, res.Signals[len(res.Signals)-1])
		}
	}
	return deleted
}

// Bind attaches an in-process handler to the subscription for (pattern,
// policy), creating it when absent.
func (r *Registry) Bind(pattern string, policy match.Policy, fn EventHandler) (wamp.ID, HandlerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, created := r.getOrCreate(pattern, policy, nil)
	hid := HandlerID(r.handlerIDs.Next())
	sub.handlers = append(sub.handlers, boundHandler{id: hid, fn: fn})
	return sub.ID, hid, created
}

// Unbind removes a bound handler. It reports whether the subscription was
// deleted as a result.
func (r *Registry) Unbind(id wamp.ID, handler HandlerID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.byID[id]
	if !ok {
		return false, ErrNoSuchSubscription
	}
	for i, h := range sub.handlers {
		if h.id == handler {
			sub.handlers = append(sub.handlers[:i:i], sub.handlers[i+1:]...)
			if sub.empty() {
				r.remove(sub)
				return true, nil
			}
			return false, nil
		}
	}
	return false, ErrNoSuchSubscription
}

// Matching returns snapshots of every subscription matching topic: the
// exact subscription, if any, followed by matching pattern subscriptions in
// id order.
func (r *Registry) Matching(topic string) []Match {
	segments := match.Split(topic)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Match
	if sub, ok := r.byDest[destKey{pattern: topic, policy: match.Exact}]; ok {
		out = append(out, snapshot(sub))
	}
	start := len(out)
	for _, sub := range r.patterns {
		if sub.Destination.MatchesSegments(segments) {
			out = append(out, snapshot(sub))
		}
	}
	pat := out[start:]
	sort.Slice(pat, func(i, j int) bool { return pat[i].SubscriptionID < pat[j].SubscriptionID })
	return out
}

func snapshot(sub *Subscription) Match {
	m := Match{
		SubscriptionID: sub.ID,
		Destination:    sub.Destination,
		Subscribers:    make([]wamp.ID, 0, len(sub.subscribers)),
	}
	for id := range sub.subscribers {
		m.Subscribers = append(m.Subscribers, id)
	}
	sort.Slice(m.Subscribers, func(i, j int) bool { return m.Subscribers[i] < m.Subscribers[j] })
	for _, h := range sub.handlers {
		m.Handlers = append(m.Handlers, h.fn)
	}
	return m
}

// Lookup returns a snapshot of the subscription with the given id.
func (r *Registry) Lookup(id wamp.ID) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byID[id]
	if !ok {
		return Match{}, false
	}
	return snapshot(sub), true
}

// Find returns the id of the subscription for (topic, policy).
func (r *Registry) Find(topic string, policy match.Policy) (wamp.ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byDest[destKey{pattern: topic, policy: policy}]
	if !ok {
		return 0, false
	}
	return sub.ID, true
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
