// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package broker implements the publish/subscribe role of the router: the
// subscription registry and the engine that turns PUBLISH, SUBSCRIBE and
// UNSUBSCRIBE messages into outbound traffic.
package broker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/destiny/wamprouter/idgen"
	"github.com/destiny/wamprouter/logging"
	"github.com/destiny/wamprouter/match"
	"github.com/destiny/wamprouter/retention"
	"github.com/destiny/wamprouter/wamp"
)

// Sender delivers an outbound message to a session.
type Sender interface {
	Send(session wamp.ID, msg wamp.Message) error
}

// Observer receives subscription lifecycle signals. It is called outside
// registry locks.
type Observer interface {
	SubscriptionSignal(sig Signal)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Signal)

func (f ObserverFunc) SubscriptionSignal(sig Signal) { f(sig) }

// Option configures a Broker.
type Option func(b *Broker)

// WithRetention sets the retention store. Nil disables retention.
func WithRetention(s retention.Store) Option {
	return func(b *Broker) { b.retention = s }
}

// WithObserver adds a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(b *Broker) { b.observers = append(b.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithRegistry replaces the subscription registry.
func WithRegistry(r *Registry) Option {
	return func(b *Broker) { b.registry = r }
}

// Stats holds broker counters.
type Stats struct {
	Published    uint64
	EventsSent   uint64
	EventsFailed uint64
	Retained     uint64
	Handled      uint64
}

// Broker is the pub/sub dispatch engine.
type Broker struct {
	registry  *Registry
	retention retention.Store
	out       Sender
	observers []Observer
	logger    *logging.Logger

	published    atomic.Uint64
	eventsSent   atomic.Uint64
	eventsFailed atomic.Uint64
	retained     atomic.Uint64
	handled      atomic.Uint64
}

// New returns a Broker sending through out.
func New(out Sender, opts ...Option) *Broker {
	b := &Broker{
		out:    out,
		logger: logging.DevNullLogger,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.registry == nil {
		b.registry = NewRegistry()
	}
	return b
}

// Registry returns the subscription registry.
func (b *Broker) Registry() *Registry { return b.registry }

func (b *Broker) signal(sigs []Signal) {
	for _, sig := range sigs {
		b.logger.Debug("subscription %d %s: %s session=%d", sig.SubscriptionID, sig.Kind, sig.Destination, sig.SessionID)
		for _, o := range b.observers {
			o.SubscriptionSignal(sig)
		}
	}
}

func (b *Broker) send(session wamp.ID, msg wamp.Message) bool {
	if err := b.out.Send(session, wamp.To(msg, session)); err != nil {
		b.logger.Warn("broker: %s to session %d not delivered: %v", msg.MessageType(), session, err)
		return false
	}
	return true
}

func (b *Broker) fail(requester wamp.ID, reqType wamp.MessageType, req wamp.ID, uri string, reason error) {
	if requester == 0 {
		b.logger.Warn("broker: internal %s %d rejected: %s: %v", reqType, req, uri, reason)
		return
	}
	e := wamp.NewError(reqType, req, uri)
	if reason != nil {
		e.Arguments = wamp.List{reason.Error()}
	}
	b.send(requester, e)
}

// Subscribe handles SUBSCRIBE. A subscription created by this request
// receives the matching retained events right after SUBSCRIBED.
func (b *Broker) Subscribe(ctx context.Context, msg *wamp.Subscribe) {
	session := msg.Meta.SessionID
	policy, err := subscribePolicy(msg.Options)
	if err != nil {
		b.fail(session, wamp.TypeSubscribe, msg.Request, wamp.InvalidArgument, err)
		return
	}
	if !wamp.ValidURI(msg.Topic, policy != match.Exact) {
		b.fail(session, wamp.TypeSubscribe, msg.Request, wamp.InvalidArgument, fmt.Errorf("invalid topic %q", msg.Topic))
		return
	}

	res := b.registry.Subscribe(msg.Topic, policy, session, msg.Options)
	b.send(session, &wamp.Subscribed{Request: msg.Request, Subscription: res.SubscriptionID})
	b.signal(res.Signals)

	if res.Created {
		b.replayRetained(ctx, session, res.SubscriptionID, match.NewDestination(msg.Topic, policy))
	}
}

func subscribePolicy(options wamp.Dict) (match.Policy, error) {
	v, ok := options[OptMatch]
	if !ok {
		return match.Exact, nil
	}
	s, ok := v.(string)
	if !ok {
		return match.Exact, fmt.Errorf("option %s must be a string, got %T", OptMatch, v)
	}
	return match.ParsePolicy(s)
}

func (b *Broker) replayRetained(ctx context.Context, session, subID wamp.ID, dest match.Destination) {
	if b.retention == nil {
		return
	}
	msgs, err := b.retention.Retained(ctx, dest)
	if err != nil {
		b.logger.Error("broker: retained lookup for %s: %v", dest, err)
		return
	}
	for _, pub := range msgs {
		ev := &wamp.Event{
			Subscription: subID,
			Publication:  idgen.Random(nil),
			Details:      wamp.Dict{"topic": pub.Topic, "retained": true},
			Arguments:    pub.Arguments,
			ArgumentsKw:  pub.ArgumentsKw,
		}
		b.send(session, ev)
	}
}

// Unsubscribe handles UNSUBSCRIBE.
func (b *Broker) Unsubscribe(_ context.Context, msg *wamp.Unsubscribe) {
	session := msg.Meta.SessionID
	res, err := b.registry.Unsubscribe(msg.Subscription, session)
	if err != nil {
		b.fail(session, wamp.TypeUnsubscribe, msg.Request, wamp.NoSuchSubscription, nil)
		return
	}
	b.send(session, &wamp.Unsubscribed{Request: msg.Request})
	b.signal(res.Signals)
}

// Publish handles PUBLISH from a session or from the in-process publisher.
// It returns the publication id, or zero when the publish was rejected.
func (b *Broker) Publish(ctx context.Context, msg *wamp.Publish) wamp.ID {
	publisher := msg.Meta.SessionID
	if !wamp.ValidURI(msg.Topic, false) {
		b.fail(publisher, wamp.TypePublish, msg.Request, wamp.InvalidArgument, fmt.Errorf("invalid topic %q", msg.Topic))
		return 0
	}
	filter, err := ParseFilter(msg.Options)
	if err != nil {
		b.fail(publisher, wamp.TypePublish, msg.Request, wamp.InvalidArgument, err)
		return 0
	}

	pubID := idgen.Random(nil)
	b.published.Add(1)

	if b.retention != nil {
		ok, err := b.retention.Retain(ctx, msg)
		switch {
		case err != nil:
			b.logger.Error("broker: retain %q: %v", msg.Topic, err)
		case ok:
			b.retained.Add(1)
		}
	}

	for _, m := range b.registry.Matching(msg.Topic) {
		details := wamp.Dict{}
		if m.Destination.Policy() != match.Exact {
			details["topic"] = msg.Topic
		}
		for _, recipient := range filter.Recipients(m.Subscribers, publisher) {
			ev := &wamp.Event{
				Subscription: m.SubscriptionID,
				Publication:  pubID,
				Details:      details,
				Arguments:    msg.Arguments,
				ArgumentsKw:  msg.ArgumentsKw,
			}
			if b.send(recipient, ev) {
				b.eventsSent.Add(1)
			} else {
				b.eventsFailed.Add(1)
			}
		}
		for _, h := range m.Handlers {
			b.runHandler(ctx, h, msg, &wamp.Event{
				Subscription: m.SubscriptionID,
				Publication:  pubID,
				Details:      wamp.Dict{"topic": msg.Topic},
				Arguments:    msg.Arguments,
				ArgumentsKw:  msg.ArgumentsKw,
			})
		}
	}

	if publisher != 0 && Acknowledge(msg.Options) {
		b.send(publisher, &wamp.Published{Request: msg.Request, Publication: pubID})
	}
	return pubID
}

func (b *Broker) runHandler(ctx context.Context, h EventHandler, msg *wamp.Publish, ev *wamp.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("broker: event handler for %q panicked: %v", msg.Topic, r)
		}
	}()
	h(ctx, msg.Topic, ev)
	b.handled.Add(1)
}

// Bind attaches an in-process handler for events matching (pattern, policy).
func (b *Broker) Bind(pattern string, policy match.Policy, fn EventHandler) (wamp.ID, HandlerID, error) {
	if fn == nil {
		return 0, 0, fmt.Errorf("broker: nil handler for %q", pattern)
	}
	if !wamp.ValidURI(pattern, policy != match.Exact) {
		return 0, 0, fmt.Errorf("broker: invalid topic pattern %q", pattern)
	}
	id, hid, created := b.registry.Bind(pattern, policy, fn)
	if created {
		b.signal([]Signal{{Kind: SubscriptionCreated, SubscriptionID: id, Destination: match.NewDestination(pattern, policy)}})
	}
	return id, hid, nil
}

// SessionEnded removes a departed session from every subscription.
func (b *Broker) SessionEnded(session wamp.ID) {
	b.signal(b.registry.RemoveSession(session))
}

// Stats returns a snapshot of the broker counters.
func (b *Broker) Stats() Stats {
	return Stats{
		Published:    b.published.Load(),
		EventsSent:   b.eventsSent.Load(),
		EventsFailed: b.eventsFailed.Load(),
		Retained:     b.retained.Load(),
		Handled:      b.handled.Load(),
	}
}
