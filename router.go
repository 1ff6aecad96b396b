// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wamprouter implements a WAMP router combining the broker
// (publish/subscribe) and dealer (remote procedure call) roles.
//
// Transports attach client connections with Connect, feed decoded messages
// through Submit and drain Session.Outbound. Inbound work is handled by a
// sharded worker pool keyed by session, so the messages of one session are
// processed in order while different sessions proceed in parallel.
package wamprouter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/destiny/wamprouter/broker"
	"github.com/destiny/wamprouter/dealer"
	"github.com/destiny/wamprouter/idgen"
	"github.com/destiny/wamprouter/logging"
	"github.com/destiny/wamprouter/wamp"
)

var (
	ErrRouterRunning = errors.New("router: already running")
	ErrRouterStopped = errors.New("router: not running")
	ErrQueueFull     = errors.New("router: queue full")
	ErrSessionClosed = errors.New("router: session closed")
	ErrOutboundFull  = errors.New("router: outbound queue full")
	ErrNoSuchSession = errors.New("router: no such session")
)

// Router routes messages between sessions of a single realm.
type Router struct {
	opts    Options
	logger  *logging.Logger
	metrics *Metrics

	broker    *broker.Broker
	dealer    *dealer.Dealer
	local     *dealer.LocalCallee
	pool      *pool
	publisher *Publisher

	mu       sync.RWMutex
	sessions map[wamp.ID]*Session

	lifeMu  sync.Mutex
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	localWG sync.WaitGroup

	requests idgen.Linear
	received atomic.Uint64
	sent     atomic.Uint64
	dropped  atomic.Uint64
}

// New returns a router configured by opts. Call Start before attaching
// sessions.
func New(opts ...Option) *Router {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logging.DevNullLogger
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		opts:     o,
		logger:   o.Logger,
		metrics:  o.Metrics,
		sessions: make(map[wamp.ID]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	r.local = dealer.NewLocalCallee(idgen.Random(nil), o.Logger.With("role", "local"))

	bopts := []broker.Option{broker.WithLogger(o.Logger.With("role", "broker"))}
	dopts := []dealer.Option{
		dealer.WithLogger(o.Logger.With("role", "dealer")),
		dealer.WithDiscloseCaller(o.DiscloseCaller),
		dealer.WithLocalCallee(r.local),
	}
	if o.Retention != nil {
		bopts = append(bopts, broker.WithRetention(o.Retention))
	}
	if o.Metrics != nil {
		bopts = append(bopts, broker.WithObserver(o.Metrics))
		dopts = append(dopts, dealer.WithObserver(o.Metrics))
	}
	r.broker = broker.New(r, bopts...)
	r.dealer = dealer.New(r, dopts...)

	r.pool = newPool(o.Workers, o.QueueSize, r.dispatch)
	r.pool.onDrop = r.metrics.poolDrop
	r.publisher = &Publisher{r: r}
	return r
}

// Broker returns the pub/sub engine.
func (r *Router) Broker() *broker.Broker { return r.broker }

// Dealer returns the RPC engine.
func (r *Router) Dealer() *dealer.Dealer { return r.dealer }

// Publisher returns the in-process publish API.
func (r *Router) Publisher() *Publisher { return r.publisher }

// LocalSession returns the session id owning in-process procedures.
func (r *Router) LocalSession() wamp.ID { return r.local.Session() }

// Realm returns the configured realm.
func (r *Router) Realm() string { return r.opts.Realm }

// Start binds the configured handlers and starts the workers. A stopped
// router cannot be started again.
func (r *Router) Start() error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if r.running.Load() {
		return ErrRouterRunning
	}
	if err := r.pool.start(r.ctx); err != nil {
		return err
	}
	for _, b := range r.opts.Bindings {
		if err := b.bind(r); err != nil {
			r.cancel()
			r.pool.stop()
			return fmt.Errorf("router: binding %s: %w", b, err)
		}
	}
	r.running.Store(true)
	r.logger.Info("router started: realm=%s workers=%d", r.opts.Realm, len(r.pool.shards))
	return nil
}

// Running reports whether the router accepts sessions.
func (r *Router) Running() bool { return r.running.Load() }

// Stop drains the queued work, sends GOODBYE to every attached session and
// closes their outbound channels. Queued work still runs with a live
// context; in-process handlers are cancelled once the queues are empty.
func (r *Router) Stop() error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if !r.running.Load() {
		return ErrRouterStopped
	}
	r.running.Store(false)
	r.pool.stop()
	r.cancel()
	r.localWG.Wait()

	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[wamp.ID]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.send(wamp.To(&wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.SystemShutdown}, s.ID))
		if s.close() {
			r.metrics.sessionClosed()
		}
	}
	r.logger.Info("router stopped: %d sessions closed", len(sessions))
	return nil
}

// Connect attaches a new session for a transport connection. An empty
// connectionID is replaced by a generated one.
func (r *Router) Connect(connectionID, principal string) (*Session, error) {
	if !r.running.Load() {
		return nil, ErrRouterStopped
	}
	if connectionID == "" {
		connectionID = uuid.NewString()
	}
	r.mu.Lock()
	id := idgen.Random(func(id wamp.ID) bool {
		_, ok := r.sessions[id]
		return ok || id == r.local.Session()
	})
	s := newSession(id, connectionID, principal, r.opts.OutboundQueue)
	r.sessions[id] = s
	r.mu.Unlock()

	r.metrics.sessionOpened()
	r.logger.Debug("session %d attached: connection=%s", id, connectionID)
	return s, nil
}

// Submit queues a message received from s. The message is stamped with the
// session metadata; anything the transport set is replaced.
func (r *Router) Submit(s *Session, msg wamp.Message) error {
	if s.leaving.Load() || s.Closed() {
		return ErrSessionClosed
	}
	if err := r.pool.submit(envelope{session: s.ID, msg: wamp.WithMetadata(msg, s.metadata())}); err != nil {
		return err
	}
	r.received.Add(1)
	r.metrics.inbound(msg.MessageType())
	return nil
}

// Disconnect ends s. Submit fails from now on, but the messages s already
// submitted are still handled; the session is detached and its
// subscriptions and registrations are removed after them.
func (r *Router) Disconnect(s *Session) {
	if s.leaving.Swap(true) || r.session(s.ID) != s {
		return
	}
	r.logger.Debug("session %d leaving", s.ID)
	if err := r.pool.submitWait(r.ctx, envelope{session: s.ID}); err != nil {
		r.logger.Debug("session %d end not queued: %v", s.ID, err)
		r.detach(s)
	}
}

func (r *Router) detach(s *Session) bool {
	r.mu.Lock()
	if cur, ok := r.sessions[s.ID]; !ok || cur != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.ID)
	r.mu.Unlock()

	if s.close() {
		r.metrics.sessionClosed()
	}
	return true
}

func (r *Router) session(id wamp.ID) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// live reports whether work from id may still be handled: the in-process
// publisher, the local callee and attached sessions.
func (r *Router) live(id wamp.ID) bool {
	if id == 0 || id == r.local.Session() {
		return true
	}
	return r.session(id) != nil
}

// Send delivers msg to a session without blocking. It implements the
// engines' Sender.
func (r *Router) Send(session wamp.ID, msg wamp.Message) error {
	if session == r.local.Session() {
		return r.toLocal(msg)
	}
	s := r.session(session)
	if s == nil {
		return ErrNoSuchSession
	}
	if err := s.send(msg); err != nil {
		r.dropped.Add(1)
		r.metrics.outboundDrop()
		return err
	}
	r.sent.Add(1)
	r.metrics.outbound(msg.MessageType())
	return nil
}

func (r *Router) toLocal(msg wamp.Message) error {
	inv, ok := msg.(*wamp.Invocation)
	if !ok {
		r.logger.Trace("local session: ignoring %s", msg.MessageType())
		return nil
	}
	r.localWG.Add(1)
	go func() {
		defer r.localWG.Done()
		reply := r.local.Invoke(r.ctx, inv)
		if err := r.pool.submitWait(r.ctx, envelope{session: r.local.Session(), msg: reply}); err != nil {
			r.logger.Warn("router: reply to invocation %d dropped: %v", inv.Request, err)
		}
	}()
	return nil
}

func (r *Router) dispatch(ctx context.Context, env envelope) {
	if env.ended() {
		r.end(env.session)
		return
	}
	if !r.live(env.session) {
		r.logger.Trace("session %d gone: dropping %s", env.session, env.msg.MessageType())
		return
	}

	switch msg := env.msg.(type) {
	case *wamp.Hello:
		r.hello(msg)
	case *wamp.Goodbye:
		_ = r.Send(env.session, wamp.To(&wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.GoodbyeAndOut}, env.session))
		r.end(env.session)
	case *wamp.Abort:
		r.logger.Debug("session %d aborted: %s", env.session, msg.Reason)
		r.end(env.session)
	case *wamp.Publish:
		r.broker.Publish(ctx, msg)
	case *wamp.Subscribe:
		r.broker.Subscribe(ctx, msg)
	case *wamp.Unsubscribe:
		r.broker.Unsubscribe(ctx, msg)
	case *wamp.Register:
		r.dealer.Register(ctx, msg)
	case *wamp.Unregister:
		r.dealer.Unregister(ctx, msg)
	case *wamp.Call:
		r.dealer.Call(ctx, msg)
		r.metrics.setPending(r.dealer.Registry().Pending())
	case *wamp.Yield:
		r.dealer.Yield(ctx, msg)
		r.metrics.setPending(r.dealer.Registry().Pending())
	case *wamp.Error:
		r.dealer.Error(ctx, msg)
		r.metrics.setPending(r.dealer.Registry().Pending())
	case *wamp.Welcome, *wamp.Published, *wamp.Subscribed, *wamp.Unsubscribed,
		*wamp.Event, *wamp.Result, *wamp.Registered, *wamp.Unregistered, *wamp.Invocation:
		r.abort(env.session, wamp.ProtocolViolation, fmt.Sprintf("%s is not sent by clients", msg.MessageType()))
	default:
		r.logger.Error("router: unhandled message %T from session %d", msg, env.session)
	}
}

func (r *Router) hello(msg *wamp.Hello) {
	s := r.session(msg.Meta.SessionID)
	if s == nil {
		return
	}
	if msg.Realm != r.opts.Realm {
		r.abort(s.ID, wamp.NoSuchRealm, fmt.Sprintf("no realm %q", msg.Realm))
		return
	}
	if s.welcomed.Swap(true) {
		r.abort(s.ID, wamp.ProtocolViolation, "HELLO on an established session")
		return
	}
	_ = r.Send(s.ID, wamp.To(&wamp.Welcome{Session: s.ID, Details: r.welcomeDetails(s)}, s.ID))
}

func (r *Router) welcomeDetails(s *Session) wamp.Dict {
	details := wamp.Dict{
		"realm": r.opts.Realm,
		"roles": wamp.Dict{
			"broker": wamp.Dict{"features": wamp.Dict{
				"publisher_exclusion":           true,
				"publisher_identification":      false,
				"subscriber_blackwhite_listing": true,
				"pattern_based_subscription":    true,
				"event_retention":               r.opts.Retention != nil,
			}},
			"dealer": wamp.Dict{"features": wamp.Dict{
				"caller_identification": r.opts.DiscloseCaller,
			}},
		},
	}
	if s.Principal != "" {
		details["authid"] = s.Principal
	}
	return details
}

func (r *Router) abort(session wamp.ID, reason, message string) {
	r.logger.Debug("session %d aborted by router: %s: %s", session, reason, message)
	_ = r.Send(session, wamp.To(&wamp.Abort{Details: wamp.Dict{"message": message}, Reason: reason}, session))
	r.end(session)
}

// end detaches a session from inside its shard and removes its
// subscriptions and registrations. Work it queued after this point is
// dropped.
func (r *Router) end(id wamp.ID) {
	s := r.session(id)
	if s == nil || !r.detach(s) {
		return
	}
	r.broker.SessionEnded(id)
	r.dealer.SessionEnded(id)
	r.metrics.setPending(r.dealer.Registry().Pending())
}

// Sessions returns the number of attached sessions.
func (r *Router) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats returns router statistics.
func (r *Router) Stats() map[string]interface{} {
	bs := r.broker.Stats()
	ds := r.dealer.Stats()
	return map[string]interface{}{
		"realm":            r.opts.Realm,
		"running":          r.running.Load(),
		"sessions":         r.Sessions(),
		"messages_in":      r.received.Load(),
		"messages_out":     r.sent.Load(),
		"outbound_dropped": r.dropped.Load(),
		"queue_depth":      r.pool.depth(),
		"queue_dropped":    r.pool.dropped.Load(),
		"broker": map[string]interface{}{
			"subscriptions": r.broker.Registry().Len(),
			"published":     bs.Published,
			"events_sent":   bs.EventsSent,
			"events_failed": bs.EventsFailed,
			"retained":      bs.Retained,
			"handled":       bs.Handled,
		},
		"dealer": map[string]interface{}{
			"registrations":  r.dealer.Registry().Len(),
			"pending":        r.dealer.Registry().Pending(),
			"calls":          ds.Calls,
			"results":        ds.Results,
			"errors":         ds.Errors,
			"orphaned":       ds.Orphaned,
			"undelivered":    ds.Undelivered,
			"late":           ds.Late,
			"replies_failed": ds.RepliesFailed,
		},
	}
}
