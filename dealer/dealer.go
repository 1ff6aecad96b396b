// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dealer implements the remote procedure call role of the router:
// one callee per procedure name, correlation of invocations with their
// calls, and the errors owed to callers when a callee goes away.
package dealer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/destiny/wamprouter/logging"
	"github.com/destiny/wamprouter/wamp"
)

// REGISTER and CALL option names
const (
	OptMatch      = "match"
	OptInvoke     = "invoke"
	OptDiscloseMe = "disclose_me"
)

// Sender delivers an outbound message to a session.
type Sender interface {
	Send(session wamp.ID, msg wamp.Message) error
}

// SignalKind names a registration lifecycle change.
type SignalKind int

const (
	ProcedureRegistered SignalKind = iota
	ProcedureUnregistered
)

func (k SignalKind) String() string {
	if k == ProcedureRegistered {
		return "registered"
	}
	return "unregistered"
}

// Signal describes one registration change.
type Signal struct {
	Kind           SignalKind
	RegistrationID wamp.ID
	Procedure      string
	SessionID      wamp.ID
	Orphaned       int
}

// Observer receives registration signals outside registry locks.
type Observer interface {
	RegistrationSignal(sig Signal)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Signal)

func (f ObserverFunc) RegistrationSignal(sig Signal) { f(sig) }

// Option configures a Dealer.
type Option func(d *Dealer)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dealer) { d.logger = l }
}

// WithObserver adds a registration observer.
func WithObserver(o Observer) Option {
	return func(d *Dealer) { d.observers = append(d.observers, o) }
}

// WithDiscloseCaller allows callers to request disclose_me. When disallowed,
// such calls fail with DiscloseMeDisallowed.
func WithDiscloseCaller(allow bool) Option {
	return func(d *Dealer) { d.discloseCaller = allow }
}

// WithLocalCallee sets the in-process callee used by Bind.
func WithLocalCallee(l *LocalCallee) Option {
	return func(d *Dealer) { d.local = l }
}

// Stats holds dealer counters.
type Stats struct {
	Calls         uint64
	Results       uint64
	Errors        uint64
	Orphaned      uint64
	Undelivered   uint64
	Late          uint64
	RepliesFailed uint64
}

// Dealer is the RPC dispatch engine.
type Dealer struct {
	registry       *Registry
	out            Sender
	local          *LocalCallee
	observers      []Observer
	logger         *logging.Logger
	discloseCaller bool

	calls         atomic.Uint64
	results       atomic.Uint64
	errors        atomic.Uint64
	orphaned      atomic.Uint64
	undelivered   atomic.Uint64
	late          atomic.Uint64
	repliesFailed atomic.Uint64
}

// New returns a Dealer sending through out.
func New(out Sender, opts ...Option) *Dealer {
	d := &Dealer{
		registry:       NewRegistry(),
		out:            out,
		logger:         logging.DevNullLogger,
		discloseCaller: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the procedure registry.
func (d *Dealer) Registry() *Registry { return d.registry }

// Local returns the in-process callee, if any.
func (d *Dealer) Local() *LocalCallee { return d.local }

func (d *Dealer) send(session wamp.ID, msg wamp.Message) error {
	err := d.out.Send(session, wamp.To(msg, session))
	if err != nil {
		d.logger.Warn("dealer: %s to session %d not delivered: %v", msg.MessageType(), session, err)
	}
	return err
}

// reply answers a request. A response that cannot be queued is counted;
// the requester has no other way to learn the outcome.
func (d *Dealer) reply(session wamp.ID, msg wamp.Message) {
	if err := d.send(session, msg); err != nil {
		d.repliesFailed.Add(1)
	}
}

func (d *Dealer) fail(session wamp.ID, reqType wamp.MessageType, req wamp.ID, uri string) {
	d.reply(session, wamp.NewError(reqType, req, uri))
}

func (d *Dealer) signal(sig Signal) {
	d.logger.Debug("registration %d %s: %s session=%d orphaned=%d", sig.RegistrationID, sig.Kind, sig.Procedure, sig.SessionID, sig.Orphaned)
	for _, o := range d.observers {
		o.RegistrationSignal(sig)
	}
}

func checkRegisterOptions(options wamp.Dict) error {
	if v, ok := options[OptMatch]; ok && v != "exact" {
		return fmt.Errorf("dealer: match policy %v not allowed for procedures", v)
	}
	if v, ok := options[OptInvoke]; ok && v != "single" {
		return fmt.Errorf("dealer: invocation policy %v not allowed", v)
	}
	return nil
}

// Register handles REGISTER.
func (d *Dealer) Register(_ context.Context, msg *wamp.Register) {
	session := msg.Meta.SessionID
	if !wamp.ValidURI(msg.Procedure, false) {
		d.fail(session, wamp.TypeRegister, msg.Request, wamp.InvalidArgument)
		return
	}
	if err := checkRegisterOptions(msg.Options); err != nil {
		d.logger.Debug("%v", err)
		d.fail(session, wamp.TypeRegister, msg.Request, wamp.OptionNotAllowed)
		return
	}

	id, err := d.registry.Register(msg.Procedure, session, msg.Options)
	if err != nil {
		d.fail(session, wamp.TypeRegister, msg.Request, wamp.ProcedureAlreadyExists)
		return
	}
	d.reply(session, &wamp.Registered{Request: msg.Request, Registration: id})
	d.signal(Signal{Kind: ProcedureRegistered, RegistrationID: id, Procedure: msg.Procedure, SessionID: session})
}

// Unregister handles UNREGISTER. Pending invocations of the procedure are
// answered with NoSuchRegistration.
func (d *Dealer) Unregister(_ context.Context, msg *wamp.Unregister) {
	session := msg.Meta.SessionID
	u, err := d.registry.Unregister(msg.Registration, session)
	if err != nil {
		d.fail(session, wamp.TypeUnregister, msg.Request, wamp.NoSuchRegistration)
		return
	}
	d.reply(session, &wamp.Unregistered{Request: msg.Request})
	d.finish(u, session)
}

func (d *Dealer) finish(u Unregistration, session wamp.ID) {
	if d.local != nil && u.Owner == d.local.Session() {
		d.local.unbind(u.RegistrationID)
	}
	for _, e := range u.Orphans {
		d.orphaned.Add(1)
		d.reply(e.Meta.SessionID, e)
	}
	d.signal(Signal{Kind: ProcedureUnregistered, RegistrationID: u.RegistrationID, Procedure: u.Name, SessionID: session, Orphaned: len(u.Orphans)})
}

// Call handles CALL. It never waits for the callee: the INVOCATION is queued
// and the result arrives later through Yield or Error.
func (d *Dealer) Call(_ context.Context, msg *wamp.Call) {
	caller := msg.Meta.SessionID
	d.calls.Add(1)

	disclose, _ := msg.Options[OptDiscloseMe].(bool)
	if disclose && !d.discloseCaller {
		d.fail(caller, wamp.TypeCall, msg.Request, wamp.DiscloseMeDisallowed)
		return
	}
	if !wamp.ValidURI(msg.Procedure, false) {
		d.fail(caller, wamp.TypeCall, msg.Request, wamp.InvalidArgument)
		return
	}

	out := d.registry.Call(msg, disclose)
	inv, ok := out.(*wamp.Invocation)
	if !ok {
		d.reply(caller, out)
		return
	}
	if err := d.send(inv.Meta.SessionID, inv); err != nil {
		if _, ok := d.registry.Cancel(inv.Request); ok {
			d.undelivered.Add(1)
			d.fail(caller, wamp.TypeCall, msg.Request, wamp.NetworkFailure)
		}
	}
}

// Yield handles YIELD from a callee. Responses for unknown invocations are
// ignored.
func (d *Dealer) Yield(_ context.Context, msg *wamp.Yield) {
	call, ok := d.registry.Resolve(msg.Request, msg.Meta.SessionID)
	if !ok {
		d.late.Add(1)
		d.logger.Debug("dealer: YIELD for unknown invocation %d from session %d", msg.Request, msg.Meta.SessionID)
		return
	}
	d.results.Add(1)
	d.reply(call.Meta.SessionID, &wamp.Result{
		Request:     call.Request,
		Details:     wamp.Dict{},
		Arguments:   msg.Arguments,
		ArgumentsKw: msg.ArgumentsKw,
	})
}

// Error handles ERROR answering an INVOCATION. The error URI and payload are
// forwarded to the caller as an ERROR for its CALL.
func (d *Dealer) Error(_ context.Context, msg *wamp.Error) {
	if msg.RequestType != wamp.TypeInvocation {
		d.logger.Debug("dealer: ignoring ERROR for %s %d", msg.RequestType, msg.Request)
		return
	}
	call, ok := d.registry.Resolve(msg.Request, msg.Meta.SessionID)
	if !ok {
		d.late.Add(1)
		d.logger.Debug("dealer: ERROR for unknown invocation %d from session %d", msg.Request, msg.Meta.SessionID)
		return
	}
	d.errors.Add(1)
	d.reply(call.Meta.SessionID, &wamp.Error{
		RequestType: wamp.TypeCall,
		Request:     call.Request,
		Details:     wamp.Dict{},
		Error:       msg.Error,
		Arguments:   msg.Arguments,
		ArgumentsKw: msg.ArgumentsKw,
	})
}

// Bind registers an in-process procedure owned by the local callee.
func (d *Dealer) Bind(procedure string, fn CallHandler) (wamp.ID, error) {
	if d.local == nil {
		return 0, fmt.Errorf("dealer: no local callee for %q", procedure)
	}
	if fn == nil {
		return 0, fmt.Errorf("dealer: nil handler for %q", procedure)
	}
	if !wamp.ValidURI(procedure, false) {
		return 0, fmt.Errorf("dealer: invalid procedure %q", procedure)
	}
	id, err := d.registry.Register(procedure, d.local.Session(), nil)
	if err != nil {
		return 0, fmt.Errorf("dealer: bind %q: %w", procedure, err)
	}
	d.local.bind(id, procedure, fn)
	d.signal(Signal{Kind: ProcedureRegistered, RegistrationID: id, Procedure: procedure, SessionID: d.local.Session()})
	return id, nil
}

// SessionEnded removes every registration of a departed session and answers
// its pending invocations with NoSuchRegistration.
func (d *Dealer) SessionEnded(session wamp.ID) {
	for _, u := range d.registry.RemoveSession(session) {
		d.finish(u, session)
	}
}

// Stats returns a snapshot of the dealer counters.
func (d *Dealer) Stats() Stats {
	return Stats{
		Calls:         d.calls.Load(),
		Results:       d.results.Load(),
		Errors:        d.errors.Load(),
		Orphaned:      d.orphaned.Load(),
		Undelivered:   d.undelivered.Load(),
		Late:          d.late.Load(),
		RepliesFailed: d.repliesFailed.Load(),
	}
}
