// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dealer

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/destiny/wamprouter/idgen"
	"github.com/destiny/wamprouter/wamp"
)

var (
	// ErrProcedureExists reports a REGISTER for a name that is already bound.
	ErrProcedureExists = errors.New("dealer: procedure already exists")

	// ErrNoSuchRegistration reports an unknown registration id, or one owned
	// by another session.
	ErrNoSuchRegistration = errors.New("dealer: no such registration")
)

// Procedure is the binding of one procedure name to its callee session.
type Procedure struct {
	ID      wamp.ID
	Name    string
	Owner   wamp.ID
	Options wamp.Dict
	Created time.Time

	pending map[wamp.ID]struct{}
}

type pendingCall struct {
	call *wamp.Call
	proc *Procedure
}

// Unregistration describes a removed procedure and the errors synthesized
// for the invocations it still had pending, one per original caller.
type Unregistration struct {
	Name           string
	RegistrationID wamp.ID
	Owner          wamp.ID
	Orphans        []*wamp.Error
}

// Registry owns procedure bindings and the pending invocation table. Every
// mutation runs under the write lock so an invocation id is always present
// in both the global table and its procedure's pending set, or in neither.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*Procedure
	byID      map[wamp.ID]*Procedure
	bySession map[wamp.ID]map[wamp.ID]struct{}
	pending   map[wamp.ID]*pendingCall

	registrations idgen.Linear
	invocations   idgen.Linear
	now           func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]*Procedure),
		byID:      make(map[wamp.ID]*Procedure),
		bySession: make(map[wamp.ID]map[wamp.ID]struct{}),
		pending:   make(map[wamp.ID]*pendingCall),
		now:       time.Now,
	}
}

// Register binds name to session. It fails without side effects when name
// is already bound.
func (r *Registry) Register(name string, session wamp.ID, options wamp.Dict) (wamp.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return 0, ErrProcedureExists
	}
	if options == nil {
		options = wamp.Dict{}
	}
	p := &Procedure{
		ID:      r.registrations.Next(),
		Name:    name,
		Owner:   session,
		Options: options,
		Created: r.now(),
		pending: make(map[wamp.ID]struct{}),
	}
	r.byName[name] = p
	r.byID[p.ID] = p
	regs, ok := r.bySession[session]
	if !ok {
		regs = make(map[wamp.ID]struct{})
		r.bySession[session] = regs
	}
	regs[p.ID] = struct{}{}
	return p.ID, nil
}

// Unregister removes the registration owned by session.
func (r *Registry) Unregister(id wamp.ID, session wamp.ID) (Unregistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok || p.Owner != session {
		return Unregistration{}, ErrNoSuchRegistration
	}
	return r.remove(p), nil
}

// RemoveSession removes every registration owned by session.
func (r *Registry) RemoveSession(session wamp.ID) []Unregistration {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, ok := r.bySession[session]
	if !ok {
		return nil
	}
	ids := make([]wamp.ID, 0, len(regs))
	for id := range regs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Unregistration, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.byID[id]; ok {
			out = append(out, r.remove(p))
		}
	}
	return out
}

// remove must be called with the write lock held.
func (r *Registry) remove(p *Procedure) Unregistration {
	delete(r.byName, p.Name)
	delete(r.byID, p.ID)
	if regs, ok := r.bySession[p.Owner]; ok {
		delete(regs, p.ID)
		if len(regs) == 0 {
			delete(r.bySession, p.Owner)
		}
	}

	u := Unregistration{Name: p.Name, RegistrationID: p.ID, Owner: p.Owner}
	invs := make([]wamp.ID, 0, len(p.pending))
	for inv := range p.pending {
		invs = append(invs, inv)
	}
	sort.Slice(invs, func(i, j int) bool { return invs[i] < invs[j] })
	for _, inv := range invs {
		pc := r.pending[inv]
		delete(r.pending, inv)
		if pc == nil {
			continue
		}
		e := wamp.NewError(wamp.TypeCall, pc.call.Request, wamp.NoSuchRegistration)
		e.Meta = wamp.Metadata{SessionID: pc.call.Meta.SessionID}
		u.Orphans = append(u.Orphans, e)
	}
	p.pending = make(map[wamp.ID]struct{})
	return u
}

// Call routes call to the callee bound to its procedure. It returns an
// INVOCATION addressed to the callee, recorded as pending, or a
// NO_SUCH_PROCEDURE ERROR addressed to the caller.
func (r *Registry) Call(call *wamp.Call, discloseCaller bool) wamp.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byName[call.Procedure]
	if !ok {
		e := wamp.NewError(wamp.TypeCall, call.Request, wamp.NoSuchProcedure)
		e.Meta = wamp.Metadata{SessionID: call.Meta.SessionID}
		return e
	}

	invID := r.invocations.Next()
	r.pending[invID] = &pendingCall{call: call, proc: p}
	p.pending[invID] = struct{}{}

	details := wamp.Dict{"procedure": p.Name}
	if discloseCaller && call.Meta.SessionID != 0 {
		details["caller"] = uint64(call.Meta.SessionID)
		if call.Meta.Principal != "" {
			details["caller_authid"] = call.Meta.Principal
		}
	}
	return &wamp.Invocation{
		Meta:         wamp.Metadata{SessionID: p.Owner},
		Request:      invID,
		Registration: p.ID,
		Details:      details,
		Arguments:    call.Arguments,
		ArgumentsKw:  call.ArgumentsKw,
	}
}

// Resolve pops the pending invocation answered by callee and returns the
// original CALL. Unknown ids, and responses from a session that does not own
// the procedure, report false and change nothing.
func (r *Registry) Resolve(invocation wamp.ID, callee wamp.ID) (*wamp.Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc, ok := r.pending[invocation]
	if !ok || pc.proc.Owner != callee {
		return nil, false
	}
	delete(r.pending, invocation)
	delete(pc.proc.pending, invocation)
	return pc.call, true
}

// Cancel drops a pending invocation regardless of its callee, returning the
// original CALL.
func (r *Registry) Cancel(invocation wamp.ID) (*wamp.Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc, ok := r.pending[invocation]
	if !ok {
		return nil, false
	}
	delete(r.pending, invocation)
	delete(pc.proc.pending, invocation)
	return pc.call, true
}

// Lookup returns a copy of the procedure bound to name.
func (r *Registry) Lookup(name string) (Procedure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	if !ok {
		return Procedure{}, false
	}
	c := *p
	c.pending = nil
	return c, true
}

// PendingFor returns the number of invocations pending on a registration.
func (r *Registry) PendingFor(id wamp.ID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byID[id]; ok {
		return len(p.pending)
	}
	return 0
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Pending returns the number of pending invocations.
func (r *Registry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}
