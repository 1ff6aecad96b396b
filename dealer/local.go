// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dealer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/destiny/wamprouter/logging"
	"github.com/destiny/wamprouter/wamp"
)

// Result is the outcome of an in-process procedure.
type Result struct {
	Arguments   wamp.List
	ArgumentsKw wamp.Dict
}

// CallHandler implements a procedure in-process. Returning a *wamp.RPCError
// sends its URI and arguments to the caller; an error wrapping
// wamp.ErrNotAuthorized is reported as NotAuthorized; any other error is
// logged and reported as InvalidArgument.
type CallHandler func(ctx context.Context, inv *wamp.Invocation) (Result, error)

// LocalCallee answers invocations addressed to the router's own session by
// running the bound CallHandler.
type LocalCallee struct {
	session wamp.ID
	logger  *logging.Logger

	mu       sync.RWMutex
	handlers map[wamp.ID]localHandler
}

type localHandler struct {
	procedure string
	fn        CallHandler
}

// NewLocalCallee returns a callee acting as session.
func NewLocalCallee(session wamp.ID, logger *logging.Logger) *LocalCallee {
	if logger == nil {
		logger = logging.DevNullLogger
	}
	return &LocalCallee{session: session, logger: logger, handlers: make(map[wamp.ID]localHandler)}
}

// Session returns the session id the callee registers under.
func (l *LocalCallee) Session() wamp.ID { return l.session }

func (l *LocalCallee) bind(registration wamp.ID, procedure string, fn CallHandler) {
	l.mu.Lock()
	l.handlers[registration] = localHandler{procedure: procedure, fn: fn}
	l.mu.Unlock()
}

func (l *LocalCallee) unbind(registration wamp.ID) {
	l.mu.Lock()
	delete(l.handlers, registration)
	l.mu.Unlock()
}

// Invoke runs the handler for inv and returns the YIELD or ERROR to feed back
// into the dealer, stamped with the callee session.
func (l *LocalCallee) Invoke(ctx context.Context, inv *wamp.Invocation) wamp.Message {
	l.mu.RLock()
	h, ok := l.handlers[inv.Registration]
	l.mu.RUnlock()

	meta := wamp.Metadata{SessionID: l.session}
	if !ok {
		e := wamp.NewError(wamp.TypeInvocation, inv.Request, wamp.NoSuchRegistration)
		e.Meta = meta
		return e
	}

	res, err := l.run(ctx, h, inv)
	if err != nil {
		e := l.toError(h.procedure, inv.Request, err)
		e.Meta = meta
		return e
	}
	return &wamp.Yield{
		Meta:        meta,
		Request:     inv.Request,
		Options:     wamp.Dict{},
		Arguments:   res.Arguments,
		ArgumentsKw: res.ArgumentsKw,
	}
}

func (l *LocalCallee) run(ctx context.Context, h localHandler, inv *wamp.Invocation) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dealer: handler panic: %v", r)
		}
	}()
	return h.fn(ctx, inv)
}

func (l *LocalCallee) toError(procedure string, request wamp.ID, err error) *wamp.Error {
	var rpcErr *wamp.RPCError
	switch {
	case errors.As(err, &rpcErr):
		e := wamp.NewError(wamp.TypeInvocation, request, rpcErr.URI)
		e.Arguments = rpcErr.Arguments
		e.ArgumentsKw = rpcErr.ArgumentsKw
		return e
	case errors.Is(err, wamp.ErrNotAuthorized):
		l.logger.Warn("dealer: %s denied: %v", procedure, err)
		return wamp.NewError(wamp.TypeInvocation, request, wamp.NotAuthorized)
	default:
		l.logger.Error("dealer: %s failed: %v", procedure, err)
		return wamp.NewError(wamp.TypeInvocation, request, wamp.InvalidArgument)
	}
}
