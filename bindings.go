// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wamprouter

import (
	"fmt"

	"github.com/destiny/wamprouter/broker"
	"github.com/destiny/wamprouter/dealer"
	"github.com/destiny/wamprouter/match"
)

// Binding is an in-process handler attached to the router at start.
type Binding interface {
	fmt.Stringer
	bind(r *Router) error
}

type eventBinding struct {
	pattern string
	policy  match.Policy
	fn      broker.EventHandler
}

// OnEvent runs fn for every publication matching (pattern, policy). The
// handler runs on the publisher's worker and must not block.
func OnEvent(pattern string, policy match.Policy, fn broker.EventHandler) Binding {
	return eventBinding{pattern: pattern, policy: policy, fn: fn}
}

func (b eventBinding) bind(r *Router) error {
	_, _, err := r.broker.Bind(b.pattern, b.policy, b.fn)
	return err
}

func (b eventBinding) String() string {
	return fmt.Sprintf("event %s:%s", b.policy, b.pattern)
}

type callBinding struct {
	procedure string
	fn        dealer.CallHandler
}

// OnCall implements procedure in-process. Each invocation runs in its own
// goroutine.
func OnCall(procedure string, fn dealer.CallHandler) Binding {
	return callBinding{procedure: procedure, fn: fn}
}

func (b callBinding) bind(r *Router) error {
	_, err := r.dealer.Bind(b.procedure, b.fn)
	return err
}

func (b callBinding) String() string {
	return "procedure " + b.procedure
}
