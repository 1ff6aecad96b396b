// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package idgen generates WAMP identifiers in [1, wamp.MaxID].
package idgen

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/destiny/wamprouter/wamp"
)

// drawMask keeps a 64-bit draw within twice the valid range so that the
// rejection loop terminates quickly.
const drawMask = uint64(wamp.MaxID)<<1 - 1

// Random returns a random identifier. When taken is non-nil, identifiers for
// which it reports true are rejected and redrawn.
func Random(taken func(wamp.ID) bool) wamp.ID {
	for {
		id := wamp.ID(rand.Uint64() & drawMask)
		if id == 0 || id > wamp.MaxID {
			continue
		}
		if taken != nil && taken(id) {
			continue
		}
		return id
	}
}

// Linear hands out increasing identifiers. After MaxID it wraps to 1; it
// never returns 0. The zero value is ready to use and starts at 1.
type Linear struct {
	last atomic.Uint64
}

// NewLinearFrom returns a generator whose next identifier follows last.
func NewLinearFrom(last wamp.ID) *Linear {
	g := &Linear{}
	g.last.Store(uint64(last))
	return g
}

// Next returns the next identifier.
func (g *Linear) Next() wamp.ID {
	for {
		cur := g.last.Load()
		next := cur + 1
		if next > uint64(wamp.MaxID) {
			next = 1
		}
		if g.last.CompareAndSwap(cur, next) {
			return wamp.ID(next)
		}
	}
}
