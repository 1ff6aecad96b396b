// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wamprouter

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/destiny/wamprouter/wamp"
)

// envelope is one unit of dispatch work: an inbound message, or the end of a
// session when msg is nil.
type envelope struct {
	session wamp.ID
	msg     wamp.Message
}

func (e envelope) ended() bool { return e.msg == nil }

// pool is a sharded worker pool. Work is routed to a shard by session id so
// the messages of one session are handled in submission order.
type pool struct {
	shards []chan envelope
	handle func(context.Context, envelope)

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup

	submitted atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	onDrop    func()
}

func newPool(workers, queueSize int, handle func(context.Context, envelope)) *pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	p := &pool{
		shards: make([]chan envelope, workers),
		handle: handle,
	}
	for i := range p.shards {
		p.shards[i] = make(chan envelope, queueSize)
	}
	return p
}

func (p *pool) shard(session wamp.ID) chan envelope {
	return p.shards[uint64(session)%uint64(len(p.shards))]
}

func (p *pool) start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.stopped:
		return ErrRouterStopped
	case p.started:
		return ErrRouterRunning
	}
	p.started = true
	for _, ch := range p.shards {
		p.wg.Add(1)
		go p.worker(ctx, ch)
	}
	return nil
}

// worker drains its shard until the channel is closed, so work accepted
// before stop is still handled.
func (p *pool) worker(ctx context.Context, ch chan envelope) {
	defer p.wg.Done()
	for env := range ch {
		p.handle(ctx, env)
		p.processed.Add(1)
	}
}

// submit queues env without blocking.
func (p *pool) submit(env envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started || p.stopped {
		return ErrRouterStopped
	}
	select {
	case p.shard(env.session) <- env:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		if p.onDrop != nil {
			p.onDrop()
		}
		return ErrQueueFull
	}
}

// submitWait queues env, waiting for room until ctx is done. It must not be
// called from a worker.
func (p *pool) submitWait(ctx context.Context, env envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started || p.stopped {
		return ErrRouterStopped
	}
	select {
	case p.shard(env.session) <- env:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		p.dropped.Add(1)
		if p.onDrop != nil {
			p.onDrop()
		}
		return ctx.Err()
	}
}

// stop closes every shard and waits for the workers to drain them.
func (p *pool) stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *pool) depth() int {
	n := 0
	for _, ch := range p.shards {
		n += len(ch)
	}
	return n
}
