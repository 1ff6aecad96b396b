// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wamprouter

import (
	"github.com/destiny/wamprouter/logging"
	"github.com/destiny/wamprouter/retention"
)

// Options holds the router configuration. The zero value is not usable;
// start from DefaultOptions.
type Options struct {
	// Realm is the only realm HELLO may name.
	Realm string

	// Workers is the number of dispatch shards. Messages from one session
	// are always handled by the same shard.
	Workers int

	// QueueSize bounds each shard's inbound queue.
	QueueSize int

	// OutboundQueue bounds each session's outbound channel.
	OutboundQueue int

	// DiscloseCaller allows callers to request disclose_me.
	DiscloseCaller bool

	Logger    *logging.Logger
	Retention retention.Store
	Metrics   *Metrics
	Bindings  []Binding
}

// DefaultOptions returns the router defaults.
func DefaultOptions() Options {
	return Options{
		Realm:          "realm1",
		Workers:        4,
		QueueSize:      1024,
		OutboundQueue:  256,
		DiscloseCaller: true,
		Logger:         logging.DevNullLogger,
	}
}

// Option configures some aspect of a Router.
type Option func(o *Options)

// WithOptions replaces the whole configuration, e.g. one loaded from a file.
// Options applied after it still take effect.
func WithOptions(opts Options) Option {
	return func(o *Options) {
		*o = opts
	}
}

// WithRealm sets the realm sessions join.
func WithRealm(realm string) Option {
	return func(o *Options) {
		o.Realm = realm
	}
}

// WithWorkers sets the number of dispatch shards.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithQueueSize bounds each shard's inbound queue.
func WithQueueSize(n int) Option {
	return func(o *Options) {
		o.QueueSize = n
	}
}

// WithOutboundQueue bounds each session's outbound channel.
func WithOutboundQueue(n int) Option {
	return func(o *Options) {
		o.OutboundQueue = n
	}
}

// WithDiscloseCaller allows or forbids disclose_me on CALL.
func WithDiscloseCaller(allow bool) Option {
	return func(o *Options) {
		o.DiscloseCaller = allow
	}
}

// WithLogger sets a dedicated logger for the router and its engines.
func WithLogger(l *logging.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithRetention configures the store keeping the last internal publication
// per topic. Without it nothing is retained.
func WithRetention(s retention.Store) Option {
	return func(o *Options) {
		o.Retention = s
	}
}

// WithMetrics configures the Prometheus collectors updated by the router.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithBindings appends in-process event and procedure handlers, bound when
// the router starts.
func WithBindings(b ...Binding) Option {
	return func(o *Options) {
		o.Bindings = append(o.Bindings, b...)
	}
}
