// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wamprouter

import (
	"github.com/destiny/wamprouter/broker"
	"github.com/destiny/wamprouter/wamp"
)

// PublishOption restricts the recipients of an in-process publication.
type PublishOption func(options wamp.Dict)

// Eligible limits delivery to the given sessions.
func Eligible(sessions ...wamp.ID) PublishOption {
	return func(options wamp.Dict) {
		options[broker.OptEligible] = idList(sessions)
	}
}

// Exclude prevents delivery to the given sessions.
func Exclude(sessions ...wamp.ID) PublishOption {
	return func(options wamp.Dict) {
		options[broker.OptExclude] = idList(sessions)
	}
}

func idList(ids []wamp.ID) wamp.List {
	l := make(wamp.List, len(ids))
	for i, id := range ids {
		l[i] = uint64(id)
	}
	return l
}

// Publisher lets application code publish into the router. Its publications
// carry no origin connection, so they are the ones the retention store keeps.
type Publisher struct {
	r *Router
}

// Publish sends an event with positional arguments.
func (p *Publisher) Publish(topic string, args wamp.List, opts ...PublishOption) error {
	return p.PublishKw(topic, args, nil, opts...)
}

// PublishKw sends an event with positional and keyword arguments.
func (p *Publisher) PublishKw(topic string, args wamp.List, kwargs wamp.Dict, opts ...PublishOption) error {
	options := wamp.Dict{}
	for _, opt := range opts {
		opt(options)
	}
	msg := &wamp.Publish{
		Request:     p.r.requests.Next(),
		Options:     options,
		Topic:       topic,
		Arguments:   args,
		ArgumentsKw: kwargs,
	}
	if err := p.r.pool.submit(envelope{msg: msg}); err != nil {
		return err
	}
	p.r.metrics.inbound(wamp.TypePublish)
	return nil
}
