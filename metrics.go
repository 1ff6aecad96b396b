// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wamprouter

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/destiny/wamprouter/broker"
	"github.com/destiny/wamprouter/dealer"
	"github.com/destiny/wamprouter/wamp"
)

// Metrics holds the Prometheus collectors of one router. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	sessions        prometheus.Gauge
	subscriptions   prometheus.Gauge
	registrations   prometheus.Gauge
	pending         prometheus.Gauge
	messagesIn      *prometheus.CounterVec
	messagesOut     *prometheus.CounterVec
	outboundDropped prometheus.Counter
	queueDropped    prometheus.Counter
	orphaned        prometheus.Counter
}

// NewMetrics creates the router collectors under namespace and registers
// them with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "wamprouter"
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	m := &Metrics{
		sessions:      gauge("sessions", "Attached sessions"),
		subscriptions: gauge("subscriptions", "Live subscriptions"),
		registrations: gauge("registrations", "Registered procedures"),
		pending:       gauge("pending_invocations", "Invocations awaiting a callee response"),
		messagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_received_total", Help: "Messages accepted for dispatch",
		}, []string{"type"}),
		messagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_sent_total", Help: "Messages queued to sessions",
		}, []string{"type"}),
		outboundDropped: counter("outbound_dropped_total", "Messages dropped on a full or closed session queue"),
		queueDropped:    counter("queue_dropped_total", "Inbound work dropped on a full dispatch queue"),
		orphaned:        counter("orphaned_invocations_total", "Pending invocations failed because their callee went away"),
	}

	var errs []error
	for _, c := range []prometheus.Collector{
		m.sessions, m.subscriptions, m.registrations, m.pending,
		m.messagesIn, m.messagesOut, m.outboundDropped, m.queueDropped, m.orphaned,
	} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("router: register metrics: %w", err)
	}
	return m, nil
}

// SubscriptionSignal tracks the live subscription count.
func (m *Metrics) SubscriptionSignal(sig broker.Signal) {
	if m == nil {
		return
	}
	switch sig.Kind {
	case broker.SubscriptionCreated:
		m.subscriptions.Inc()
	case broker.SubscriptionDeleted:
		m.subscriptions.Dec()
	}
}

// RegistrationSignal tracks registrations and orphaned invocations.
func (m *Metrics) RegistrationSignal(sig dealer.Signal) {
	if m == nil {
		return
	}
	switch sig.Kind {
	case dealer.ProcedureRegistered:
		m.registrations.Inc()
	case dealer.ProcedureUnregistered:
		m.registrations.Dec()
		m.orphaned.Add(float64(sig.Orphaned))
	}
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.pending.Set(float64(n))
	}
}

func (m *Metrics) inbound(t wamp.MessageType) {
	if m != nil {
		m.messagesIn.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) outbound(t wamp.MessageType) {
	if m != nil {
		m.messagesOut.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) outboundDrop() {
	if m != nil {
		m.outboundDropped.Inc()
	}
}

func (m *Metrics) poolDrop() {
	if m != nil {
		m.queueDropped.Inc()
	}
}
