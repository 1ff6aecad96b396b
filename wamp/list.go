// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wamp

import "fmt"

// ToList returns the ordered-array wire form of msg: the type code first,
// then the verb-specific fields. Empty trailing Arguments/ArgumentsKw are
// omitted; details and options are always written, as {} when empty.
func ToList(msg Message) List {
	switch m := msg.(type) {
	case *Hello:
		return List{int(TypeHello), m.Realm, dict(m.Details)}
	case *Welcome:
		return List{int(TypeWelcome), uint64(m.Session), dict(m.Details)}
	case *Abort:
		return List{int(TypeAbort), dict(m.Details), m.Reason}
	case *Goodbye:
		return List{int(TypeGoodbye), dict(m.Details), m.Reason}
	case *Error:
		l := List{int(TypeError), int(m.RequestType), uint64(m.Request), dict(m.Details), m.Error}
		return withPayload(l, m.Arguments, m.ArgumentsKw)
	case *Publish:
		l := List{int(TypePublish), uint64(m.Request), dict(m.Options), m.Topic}
		return withPayload(l, m.Arguments, m.ArgumentsKw)
	case *Published:
		return List{int(TypePublished), uint64(m.Request), uint64(m.Publication)}
	case *Subscribe:
		return List{int(TypeSubscribe), uint64(m.Request), dict(m.Options), m.Topic}
	case *Subscribed:
		return List{int(TypeSubscribed), uint64(m.Request), uint64(m.Subscription)}
	case *Unsubscribe:
		return List{int(TypeUnsubscribe), uint64(m.Request), uint64(m.Subscription)}
	case *Unsubscribed:
		return List{int(TypeUnsubscribed), uint64(m.Request)}
	case *Event:
		l := List{int(TypeEvent), uint64(m.Subscription), uint64(m.Publication), dict(m.Details)}
		return withPayload(l, m.Arguments, m.ArgumentsKw)
	case *Call:
		l := List{int(TypeCall), uint64(m.Request), dict(m.Options), m.Procedure}
		return withPayload(l, m.Arguments, m.ArgumentsKw)
	case *Result:
		l := List{int(TypeResult), uint64(m.Request), dict(m.Details)}
		return withPayload(l, m.Arguments, m.ArgumentsKw)
	case *Register:
		return List{int(TypeRegister), uint64(m.Request), dict(m.Options), m.Procedure}
	case *Registered:
		return List{int(TypeRegistered), uint64(m.Request), uint64(m.Registration)}
	case *Unregister:
		return List{int(TypeUnregister), uint64(m.Request), uint64(m.Registration)}
	case *Unregistered:
		return List{int(TypeUnregistered), uint64(m.Request)}
	case *Invocation:
		l := List{int(TypeInvocation), uint64(m.Request), uint64(m.Registration), dict(m.Details)}
		return withPayload(l, m.Arguments, m.ArgumentsKw)
	case *Yield:
		l := List{int(TypeYield), uint64(m.Request), dict(m.Options)}
		return withPayload(l, m.Arguments, m.ArgumentsKw)
	}
	return nil
}

func dict(d Dict) Dict {
	if d == nil {
		return Dict{}
	}
	return d
}

func withPayload(l List, args List, kw Dict) List {
	if len(kw) > 0 {
		if args == nil {
			args = List{}
		}
		return append(l, args, kw)
	}
	if len(args) > 0 {
		return append(l, args)
	}
	return l
}

// FromList decodes the ordered-array wire form produced by ToList. Values are
// normalized first, so the result does not depend on the codec that produced l.
func FromList(l List) (Message, error) {
	if len(l) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	code, ok := asID(l[0])
	if !ok {
		return nil, fmt.Errorf("%w: message type %v is not an integer", ErrMalformed, l[0])
	}
	typ := MessageType(code)
	f := &fields{typ: typ, l: l[1:]}

	var msg Message
	switch typ {
	case TypeHello:
		f.need(2)
		msg = &Hello{Realm: f.uri(0), Details: f.dict(1)}
	case TypeWelcome:
		f.need(2)
		msg = &Welcome{Session: f.id(0), Details: f.dict(1)}
	case TypeAbort:
		f.need(2)
		msg = &Abort{Details: f.dict(0), Reason: f.uri(1)}
	case TypeGoodbye:
		f.need(2)
		msg = &Goodbye{Details: f.dict(0), Reason: f.uri(1)}
	case TypeError:
		f.need(4)
		msg = &Error{
			RequestType: MessageType(f.id(0)),
			Request:     f.id(1),
			Details:     f.dict(2),
			Error:       f.uri(3),
			Arguments:   f.args(4),
			ArgumentsKw: f.kwargs(5),
		}
	case TypePublish:
		f.need(3)
		msg = &Publish{
			Request:     f.id(0),
			Options:     f.dict(1),
			Topic:       f.uri(2),
			Arguments:   f.args(3),
			ArgumentsKw: f.kwargs(4),
		}
	case TypePublished:
		f.need(2)
		msg = &Published{Request: f.id(0), Publication: f.id(1)}
	case TypeSubscribe:
		f.need(3)
		msg = &Subscribe{Request: f.id(0), Options: f.dict(1), Topic: f.uri(2)}
	case TypeSubscribed:
		f.need(2)
		msg = &Subscribed{Request: f.id(0), Subscription: f.id(1)}
	case TypeUnsubscribe:
		f.need(2)
		msg = &Unsubscribe{Request: f.id(0), Subscription: f.id(1)}
	case TypeUnsubscribed:
		f.need(1)
		msg = &Unsubscribed{Request: f.id(0)}
	case TypeEvent:
		f.need(3)
		msg = &Event{
			Subscription: f.id(0),
			Publication:  f.id(1),
			Details:      f.dict(2),
			Arguments:    f.args(3),
			ArgumentsKw:  f.kwargs(4),
		}
	case TypeCall:
		f.need(3)
		msg = &Call{
			Request:     f.id(0),
			Options:     f.dict(1),
			Procedure:   f.uri(2),
			Arguments:   f.args(3),
			ArgumentsKw: f.kwargs(4),
		}
	case TypeResult:
		f.need(2)
		msg = &Result{
			Request:     f.id(0),
			Details:     f.dict(1),
			Arguments:   f.args(2),
			ArgumentsKw: f.kwargs(3),
		}
	case TypeRegister:
		f.need(3)
		msg = &Register{Request: f.id(0), Options: f.dict(1), Procedure: f.uri(2)}
	case TypeRegistered:
		f.need(2)
		msg = &Registered{Request: f.id(0), Registration: f.id(1)}
	case TypeUnregister:
		f.need(2)
		msg = &Unregister{Request: f.id(0), Registration: f.id(1)}
	case TypeUnregistered:
		f.need(1)
		msg = &Unregistered{Request: f.id(0)}
	case TypeInvocation:
		f.need(3)
		msg = &Invocation{
			Request:      f.id(0),
			Registration: f.id(1),
			Details:      f.dict(2),
			Arguments:    f.args(3),
			ArgumentsKw:  f.kwargs(4),
		}
	case TypeYield:
		f.need(2)
		msg = &Yield{
			Request:     f.id(0),
			Options:     f.dict(1),
			Arguments:   f.args(2),
			ArgumentsKw: f.kwargs(3),
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, int(code))
	}
	if f.err != nil {
		return nil, f.err
	}
	return msg, nil
}

// fields reads positional message fields, keeping the first error.
type fields struct {
	typ MessageType
	l   List
	err error
}

func (f *fields) fail(i int, what string) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: %s field %d: %s", ErrMalformed, f.typ, i+1, what)
	}
}

func (f *fields) need(n int) {
	if len(f.l) < n {
		f.fail(len(f.l), fmt.Sprintf("want at least %d fields, got %d", n, len(f.l)))
	}
}

func (f *fields) at(i int) (interface{}, bool) {
	if f.err != nil || i >= len(f.l) {
		return nil, false
	}
	return f.l[i], true
}

func (f *fields) id(i int) ID {
	v, ok := f.at(i)
	if !ok {
		return 0
	}
	id, ok := asID(v)
	if !ok {
		f.fail(i, fmt.Sprintf("invalid id %v", v))
	}
	return id
}

func (f *fields) uri(i int) string {
	v, ok := f.at(i)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		f.fail(i, fmt.Sprintf("want uri string, got %T", v))
	}
	return s
}

func (f *fields) dict(i int) Dict {
	v, ok := f.at(i)
	if !ok {
		return Dict{}
	}
	d, ok := Normalize(v).(map[string]interface{})
	if !ok {
		if v != nil {
			f.fail(i, fmt.Sprintf("want dict, got %T", v))
		}
		return Dict{}
	}
	return d
}

// args reads an optional trailing Arguments list; empty lists decode to nil.
func (f *fields) args(i int) List {
	v, ok := f.at(i)
	if !ok || v == nil {
		return nil
	}
	l, ok := Normalize(v).([]interface{})
	if !ok {
		f.fail(i, fmt.Sprintf("want list, got %T", v))
		return nil
	}
	if len(l) == 0 {
		return nil
	}
	return l
}

// kwargs reads an optional trailing ArgumentsKw dict; empty dicts decode to nil.
func (f *fields) kwargs(i int) Dict {
	v, ok := f.at(i)
	if !ok || v == nil {
		return nil
	}
	d, ok := Normalize(v).(map[string]interface{})
	if !ok {
		f.fail(i, fmt.Sprintf("want dict, got %T", v))
		return nil
	}
	if len(d) == 0 {
		return nil
	}
	return d
}
