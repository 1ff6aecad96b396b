// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wamp implements the WAMP v2 message model used by the router: one
// struct per protocol verb, the ordered-array wire form shared by all codecs,
// and the JSON, MessagePack and CBOR serializers that carry it.
package wamp

import "fmt"

// ID is a WAMP identifier. Valid identifiers lie in [1, MaxID].
type ID uint64

// MaxID is the largest identifier that survives IEEE-754 based encodings.
const MaxID ID = 1 << 53

// Dict is a WAMP dictionary (details, options, keyword arguments).
type Dict = map[string]interface{}

// List is a WAMP list (positional arguments).
type List = []interface{}

// MessageType is the integer discriminator leading every wire message.
type MessageType int

// Message type codes
const (
	TypeHello        MessageType = 1
	TypeWelcome      MessageType = 2
	TypeAbort        MessageType = 3
	TypeGoodbye      MessageType = 6
	TypeError        MessageType = 8
	TypePublish      MessageType = 16
	TypePublished    MessageType = 17
	TypeSubscribe    MessageType = 32
	TypeSubscribed   MessageType = 33
	TypeUnsubscribe  MessageType = 34
	TypeUnsubscribed MessageType = 35
	TypeEvent        MessageType = 36
	TypeCall         MessageType = 48
	TypeResult       MessageType = 50
	TypeRegister     MessageType = 64
	TypeRegistered   MessageType = 65
	TypeUnregister   MessageType = 66
	TypeUnregistered MessageType = 67
	TypeInvocation   MessageType = 68
	TypeYield        MessageType = 70
)

var typeNames = map[MessageType]string{
	TypeHello:        "HELLO",
	TypeWelcome:      "WELCOME",
	TypeAbort:        "ABORT",
	TypeGoodbye:      "GOODBYE",
	TypeError:        "ERROR",
	TypePublish:      "PUBLISH",
	TypePublished:    "PUBLISHED",
	TypeSubscribe:    "SUBSCRIBE",
	TypeSubscribed:   "SUBSCRIBED",
	TypeUnsubscribe:  "UNSUBSCRIBE",
	TypeUnsubscribed: "UNSUBSCRIBED",
	TypeEvent:        "EVENT",
	TypeCall:         "CALL",
	TypeResult:       "RESULT",
	TypeRegister:     "REGISTER",
	TypeRegistered:   "REGISTERED",
	TypeUnregister:   "UNREGISTER",
	TypeUnregistered: "UNREGISTERED",
	TypeInvocation:   "INVOCATION",
	TypeYield:        "YIELD",
}

// String returns the upper-case verb name of the message type
func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// Metadata is the session-scoped information attached to a message. The
// transport boundary stamps it on inbound messages; dispatch stamps it on
// outbound messages to name the recipient session. All fields are optional.
type Metadata struct {
	SessionID    ID
	ConnectionID string
	Principal    string
}

// Message is the closed set of WAMP messages understood by the router.
type Message interface {
	MessageType() MessageType
	Metadata() Metadata
	isMessage()
}

// Hello is [HELLO, Realm|uri, Details|dict]
type Hello struct {
	Meta    Metadata
	Realm   string
	Details Dict
}

// Welcome is [WELCOME, Session|id, Details|dict]
type Welcome struct {
	Meta    Metadata
	Session ID
	Details Dict
}

// Abort is [ABORT, Details|dict, Reason|uri]
type Abort struct {
	Meta    Metadata
	Details Dict
	Reason  string
}

// Goodbye is [GOODBYE, Details|dict, Reason|uri]
type Goodbye struct {
	Meta    Metadata
	Details Dict
	Reason  string
}

// Error is [ERROR, REQUEST.Type|int, REQUEST.Request|id, Details|dict,
// Error|uri, Arguments|list, ArgumentsKw|dict]
type Error struct {
	Meta        Metadata
	RequestType MessageType
	Request     ID
	Details     Dict
	Error       string
	Arguments   List
	ArgumentsKw Dict
}

// Publish is [PUBLISH, Request|id, Options|dict, Topic|uri, Arguments|list,
// ArgumentsKw|dict]
type Publish struct {
	Meta        Metadata
	Request     ID
	Options     Dict
	Topic       string
	Arguments   List
	ArgumentsKw Dict
}

// Published is [PUBLISHED, PUBLISH.Request|id, Publication|id]
type Published struct {
	Meta        Metadata
	Request     ID
	Publication ID
}

// Subscribe is [SUBSCRIBE, Request|id, Options|dict, Topic|uri]
type Subscribe struct {
	Meta    Metadata
	Request ID
	Options Dict
	Topic   string
}

// Subscribed is [SUBSCRIBED, SUBSCRIBE.Request|id, Subscription|id]
type Subscribed struct {
	Meta         Metadata
	Request      ID
	Subscription ID
}

// Unsubscribe is [UNSUBSCRIBE, Request|id, SUBSCRIBED.Subscription|id]
type Unsubscribe struct {
	Meta         Metadata
	Request      ID
	Subscription ID
}

// Unsubscribed is [UNSUBSCRIBED, UNSUBSCRIBE.Request|id]
type Unsubscribed struct {
	Meta    Metadata
	Request ID
}

// Event is [EVENT, SUBSCRIBED.Subscription|id, PUBLISHED.Publication|id,
// Details|dict, Arguments|list, ArgumentsKw|dict]
type Event struct {
	Meta         Metadata
	Subscription ID
	Publication  ID
	Details      Dict
	Arguments    List
	ArgumentsKw  Dict
}

// Call is [CALL, Request|id, Options|dict, Procedure|uri, Arguments|list,
// ArgumentsKw|dict]
type Call struct {
	Meta        Metadata
	Request     ID
	Options     Dict
	Procedure   string
	Arguments   List
	ArgumentsKw Dict
}

// Result is [RESULT, CALL.Request|id, Details|dict, Arguments|list,
// ArgumentsKw|dict]
type Result struct {
	Meta        Metadata
	Request     ID
	Details     Dict
	Arguments   List
	ArgumentsKw Dict
}

// Register is [REGISTER, Request|id, Options|dict, Procedure|uri]
type Register struct {
	Meta      Metadata
	Request   ID
	Options   Dict
	Procedure string
}

// Registered is [REGISTERED, REGISTER.Request|id, Registration|id]
type Registered struct {
	Meta         Metadata
	Request      ID
	Registration ID
}

// Unregister is [UNREGISTER, Request|id, REGISTERED.Registration|id]
type Unregister struct {
	Meta         Metadata
	Request      ID
	Registration ID
}

// Unregistered is [UNREGISTERED, UNREGISTER.Request|id]
type Unregistered struct {
	Meta    Metadata
	Request ID
}

// Invocation is [INVOCATION, Request|id, REGISTERED.Registration|id,
// Details|dict, CALL.Arguments|list, CALL.ArgumentsKw|dict]
type Invocation struct {
	Meta         Metadata
	Request      ID
	Registration ID
	Details      Dict
	Arguments    List
	ArgumentsKw  Dict
}

// Yield is [YIELD, INVOCATION.Request|id, Options|dict, Arguments|list,
// ArgumentsKw|dict]
type Yield struct {
	Meta        Metadata
	Request     ID
	Options     Dict
	Arguments   List
	ArgumentsKw Dict
}

func (*Hello) MessageType() MessageType        { return TypeHello }
func (*Welcome) MessageType() MessageType      { return TypeWelcome }
func (*Abort) MessageType() MessageType        { return TypeAbort }
func (*Goodbye) MessageType() MessageType      { return TypeGoodbye }
func (*Error) MessageType() MessageType        { return TypeError }
func (*Publish) MessageType() MessageType      { return TypePublish }
func (*Published) MessageType() MessageType    { return TypePublished }
func (*Subscribe) MessageType() MessageType    { return TypeSubscribe }
func (*Subscribed) MessageType() MessageType   { return TypeSubscribed }
func (*Unsubscribe) MessageType() MessageType  { return TypeUnsubscribe }
func (*Unsubscribed) MessageType() MessageType { return TypeUnsubscribed }
func (*Event) MessageType() MessageType        { return TypeEvent }
func (*Call) MessageType() MessageType         { return TypeCall }
func (*Result) MessageType() MessageType       { return TypeResult }
func (*Register) MessageType() MessageType     { return TypeRegister }
func (*Registered) MessageType() MessageType   { return TypeRegistered }
func (*Unregister) MessageType() MessageType   { return TypeUnregister }
func (*Unregistered) MessageType() MessageType { return TypeUnregistered }
func (*Invocation) MessageType() MessageType   { return TypeInvocation }
func (*Yield) MessageType() MessageType        { return TypeYield }

func (m *Hello) Metadata() Metadata        { return m.Meta }
func (m *Welcome) Metadata() Metadata      { return m.Meta }
func (m *Abort) Metadata() Metadata        { return m.Meta }
func (m *Goodbye) Metadata() Metadata      { return m.Meta }
func (m *Error) Metadata() Metadata        { return m.Meta }
func (m *Publish) Metadata() Metadata      { return m.Meta }
func (m *Published) Metadata() Metadata    { return m.Meta }
func (m *Subscribe) Metadata() Metadata    { return m.Meta }
func (m *Subscribed) Metadata() Metadata   { return m.Meta }
func (m *Unsubscribe) Metadata() Metadata  { return m.Meta }
func (m *Unsubscribed) Metadata() Metadata { return m.Meta }
func (m *Event) Metadata() Metadata        { return m.Meta }
func (m *Call) Metadata() Metadata         { return m.Meta }
func (m *Result) Metadata() Metadata       { return m.Meta }
func (m *Register) Metadata() Metadata     { return m.Meta }
func (m *Registered) Metadata() Metadata   { return m.Meta }
func (m *Unregister) Metadata() Metadata   { return m.Meta }
func (m *Unregistered) Metadata() Metadata { return m.Meta }
func (m *Invocation) Metadata() Metadata   { return m.Meta }
func (m *Yield) Metadata() Metadata        { return m.Meta }

func (*Hello) isMessage()        {}
func (*Welcome) isMessage()      {}
func (*Abort) isMessage()        {}
func (*Goodbye) isMessage()      {}
func (*Error) isMessage()        {}
func (*Publish) isMessage()      {}
func (*Published) isMessage()    {}
func (*Subscribe) isMessage()    {}
func (*Subscribed) isMessage()   {}
func (*Unsubscribe) isMessage()  {}
func (*Unsubscribed) isMessage() {}
func (*Event) isMessage()        {}
func (*Call) isMessage()         {}
func (*Result) isMessage()       {}
func (*Register) isMessage()     {}
func (*Registered) isMessage()   {}
func (*Unregister) isMessage()   {}
func (*Unregistered) isMessage() {}
func (*Invocation) isMessage()   {}
func (*Yield) isMessage()        {}

// WithMetadata returns a shallow copy of msg carrying meta. The original
// message is left untouched.
func WithMetadata(msg Message, meta Metadata) Message {
	switch m := msg.(type) {
	case *Hello:
		c := *m
		c.Meta = meta
		return &c
	case *Welcome:
		c := *m
		c.Meta = meta
		return &c
	case *Abort:
		c := *m
		c.Meta = meta
		return &c
	case *Goodbye:
		c := *m
		c.Meta = meta
		return &c
	case *Error:
		c := *m
		c.Meta = meta
		return &c
	case *Publish:
		c := *m
		c.Meta = meta
		return &c
	case *Published:
		c := *m
		c.Meta = meta
		return &c
	case *Subscribe:
		c := *m
		c.Meta = meta
		return &c
	case *Subscribed:
		c := *m
		c.Meta = meta
		return &c
	case *Unsubscribe:
		c := *m
		c.Meta = meta
		return &c
	case *Unsubscribed:
		c := *m
		c.Meta = meta
		return &c
	case *Event:
		c := *m
		c.Meta = meta
		return &c
	case *Call:
		c := *m
		c.Meta = meta
		return &c
	case *Result:
		c := *m
		c.Meta = meta
		return &c
	case *Register:
		c := *m
		c.Meta = meta
		return &c
	case *Registered:
		c := *m
		c.Meta = meta
		return &c
	case *Unregister:
		c := *m
		c.Meta = meta
		return &c
	case *Unregistered:
		c := *m
		c.Meta = meta
		return &c
	case *Invocation:
		c := *m
		c.Meta = meta
		return &c
	case *Yield:
		c := *m
		c.Meta = meta
		return &c
	}
	return msg
}

// To returns a copy of msg addressed to the given session.
func To(msg Message, session ID) Message {
	meta := msg.Metadata()
	meta.SessionID = session
	return WithMetadata(msg, meta)
}
