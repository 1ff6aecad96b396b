// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wamp

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// WebSocket sub-protocol names of the built-in serializers
const (
	JSONSubprotocol    = "wamp.2.json"
	MsgpackSubprotocol = "wamp.2.msgpack"
	CBORSubprotocol    = "wamp.2.cbor"
)

// Serializer converts messages to and from bytes. All serializers encode the
// same ordered array produced by ToList; they differ only in byte format.
type Serializer interface {
	Serialize(msg Message) ([]byte, error)
	Deserialize(data []byte) (Message, error)
	// Binary reports whether frames must be sent as binary.
	Binary() bool
}

// JSONSerializer encodes messages as JSON text.
type JSONSerializer struct{}

var jsonAPI = sonic.Config{UseInt64: true}.Froze()

func (JSONSerializer) Serialize(msg Message) ([]byte, error) {
	l := ToList(msg)
	if l == nil {
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	b, err := jsonAPI.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("wamp: json encode %s: %w", msg.MessageType(), err)
	}
	return b, nil
}

func (JSONSerializer) Deserialize(data []byte) (Message, error) {
	var l List
	if err := jsonAPI.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrMalformed, err)
	}
	return FromList(l)
}

func (JSONSerializer) Binary() bool { return false }

// MsgpackSerializer encodes messages as MessagePack.
type MsgpackSerializer struct{}

func (MsgpackSerializer) Serialize(msg Message) ([]byte, error) {
	l := ToList(msg)
	if l == nil {
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	b, err := msgpack.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("wamp: msgpack encode %s: %w", msg.MessageType(), err)
	}
	return b, nil
}

func (MsgpackSerializer) Deserialize(data []byte) (Message, error) {
	var l List
	if err := msgpack.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: msgpack: %v", ErrMalformed, err)
	}
	return FromList(l)
}

func (MsgpackSerializer) Binary() bool { return true }

// CBORSerializer encodes messages as CBOR.
type CBORSerializer struct{}

var cborDecMode cbor.DecMode

func init() {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	cborDecMode = dm
}

func (CBORSerializer) Serialize(msg Message) ([]byte, error) {
	l := ToList(msg)
	if l == nil {
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	b, err := cbor.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("wamp: cbor encode %s: %w", msg.MessageType(), err)
	}
	return b, nil
}

func (CBORSerializer) Deserialize(data []byte) (Message, error) {
	var l List
	if err := cborDecMode.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: cbor: %v", ErrMalformed, err)
	}
	return FromList(l)
}

func (CBORSerializer) Binary() bool { return true }

var (
	serializersMu sync.RWMutex
	serializers   = map[string]Serializer{
		JSONSubprotocol:    JSONSerializer{},
		MsgpackSubprotocol: MsgpackSerializer{},
		CBORSubprotocol:    CBORSerializer{},
	}
)

// RegisterSerializer makes a serializer available under a sub-protocol name,
// replacing any previous registration.
func RegisterSerializer(subprotocol string, s Serializer) {
	if subprotocol == "" || s == nil {
		panic("wamp: RegisterSerializer with empty name or nil serializer")
	}
	serializersMu.Lock()
	serializers[subprotocol] = s
	serializersMu.Unlock()
}

// LookupSerializer returns the serializer registered for subprotocol.
func LookupSerializer(subprotocol string) (Serializer, error) {
	serializersMu.RLock()
	s, ok := serializers[subprotocol]
	serializersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSerializer, subprotocol)
	}
	return s, nil
}

// Subprotocols lists the registered sub-protocol names in sorted order.
func Subprotocols() []string {
	serializersMu.RLock()
	defer serializersMu.RUnlock()
	names := make([]string, 0, len(serializers))
	for name := range serializers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
