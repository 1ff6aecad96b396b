// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wamp

import (
	"errors"
	"fmt"
)

// Protocol error and close reason URIs
const (
	NoSuchProcedure        = "wamp.error.no_such_procedure"
	ProcedureAlreadyExists = "wamp.error.procedure_already_exists"
	NoSuchRegistration     = "wamp.error.no_such_registration"
	NoSuchSubscription     = "wamp.error.no_such_subscription"
	GoodbyeAndOut          = "wamp.close.goodbye_and_out"
	NetworkFailure         = "wamp.error.network_failure"
	InvalidArgument        = "wamp.error.invalid_argument"
	NotAuthorized          = "wamp.error.not_authorized"
	OptionNotAllowed       = "wamp.error.option_not_allowed"
	DiscloseMeDisallowed   = "wamp.error.option_disallowed.disclose_me"
	NoSuchRealm            = "wamp.error.no_such_realm"
	ProtocolViolation      = "wamp.error.protocol_violation"
	CloseRealm             = "wamp.close.close_realm"
	SystemShutdown         = "wamp.close.system_shutdown"
)

var (
	// ErrMalformed reports a wire message whose fields do not fit its type.
	ErrMalformed = errors.New("wamp: malformed message")

	// ErrUnknownMessage reports an unknown message type code.
	ErrUnknownMessage = errors.New("wamp: unknown message type")

	// ErrUnknownSerializer reports an unregistered sub-protocol name.
	ErrUnknownSerializer = errors.New("wamp: unknown serializer")

	// ErrNotAuthorized is returned by in-process procedure handlers to signal
	// an access-control failure. It is reported to the caller as NotAuthorized.
	ErrNotAuthorized = errors.New("wamp: not authorized")
)

// RPCError is an application error raised by a procedure handler. Its URI
// and arguments are forwarded verbatim to the caller.
type RPCError struct {
	URI         string
	Arguments   List
	ArgumentsKw Dict
}

func (e *RPCError) Error() string {
	if len(e.Arguments) > 0 {
		return fmt.Sprintf("wamp: %s: %v", e.URI, e.Arguments)
	}
	return "wamp: " + e.URI
}

// NewError builds an ERROR answering the request (reqType, req).
func NewError(reqType MessageType, req ID, uri string) *Error {
	return &Error{
		RequestType: reqType,
		Request:     req,
		Details:     Dict{},
		Error:       uri,
	}
}
