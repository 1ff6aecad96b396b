// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example in-process procedure and event handler driven by an attached session
package main

import (
	"context"
	"log"
	"time"

	wamprouter "github.com/destiny/wamprouter"
	"github.com/destiny/wamprouter/dealer"
	"github.com/destiny/wamprouter/logging"
	"github.com/destiny/wamprouter/match"
	"github.com/destiny/wamprouter/wamp"
)

func divide(_ context.Context, inv *wamp.Invocation) (dealer.Result, error) {
	if len(inv.Arguments) != 2 {
		return dealer.Result{}, &wamp.RPCError{URI: wamp.InvalidArgument, Arguments: wamp.List{"expected two arguments"}}
	}
	a, aok := inv.Arguments[0].(int64)
	b, bok := inv.Arguments[1].(int64)
	if !aok || !bok {
		return dealer.Result{}, &wamp.RPCError{URI: wamp.InvalidArgument, Arguments: wamp.List{"arguments must be integers"}}
	}
	if b == 0 {
		return dealer.Result{}, &wamp.RPCError{URI: "com.example.division_by_zero"}
	}
	return dealer.Result{Arguments: wamp.List{a / b, a % b}}, nil
}

func main() {
	router := wamprouter.New(
		wamprouter.WithLogger(logging.NewConsoleLogger(log.Writer(), logging.LogLevelInfo)),
		wamprouter.WithBindings(
			wamprouter.OnCall("com.example.divide", divide),
			wamprouter.OnEvent("com.example.", match.Prefix, func(_ context.Context, topic string, ev *wamp.Event) {
				log.Printf("event on %s: %v", topic, ev.Arguments)
			}),
		),
	)
	if err := router.Start(); err != nil {
		log.Fatalf("Failed to start router: %v", err)
	}
	defer router.Stop()

	sess, err := router.Connect("example", "")
	if err != nil {
		log.Fatalf("Failed to attach session: %v", err)
	}
	defer router.Disconnect(sess)

	send := func(msg wamp.Message) {
		if err := router.Submit(sess, msg); err != nil {
			log.Fatalf("Submit %s: %v", msg.MessageType(), err)
		}
	}
	recv := func() wamp.Message {
		select {
		case msg := <-sess.Outbound():
			return msg
		case <-time.After(2 * time.Second):
			log.Fatalf("no reply from router")
			return nil
		}
	}

	send(&wamp.Hello{Realm: router.Realm(), Details: wamp.Dict{}})
	log.Printf("welcome: %+v", recv())

	for i, args := range []wamp.List{{int64(17), int64(5)}, {int64(1), int64(0)}} {
		send(&wamp.Call{Request: wamp.ID(i + 1), Options: wamp.Dict{}, Procedure: "com.example.divide", Arguments: args})
		switch reply := recv().(type) {
		case *wamp.Result:
			log.Printf("divide%v = %v", args, reply.Arguments)
		case *wamp.Error:
			log.Printf("divide%v failed: %s", args, reply.Error)
		}
	}

	if err := router.Publisher().Publish("com.example.status", wamp.List{"done"}); err != nil {
		log.Printf("Publish: %v", err)
	}
	// The event handler runs on a worker; give it a moment before stopping.
	time.Sleep(100 * time.Millisecond)
	log.Printf("stats: %v", router.Stats())
}
