// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	wamprouter "github.com/destiny/wamprouter"
	"github.com/destiny/wamprouter/internal/testutil"
	"github.com/destiny/wamprouter/match"
	"github.com/destiny/wamprouter/wamp"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setup(t *testing.T, cfg Config, opts ...wamprouter.Option) (*wamprouter.Router, string) {
	t.Helper()
	r := wamprouter.New(opts...)
	require.NoError(t, r.Start())
	t.Cleanup(func() { _ = r.Stop() })

	srv := NewServer(r, cfg, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)
	return r, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PingInterval = 0
	return cfg
}

type client struct {
	t   *testing.T
	ws  *websocket.Conn
	ser wamp.Serializer
}

func dial(t *testing.T, url string, protocols ...string) *client {
	t.Helper()
	d := websocket.Dialer{Subprotocols: protocols, HandshakeTimeout: 2 * time.Second}
	ws, resp, err := d.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	ser, err := wamp.LookupSerializer(ws.Subprotocol())
	require.NoError(t, err)
	return &client{t: t, ws: ws, ser: ser}
}

func (c *client) send(msg wamp.Message) {
	c.t.Helper()
	data, err := c.ser.Serialize(msg)
	require.NoError(c.t, err)
	frame := websocket.TextMessage
	if c.ser.Binary() {
		frame = websocket.BinaryMessage
	}
	require.NoError(c.t, c.ws.WriteMessage(frame, data))
}

func (c *client) read() (int, wamp.Message, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, data, err := c.ws.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	msg, err := c.ser.Deserialize(data)
	return frame, msg, err
}

func expect[T wamp.Message](c *client) T {
	c.t.Helper()
	_, msg, err := c.read()
	require.NoError(c.t, err)
	v, ok := msg.(T)
	require.True(c.t, ok, "got %T %+v", msg, msg)
	return v
}

func TestHelloWelcome(t *testing.T) {
	_, url := setup(t, testConfig())
	c := dial(t, url, wamp.JSONSubprotocol)
	assert.Equal(t, wamp.JSONSubprotocol, c.ws.Subprotocol())

	c.send(&wamp.Hello{Realm: "realm1", Details: wamp.Dict{}})
	frame, msg, err := c.read()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, frame)
	w, ok := msg.(*wamp.Welcome)
	require.True(t, ok)
	assert.NotZero(t, w.Session)
	assert.Equal(t, "realm1", w.Details["realm"])
}

func TestSubprotocolPreference(t *testing.T) {
	cfg := testConfig()
	cfg.Subprotocols = []string{wamp.MsgpackSubprotocol, wamp.JSONSubprotocol}
	_, url := setup(t, cfg)

	c := dial(t, url, wamp.JSONSubprotocol, wamp.MsgpackSubprotocol)
	assert.Equal(t, wamp.MsgpackSubprotocol, c.ws.Subprotocol())
}

func TestRejectsUnknownSubprotocol(t *testing.T) {
	_, url := setup(t, testConfig())

	d := websocket.Dialer{Subprotocols: []string{"wamp.2.xml"}, HandshakeTimeout: 2 * time.Second}
	ws, resp, err := d.Dial(url, nil)
	if ws != nil {
		_ = ws.Close()
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPubSubAcrossSerializers(t *testing.T) {
	_, url := setup(t, testConfig())
	sub := dial(t, url, wamp.MsgpackSubprotocol)
	pub := dial(t, url, wamp.CBORSubprotocol)

	sub.send(&wamp.Subscribe{Request: 1, Options: wamp.Dict{}, Topic: "com.example.news"})
	subscribed := expect[*wamp.Subscribed](sub)

	pub.send(&wamp.Publish{Request: 2, Options: wamp.Dict{"acknowledge": true}, Topic: "com.example.news", Arguments: wamp.List{"hello"}})
	expect[*wamp.Published](pub)

	frame, msg, err := sub.read()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, frame)
	ev, ok := msg.(*wamp.Event)
	require.True(t, ok)
	assert.Equal(t, subscribed.Subscription, ev.Subscription)
	assert.Equal(t, wamp.List{"hello"}, ev.Arguments)
}

func TestCallAcrossConnections(t *testing.T) {
	_, url := setup(t, testConfig())
	callee := dial(t, url, wamp.JSONSubprotocol)
	caller := dial(t, url, wamp.CBORSubprotocol)

	callee.send(&wamp.Register{Request: 1, Options: wamp.Dict{}, Procedure: "divide"})
	expect[*wamp.Registered](callee)

	caller.send(&wamp.Call{Request: 2, Options: wamp.Dict{}, Procedure: "divide", Arguments: wamp.List{10, 5}})
	inv := expect[*wamp.Invocation](callee)
	assert.Equal(t, wamp.List{int64(10), int64(5)}, inv.Arguments)

	callee.send(&wamp.Yield{Request: inv.Request, Options: wamp.Dict{}, Arguments: wamp.List{2}})
	res := expect[*wamp.Result](caller)
	assert.Equal(t, wamp.ID(2), res.Request)
	assert.Equal(t, wamp.List{int64(2)}, res.Arguments)

	caller.send(&wamp.Call{Request: 3, Options: wamp.Dict{}, Procedure: "divide", Arguments: wamp.List{1, 1}})
	expect[*wamp.Invocation](callee)
	require.NoError(t, callee.ws.Close())

	e := expect[*wamp.Error](caller)
	assert.Equal(t, wamp.TypeCall, e.RequestType)
	assert.Equal(t, wamp.ID(3), e.Request)
	assert.Equal(t, wamp.NoSuchRegistration, e.Error)
}

func TestMalformedMessageClosesConnection(t *testing.T) {
	r, url := setup(t, testConfig())
	c := dial(t, url, wamp.JSONSubprotocol)
	require.Eventually(t, func() bool { return r.Sessions() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	_, _, err := c.read()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseProtocolError), "got %v", err)

	require.Eventually(t, func() bool { return r.Sessions() == 0 }, time.Second, 5*time.Millisecond)
}

func TestFullQueueClosesConnection(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	r, url := setup(t, testConfig(),
		wamprouter.WithWorkers(1),
		wamprouter.WithQueueSize(1),
		wamprouter.WithBindings(wamprouter.OnEvent("block", match.Exact, func(context.Context, string, *wamp.Event) {
			close(entered)
			<-release
		})),
	)

	require.NoError(t, r.Publisher().Publish("block", nil))
	<-entered
	require.NoError(t, r.Publisher().Publish("filler", nil))

	c := dial(t, url, wamp.JSONSubprotocol)
	c.send(&wamp.Subscribe{Request: 1, Options: wamp.Dict{}, Topic: "news"})
	_, _, err := c.read()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
}

func TestRouterStopSendsGoodbye(t *testing.T) {
	r, url := setup(t, testConfig())
	c := dial(t, url, wamp.JSONSubprotocol)
	require.Eventually(t, func() bool { return r.Sessions() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop())
	g := expect[*wamp.Goodbye](c)
	assert.Equal(t, wamp.SystemShutdown, g.Reason)

	_, _, err := c.read()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestListenAndServe(t *testing.T) {
	r := wamprouter.New()
	require.NoError(t, r.Start())
	defer r.Stop()

	addr, err := testutil.FreeAddr()
	require.NoError(t, err)
	srv := NewServer(r, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, addr) }()
	require.NoError(t, testutil.WaitForListener(addr, 2*time.Second))

	c := dial(t, "ws://"+addr+"/ws", wamp.JSONSubprotocol)
	c.send(&wamp.Hello{Realm: "realm1", Details: wamp.Dict{}})
	expect[*wamp.Welcome](c)
	assert.Equal(t, 1, srv.Connections())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	_, _, err = c.read()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, srv.Connections())
}
