// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package websocket attaches WebSocket clients to a router. The WAMP
// sub-protocol negotiated during the upgrade selects the serializer used for
// the whole connection.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	wamprouter "github.com/destiny/wamprouter"
	"github.com/destiny/wamprouter/logging"
	"github.com/destiny/wamprouter/wamp"
)

// Config configures a Server.
type Config struct {
	// Path is the HTTP path served by Serve.
	Path string

	// Subprotocols lists the accepted WAMP sub-protocols in preference
	// order. Empty means every registered serializer.
	Subprotocols []string

	// ReadLimit caps the size of one inbound message. Zero means no limit.
	ReadLimit int64

	// PingInterval enables keepalive pings. A peer that does not answer
	// within two intervals is dropped.
	PingInterval time.Duration

	WriteTimeout time.Duration

	// CheckOrigin overrides the same-origin check of the upgrade.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		Path:         "/ws",
		ReadLimit:    1 << 20,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server is an http.Handler upgrading requests to WAMP sessions.
type Server struct {
	router   *wamprouter.Router
	cfg      Config
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	closing atomic.Bool
	wg      sync.WaitGroup
}

// NewServer returns a Server attaching connections to r.
func NewServer(r *wamprouter.Router, cfg Config, logger *logging.Logger) *Server {
	if len(cfg.Subprotocols) == 0 {
		cfg.Subprotocols = wamp.Subprotocols()
	}
	if logger == nil {
		logger = logging.DevNullLogger
	}
	return &Server{
		router: r,
		cfg:    cfg,
		logger: logger.With("transport", "websocket"),
		upgrader: websocket.Upgrader{
			Subprotocols:    cfg.Subprotocols,
			CheckOrigin:     cfg.CheckOrigin,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (s *Server) negotiate(req *http.Request) (wamp.Serializer, bool) {
	offered := websocket.Subprotocols(req)
	for _, name := range s.cfg.Subprotocols {
		for _, o := range offered {
			if o == name {
				ser, err := wamp.LookupSerializer(name)
				return ser, err == nil
			}
		}
	}
	return nil, false
}

// ServeHTTP upgrades the request and runs the session until either side
// closes it.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if s.closing.Load() {
		http.Error(w, "server closing", http.StatusServiceUnavailable)
		return
	}
	ser, ok := s.negotiate(req)
	if !ok {
		http.Error(w, fmt.Sprintf("websocket: no supported subprotocol in %q", websocket.Subprotocols(req)), http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.Debug("upgrade from %s failed: %v", req.RemoteAddr, err)
		return
	}

	connID := uuid.NewString()
	sess, err := s.router.Connect(connID, "")
	if err != nil {
		s.closeWith(ws, websocket.CloseTryAgainLater, err.Error())
		_ = ws.Close()
		return
	}
	if !s.track(ws) {
		s.router.Disconnect(sess)
		s.closeWith(ws, websocket.CloseGoingAway, "server closing")
		_ = ws.Close()
		return
	}
	defer s.untrack(ws)

	log := s.logger.With("connection", connID)
	log.Debug("session %d connected from %s using %s", sess.ID, req.RemoteAddr, ws.Subprotocol())

	s.wg.Add(1)
	go s.writePump(ws, sess, ser, log)
	s.readPump(ws, sess, ser, log)
}

func (s *Server) track(ws *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.wg.Add(1)
	s.conns[ws] = struct{}{}
	return true
}

func (s *Server) untrack(ws *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, ws)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) readPump(ws *websocket.Conn, sess *wamprouter.Session, ser wamp.Serializer, log *logging.Logger) {
	defer s.router.Disconnect(sess)

	if s.cfg.ReadLimit > 0 {
		ws.SetReadLimit(s.cfg.ReadLimit)
	}
	if s.cfg.PingInterval > 0 {
		wait := 2 * s.cfg.PingInterval
		_ = ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("session %d read: %v", sess.ID, err)
			}
			return
		}
		msg, err := ser.Deserialize(data)
		if err != nil {
			log.Warn("session %d sent a malformed message: %v", sess.ID, err)
			s.closeWith(ws, websocket.CloseProtocolError, wamp.ProtocolViolation)
			_ = ws.Close()
			return
		}
		switch err := s.router.Submit(sess, msg); {
		case err == nil:
		case errors.Is(err, wamprouter.ErrSessionClosed), errors.Is(err, wamprouter.ErrRouterStopped):
			return
		case errors.Is(err, wamprouter.ErrQueueFull):
			log.Warn("session %d: %s dropped on a full queue, closing", sess.ID, msg.MessageType())
			s.closeWith(ws, websocket.CloseTryAgainLater, "router busy")
			_ = ws.Close()
			return
		default:
			log.Warn("session %d: %s dropped: %v", sess.ID, msg.MessageType(), err)
		}
	}
}

func (s *Server) writePump(ws *websocket.Conn, sess *wamprouter.Session, ser wamp.Serializer, log *logging.Logger) {
	defer s.wg.Done()
	defer ws.Close()

	frame := websocket.TextMessage
	if ser.Binary() {
		frame = websocket.BinaryMessage
	}
	var tick <-chan time.Time
	if s.cfg.PingInterval > 0 {
		t := time.NewTicker(s.cfg.PingInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case msg, ok := <-sess.Outbound():
			if !ok {
				s.closeWith(ws, websocket.CloseNormalClosure, "")
				return
			}
			data, err := ser.Serialize(msg)
			if err != nil {
				log.Error("session %d: encode %s: %v", sess.ID, msg.MessageType(), err)
				continue
			}
			s.setWriteDeadline(ws)
			if err := ws.WriteMessage(frame, data); err != nil {
				log.Debug("session %d write: %v", sess.ID, err)
				return
			}
		case <-tick:
			if err := ws.WriteControl(websocket.PingMessage, nil, s.deadline()); err != nil {
				log.Debug("session %d ping: %v", sess.ID, err)
				return
			}
		}
	}
}

func (s *Server) deadline() time.Time {
	if s.cfg.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.cfg.WriteTimeout)
}

func (s *Server) setWriteDeadline(ws *websocket.Conn) {
	_ = ws.SetWriteDeadline(s.deadline())
}

func (s *Server) closeWith(ws *websocket.Conn, code int, text string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close drops every connection and waits for their goroutines. New upgrades
// are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closing.Store(true)
	for ws := range s.conns {
		s.closeWith(ws, websocket.CloseGoingAway, "server closing")
		_ = ws.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Serve accepts connections on ln under cfg.Path until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("websocket: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		s.Close()
		return err
	})
	return g.Wait()
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("websocket: listen %s: %w", addr, err)
	}
	s.logger.Info("listening on %s%s", ln.Addr(), s.cfg.Path)
	return s.Serve(ctx, ln)
}
