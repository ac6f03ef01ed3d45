package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpalmerr/eventwatch/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE or
	// WebSocket write. Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// wsPingInterval keeps idle WebSocket connections alive through proxies.
	wsPingInterval = 30 * time.Second
)

// StateFunc returns the current detector state for /api/state.
// The value must be JSON encodable.
type StateFunc func() any

// Server exposes matched events over HTTP.
//
// Server provides four endpoints:
//   - GET /api/events: Returns the stored events as JSON, oldest first
//   - GET /api/state: Returns the detector's schedule and cache state
//   - GET /api/sse: Server-Sent Events stream of new events
//   - GET /ws: WebSocket stream of new events, one JSON text message each
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	state      StateFunc
	port       int
	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	done       chan struct{}
	doneOnce   sync.Once
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding matched events
//   - state: Source for /api/state (may be nil)
//   - port: TCP port to listen on; 0 picks a free port
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, state StateFunc, port int, logger *slog.Logger) *Server {
	return &Server{
		store: st,
		state: state,
		port:  port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// local tool; any origin may read the stream
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Handler returns the server's routes. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout. [Server.Done] is closed once shutdown completes.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// request contexts derive from ctx, so long-lived SSE and WebSocket
		// handlers see shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		defer s.doneOnce.Do(func() { close(s.done) })
		select {
		case <-ctx.Done():
		case <-serveDone:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
		<-serveDone
	}()

	s.logger.Info("event server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Done is closed once the server has shut down after Start.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// handleEvents returns all stored events as JSON.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(s.store.GetAll()); err != nil {
		s.logger.Error("failed to encode events response", "error", err)
	}
}

// handleState returns the detector state as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.state == nil {
		http.Error(w, "State not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(s.state()); err != nil {
		s.logger.Error("failed to encode state response", "error", err)
	}
}

// handleSSE streams events via Server-Sent Events.
//
// Stored events are sent first, then new ones as they arrive. Writes carry
// a deadline so a stalled client cannot pin the handler past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// may not be supported by some ResponseWriter impls (e.g. recorders)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe before the snapshot so nothing falls in between
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, rec := range s.store.GetAll() {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on both client disconnect and server shutdown
			return
		}
	}
}

// handleWebSocket upgrades the connection and pushes each new event as a
// JSON text message. Messages from the client are read and discarded so
// that close frames and disconnects are noticed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	s.logger.Debug("ws connected", "remote", r.RemoteAddr)
	defer s.logger.Debug("ws disconnected", "remote", r.RemoteAddr)

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(sseWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ping.C:
			deadline := time.Now().Add(sseWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}

		case <-readDone:
			return

		case <-r.Context().Done():
			deadline := time.Now().Add(time.Second)
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}
