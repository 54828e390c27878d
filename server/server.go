// Package server exposes the agent over HTTP: a WebSocket endpoint per
// session plus a read-only introspection surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bandhan-ai/ralph/graph"
	"github.com/bandhan-ai/ralph/internal/logging"
	"github.com/bandhan-ai/ralph/session"
)

type Server struct {
	log      *logging.Logger
	registry *session.Registry
	engine   *graph.Engine
	addr     string
	greeting string

	mu        sync.RWMutex
	connected map[string]bool

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithGreeting sets the message sent to a client right after connect.
func WithGreeting(greeting string) Option {
	return func(s *Server) { s.greeting = greeting }
}

func New(registry *session.Registry, engine *graph.Engine, log *logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.New(nil, "info")
	}
	s := &Server{
		log:       log.Sub("server"),
		registry:  registry,
		engine:    engine,
		addr:      "127.0.0.1:8000",
		connected: map[string]bool{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens and serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("/ws/{session_id}", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:        s.addr,
		Handler:     mux,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.log.Info().Str("addr", ln.Addr().String()).Msg("server starting")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

func (s *Server) setConnected(sessionID string, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if connected {
		s.connected[sessionID] = true
	} else {
		delete(s.connected, sessionID)
	}
}

func (s *Server) isConnected(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected[sessionID]
}

func (s *Server) connectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connected)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Ralph WebSocket Server",
		"websocket_url": "/ws/{session_id}",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"active_connections": s.connectionCount(),
		"active_sessions":    s.registry.Len(),
		"timestamp":          time.Now().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	infos := s.registry.List()
	sessions := make(map[string]any, len(infos))
	for _, info := range infos {
		sessions[info.SessionID] = map[string]any{
			"created_at": info.CreatedAt.Format(time.RFC3339Nano),
			"yolo_mode":  info.AutoApprove,
			"connected":  s.isConnected(info.SessionID),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_sessions": sessions,
		"total_sessions":  len(sessions),
	})
}
