// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"handbeat/internal/engine"
	"handbeat/internal/log"
)

const (
	maxBodySize     = 64 << 10
	readTimeout     = 10 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server is the HTTP surface of the visual layer: health and status
// endpoints, a JSON gesture endpoint, and the websocket hub on /ws.
type Server struct {
	addr   string
	ctrl   Controller
	hub    *Hub
	router *chi.Mux
	log    log.Component

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	doneChan chan error
}

// NewServer creates a server for addr. hub may be nil to serve without /ws.
func NewServer(addr string, ctrl Controller, hub *Hub) *Server {
	s := &Server{
		addr:   addr,
		ctrl:   ctrl,
		hub:    hub,
		router: chi.NewRouter(),
		log:    log.For("HTTP"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/status", s.handleStatus)
	r.Get("/features", s.handleFeatures)
	r.Post("/gesture", s.handleGesture)
	if s.hub != nil {
		r.Handle("/ws", s.hub)
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Addr reports the bound address once Start has returned.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("transport: server already started")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:     s.router,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}
	s.doneChan = make(chan error, 1)
	go func(srv *http.Server, done chan<- error) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}(s.srv, s.doneChan)
	s.log.Infof("listening on %s", ln.Addr())
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
// Websocket connections are closed with the hub, not here.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.doneChan
	s.srv, s.doneChan = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-done
}

// Close shuts the server down within a fixed timeout.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// logRequests logs each request at debug level with its status and latency.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debugf("%s %s %d %dB %s [%s]", r.Method, r.URL.Path, ww.Status(),
			ww.BytesWritten(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ctrl.Ready() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	body := map[string]string{"status": "not ready"}
	if err := s.ctrl.Err(); err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusServiceUnavailable, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewFeatures(s.ctrl.Features()))
}

func (s *Server) handleGesture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var msg Inbound
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if msg.Type == "" {
		msg.Type = TypeGesture
	}
	err := Dispatch(s.ctrl, msg)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, ErrMessage):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, engine.ErrNotReady), errors.Is(err, engine.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, engine.ErrBusy):
		writeError(w, http.StatusTooManyRequests, err)
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
