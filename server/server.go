// Package server exposes agent runs, sessions and saved tasks over HTTP.
//
// Runs stream as newline-delimited JSON by default, as Server-Sent Events
// when the client accepts text/event-stream, or over a WebSocket at
// /api/chat/ws. At most one run per session is admitted at a time; a
// concurrent request for a busy session gets 409 Conflict.
package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/logging"
	"github.com/hupe1980/agentd/runner"
	"github.com/hupe1980/agentd/session"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Store is the persistence surface the server needs.
type Store interface {
	core.SessionStore
	core.TaskStore
}

// Options configures a Server.
type Options struct {
	// Locker serializes runs per session. A fresh one is created when nil.
	Locker *session.Locker
	// Titler summarizes conversations into titles.
	Titler *session.Titler
	// CheckOrigin overrides the WebSocket origin check (same origin by default).
	CheckOrigin func(r *http.Request) bool
	// Integrations enables runtime MCP server configuration.
	Integrations Integrations
	// Logging services.
	Logger logging.Logger
}

// Server exposes the runner and the stores over HTTP.
type Server struct {
	runner       *runner.Runner
	store        Store
	locker       *session.Locker
	titler       *session.Titler
	integrations Integrations
	upgrader     websocket.Upgrader
	logger       logging.Logger
	mux          *http.ServeMux
}

// New creates a Server. Runs are persisted by the runner's own session
// store, which should be the same backend as store.
func New(r *runner.Runner, store Store, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Locker == nil {
		opts.Locker = session.NewLocker()
	}

	if opts.Titler == nil {
		opts.Titler = session.NewTitler(nil, func(o *session.TitlerOptions) { o.Logger = opts.Logger })
	}

	s := &Server{
		runner:       r,
		store:        store,
		locker:       opts.Locker,
		titler:       opts.Titler,
		integrations: opts.Integrations,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		logger: opts.Logger,
		mux:    http.NewServeMux(),
	}

	s.routes()

	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/tools", s.handleTools)
	s.mux.HandleFunc("GET /api/integrations", s.handleListIntegrations)
	s.mux.HandleFunc("PUT /api/integrations", s.handleSetIntegration)

	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)
	s.mux.HandleFunc("POST /api/runs/{id}/cancel", s.handleCancelRun)
	s.mux.HandleFunc("POST /api/summarize", s.handleSummarize)

	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("PATCH /api/sessions/{id}", s.handleRenameSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/title", s.handleSummarizeSession)

	s.mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("PUT /api/tasks/{id}", s.handleUpdateTask)
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/run", s.handleRunTask)
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	s.mux.ServeHTTP(rec, r)

	s.logger.Debug("http.request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_runs": s.runner.ActiveRuns(),
		"tools":       s.runner.Registry().Len(),
	})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.runner.Registry().List()})
}

// statusRecorder captures the response status for logging. It forwards
// Flush and exposes the wrapped writer for the WebSocket hijack.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store failures to HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrTaskNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrSessionBusy):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("server.store.failed", "op", op, "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
