// Package server exposes the HTTP and websocket surface of the voice
// service: session lifecycle endpoints, the voice stream, health probes, and
// the metrics scrape endpoint.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aishwarymishra09/voice-chat-be/internal/engine"
	"github.com/aishwarymishra09/voice-chat-be/internal/health"
	"github.com/aishwarymishra09/voice-chat-be/internal/observe"
	"github.com/aishwarymishra09/voice-chat-be/internal/session"
	"github.com/aishwarymishra09/voice-chat-be/internal/turn"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/vad"
)

// Server routes HTTP traffic to the session manager and the voice pipeline.
type Server struct {
	manager   *session.Manager
	processor *engine.Processor

	vad     vad.Engine
	timing  turn.Timing
	health  *health.Handler
	metrics *observe.Metrics
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithVAD sets the voice-activity engine used per stream. Nil selects pure
// energy gating.
func WithVAD(engine vad.Engine) Option {
	return func(s *Server) { s.vad = engine }
}

// WithTiming overrides the turn boundary timing.
func WithTiming(t turn.Timing) Option {
	return func(s *Server) { s.timing = t }
}

// WithHealth sets the health handler registered on the mux.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server over the session manager and turn processor.
func New(manager *session.Manager, processor *engine.Processor, opts ...Option) *Server {
	s := &Server{
		manager:   manager,
		processor: processor,
		timing:    turn.DefaultTiming(),
		health:    health.New(),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the full HTTP handler: API routes wrapped in the
// observability middleware, plus health probes and the metrics endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /session/create", s.handleCreate)
	mux.HandleFunc("GET /session/{id}", s.handleGet)
	mux.HandleFunc("POST /session/{id}/close", s.handleClose)
	mux.HandleFunc("GET /ws/voice/{id}", s.handleVoice)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// sessionResponse is the JSON shape for session lifecycle endpoints.
type sessionResponse struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	CloseReason string `json:"close_reason,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func sessionJSON(sess *session.Session) sessionResponse {
	return sessionResponse{
		SessionID:   sess.ID,
		Status:      sess.Status,
		CloseReason: sess.CloseReason,
		CreatedAt:   sess.CreatedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
	}
}

// createRequest is the optional JSON body for POST /session/create. Metadata
// carries per-call settings such as the client's audio capture format.
type createRequest struct {
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	sess, err := s.manager.Create(r.Context(), req.Metadata)
	if err != nil {
		s.logger.Error("session create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	writeJSON(w, http.StatusCreated, sessionJSON(sess))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("session lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(sess))
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.manager.Close(r.Context(), id, session.CloseReasonClient)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		s.logger.Error("session close failed", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not close session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, Status: session.StatusClosed, CloseReason: session.CloseReasonClient})
}

// errorResponse is the JSON error body for all endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
