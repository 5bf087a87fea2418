// Package http exposes the interaction pipeline over a JSON HTTP API built on chi.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aretw0/parley/internal/apicall"
	"github.com/aretw0/parley/internal/interact"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// VersionHeader carries the version of stateful interactions.
const VersionHeader = "versionID"

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Engine runs conversational turns.
type Engine interface {
	InitialState(ctx context.Context, versionID string) (*domain.State, error)
	Interact(ctx context.Context, in interact.Input) (*interact.Output, error)
}

// Server holds the HTTP handlers.
type Server struct {
	Engine   Engine
	Sessions *session.Manager
	Streams  *StreamManager

	metrics      http.Handler
	logger       *slog.Logger
	maxBodyBytes int64
}

// Option configures a Server.
type Option func(*Server)

// WithSessions enables the stateful user routes.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) {
		s.Sessions = m
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// NewServer creates a server for the engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		Engine:       engine,
		Streams:      NewStreamManager(),
		logger:       logging.NewNop(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.GetHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/state", func(r chi.Router) {
		r.Get("/{versionID}/initial", s.GetInitialState)
		r.Post("/{versionID}/interact", s.Interact)

		if s.Sessions != nil {
			r.Route("/user/{userID}", func(r chi.Router) {
				r.Post("/interact", s.InteractUser)
				r.Get("/", s.GetUserState)
				r.Delete("/", s.DeleteUserState)
				r.Get("/events", s.SubscribeEvents)
			})
		}
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+VersionHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInitialState handles GET /state/{versionID}/initial.
func (s *Server) GetInitialState(w http.ResponseWriter, r *http.Request) {
	state, err := s.Engine.InitialState(r.Context(), chi.URLParam(r, "versionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// interactBody is the body of the stateless and stateful interact routes.
type interactBody struct {
	State   *domain.State   `json:"state,omitempty"`
	Request *domain.Request `json:"request,omitempty"`
}

// Interact handles POST /state/{versionID}/interact. The caller owns the state.
func (s *Server) Interact(w http.ResponseWriter, r *http.Request) {
	var body interactBody
	if !s.decode(w, r, &body) {
		return
	}

	out, err := s.Engine.Interact(r.Context(), interact.Input{
		VersionID: chi.URLParam(r, "versionID"),
		State:     body.State,
		Request:   body.Request,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// InteractUser handles POST /state/user/{userID}/interact. State is kept in the session store
// and the turns of one user are serialized.
func (s *Server) InteractUser(w http.ResponseWriter, r *http.Request) {
	versionID := r.Header.Get(VersionHeader)
	if versionID == "" {
		s.writeStatus(w, http.StatusBadRequest, "missing "+VersionHeader+" header")
		return
	}
	var body interactBody
	if !s.decode(w, r, &body) {
		return
	}
	userID := chi.URLParam(r, "userID")

	var out *interact.Output
	_, err := s.Sessions.Update(r.Context(), userID,
		func(ctx context.Context) (*domain.State, error) {
			return s.Engine.InitialState(ctx, versionID)
		},
		func(ctx context.Context, state *domain.State) (*domain.State, error) {
			var err error
			out, err = s.Engine.Interact(ctx, interact.Input{
				VersionID: versionID,
				State:     state,
				Request:   body.Request,
			})
			if err != nil {
				return nil, err
			}
			return out.State, nil
		},
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := struct {
		Trace []domain.Trace `json:"trace"`
	}{Trace: out.Trace}
	if payload, err := json.Marshal(resp); err == nil {
		s.Streams.Broadcast(userID, string(payload))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GetUserState handles GET /state/user/{userID}.
func (s *Server) GetUserState(w http.ResponseWriter, r *http.Request) {
	state, err := s.Sessions.Load(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// DeleteUserState handles DELETE /state/user/{userID}.
func (s *Server) DeleteUserState(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "userID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeStatus(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.writeStatus(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// StatusCode maps an engine error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case apicall.IsBadRequest(err), interact.IsInvalidInput(err):
		return http.StatusBadRequest
	case domain.IsProgramFault(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrVersionNotFound),
		errors.Is(err, domain.ErrProgramNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeStatus(w, status, err.Error())
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "err", err)
	}
}
