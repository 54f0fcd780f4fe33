package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/loqalabs/loqa-listen/internal/audio"
	"github.com/loqalabs/loqa-listen/internal/capability"
	"github.com/loqalabs/loqa-listen/internal/eventstore"
	"github.com/loqalabs/loqa-listen/internal/permission"
	"github.com/loqalabs/loqa-listen/internal/session"
)

// Session is the caller-facing surface of the recognition session.
type Session interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Toggle(ctx context.Context) error
	State() session.State
}

type Gate interface {
	RequestAuthorization(ctx context.Context) (permission.Status, error)
}

type Timeline interface {
	RecentSessions(ctx context.Context, limit int) ([]eventstore.Session, error)
}

type Nodes interface {
	Query(filter func(capability.NodeInfo) bool) []capability.NodeInfo
}

type Options struct {
	Session  Session
	Gate     Gate
	Status   *session.StatusObserver
	Hub      *Hub
	Timeline Timeline
	Nodes    Nodes
	Logger   *slog.Logger
}

// Server exposes the button and guide surface over HTTP.
type Server struct {
	opts Options
	log  *slog.Logger
}

func NewServer(opts Options) *Server {
	return &Server{opts: opts, log: opts.Logger.With(slog.String("component", "control"))}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/session/start", s.sessionAction(Session.Start))
	mux.HandleFunc("POST /v1/session/stop", s.sessionAction(Session.Stop))
	mux.HandleFunc("POST /v1/session/toggle", s.sessionAction(Session.Toggle))
	mux.HandleFunc("GET /v1/session", s.handleStatus)
	mux.HandleFunc("POST /v1/authorization", s.handleAuthorization)
	if s.opts.Timeline != nil {
		mux.HandleFunc("GET /v1/sessions", s.handleSessions)
	}
	if s.opts.Nodes != nil {
		mux.HandleFunc("GET /v1/nodes", s.handleNodes)
	}
	if s.opts.Hub != nil {
		mux.Handle("GET /v1/events", s.opts.Hub)
	}
}

func (s *Server) sessionAction(op func(Session, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(s.opts.Session, r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.snapshot())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

type authorizationResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleAuthorization(w http.ResponseWriter, r *http.Request) {
	status, err := s.opts.Gate.RequestAuthorization(r.Context())
	resp := authorizationResponse{Status: status.String()}
	var authErr *permission.AuthorizationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.As(err, &authErr):
		resp.Error = err.Error()
		writeJSON(w, http.StatusForbidden, resp)
	default:
		s.writeError(w, err)
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := s.opts.Timeline.RecentSessions(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []eventstore.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleNodes lists known nodes, optionally only live ones offering ?capability=.
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	var filter func(capability.NodeInfo) bool
	if name := r.URL.Query().Get("capability"); name != "" {
		filter = capability.Live(name)
	}
	nodes := s.opts.Nodes.Query(filter)
	if nodes == nil {
		nodes = []capability.NodeInfo{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) snapshot() session.Snapshot {
	var snap session.Snapshot
	if s.opts.Status != nil {
		snap = s.opts.Status.Snapshot()
	}
	state := s.opts.Session.State()
	snap.State = state.String()
	snap.Running = state.Running()
	return snap
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var (
		engErr  *audio.EngineError
		cfgErr  *audio.SessionConfigurationError
		authErr *permission.AuthorizationError
	)
	switch {
	case errors.As(err, &authErr):
		code = http.StatusForbidden
	case errors.As(err, &engErr), errors.As(err, &cfgErr), errors.Is(err, session.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	s.log.Warn("control request failed", slog.Int("status", code), slog.String("error", err.Error()))
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
