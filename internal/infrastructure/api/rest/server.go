// Package rest exposes the Execution Engine (C7) over HTTP, grounded on
// the teacher's internal/infrastructure/api/rest package (ServeMux +
// middleware chain structure) retargeted from the teacher's
// Workflow/Node/Edge CRUD surface to chatflow's single execute endpoint,
// since SPEC_FULL.md's public surface is "submit a chat turn, get back an
// ExecutionResult" rather than a workflow-authoring API.
package rest

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowcore/chatflow/internal/engine"
	"github.com/flowcore/chatflow/internal/eventbus"
	"github.com/flowcore/chatflow/internal/storage"
)

// ServerConfig carries the transport-level knobs main.go exposes as flags.
type ServerConfig struct {
	EnableCORS      bool
	EnableRateLimit bool
	RateLimitMax    int
	RateLimitWindow time.Duration
	APIKeys         []string
	// CallerSecret verifies the JWT in an execution request's
	// Authorization header into a validator.Caller, per spec.md §7's
	// DecodeCaller handshake. Empty disables decoding — every request
	// executes as an empty Caller, which is allowed no tools.
	CallerSecret string
}

// Server is the chatflow HTTP API: one engine.Engine, one storage.Store for
// template/definition lookups, fronted by a ServeMux.
type Server struct {
	engine *engine.Engine
	store  *storage.Store
	stream *eventbus.StreamSubscriber
	logger zerolog.Logger
	cfg    ServerConfig
	mux    *http.ServeMux
}

// NewServer wires routes and the middleware chain around eng/store. stream
// may be nil, in which case the live-event endpoint responds 404.
func NewServer(eng *engine.Engine, store *storage.Store, stream *eventbus.StreamSubscriber, logger zerolog.Logger, cfg ServerConfig) *Server {
	s := &Server{engine: eng, store: store, stream: stream, logger: logger, cfg: cfg, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /api/v1/templates", s.handleListTemplates)
	s.mux.HandleFunc("POST /api/v1/executions", s.handleExecute)
	s.mux.HandleFunc("GET /api/v1/executions/{id}/stream", s.handleStream)
}

// ServeHTTP implements http.Handler, applying the middleware chain in a
// fixed order: recovery (outermost, catches panics from everything inside)
// -> logging -> content type -> CORS -> rate limit -> auth -> routing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var h http.Handler = s.mux

	h = newAuthMiddleware(s.cfg.APIKeys).middleware(h)
	if s.cfg.EnableRateLimit {
		h = newRateLimiter(s.cfg.RateLimitMax, s.cfg.RateLimitWindow).middleware(h)
	}
	if s.cfg.EnableCORS {
		h = corsMiddleware(h)
	}
	h = contentTypeMiddleware(h)
	h = loggingMiddleware(s.logger, h)
	h = recoveryMiddleware(s.logger, h)

	h.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
		return
	}
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("readiness check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
