package rest

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/flowcore/chatflow/internal/validator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Stream connections carry no cookies/credentials the browser same-origin
	// policy protects; the execution id in the path is the only secret, and
	// bearerToken below gates that.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades to a WebSocket and registers the connection with
// the stream subscriber to watch one execution's events (spec.md §4.8).
// Token extraction order is adapted from the teacher's
// internal/infrastructure/websocket/auth.go JWTAuth.Authenticate: header
// first, then query param, since browsers can't set custom headers on the
// request that opens a WebSocket handshake.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		s.respondError(w, "event streaming is not enabled", http.StatusNotFound)
		return
	}

	executionID := r.PathValue("id")
	if executionID == "" {
		s.respondError(w, "execution id is required", http.StatusBadRequest)
		return
	}

	if s.cfg.CallerSecret != "" {
		if _, err := validator.DecodeCaller(bearerToken(r), s.cfg.CallerSecret); err != nil {
			s.respondError(w, "invalid or missing token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	unregister := s.stream.Register(conn, executionID)
	defer unregister()
	defer conn.Close()

	// Drain and discard client frames (close/ping) until the connection
	// drops; this handler never reads application data from the client.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
