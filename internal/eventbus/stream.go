package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/flowcore/chatflow/internal/domain"
)

const (
	streamSendBuffer = 32
	streamWriteWait  = 10 * time.Second
)

// streamMessage is the wire shape pushed to a subscribed client, grounded on
// internal/infrastructure/websocket/message.go's WSEvent but trimmed to the
// fields C8 actually needs — a WorkflowEvent carries its own Data payload,
// so there is no node-specific/variable-specific field fan-out to mirror.
type streamMessage struct {
	Type        string         `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	Data        map[string]any `json:"data,omitempty"`
}

// streamClient is one live WebSocket connection watching a single
// execution. Writes happen only on writePump, reading off send — the
// teacher's client.go discipline for avoiding concurrent writes on the
// same *websocket.Conn.
type streamClient struct {
	conn        *websocket.Conn
	send        chan streamMessage
	executionID string
}

// StreamSubscriber fans out workflow events to WebSocket clients watching a
// given execution. It is adapted from internal/infrastructure/websocket's
// Hub/Client pair, narrowed to execution-id-only indexing: spec.md §4.8
// only calls for per-execution streaming, not the teacher's additional
// per-user/per-workflow fan-out, so byUserID/byWorkflowID have no home
// here and are dropped rather than carried as dead code.
type StreamSubscriber struct {
	mu      sync.RWMutex
	clients map[string]map[*streamClient]bool // executionID -> clients
	logger  zerolog.Logger
}

// NewStreamSubscriber returns an empty StreamSubscriber.
func NewStreamSubscriber(logger zerolog.Logger) *StreamSubscriber {
	return &StreamSubscriber{
		clients: make(map[string]map[*streamClient]bool),
		logger:  logger.With().Str("subscriber", "stream").Logger(),
	}
}

// Register attaches conn as a watcher of executionID and starts its write
// pump in a new goroutine. The returned func unregisters and closes the
// client's send channel; callers should defer it from the HTTP handler
// that owns the upgraded connection.
func (s *StreamSubscriber) Register(conn *websocket.Conn, executionID string) (unregister func()) {
	client := &streamClient{conn: conn, send: make(chan streamMessage, streamSendBuffer), executionID: executionID}

	s.mu.Lock()
	if s.clients[executionID] == nil {
		s.clients[executionID] = make(map[*streamClient]bool)
	}
	s.clients[executionID][client] = true
	s.mu.Unlock()

	go s.writePump(client)

	return func() {
		s.mu.Lock()
		if set, ok := s.clients[executionID]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(s.clients, executionID)
			}
		}
		s.mu.Unlock()
		close(client.send)
	}
}

func (s *StreamSubscriber) writePump(client *streamClient) {
	for msg := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := client.conn.WriteJSON(msg); err != nil {
			s.logger.Debug().Err(err).Str("execution_id", client.executionID).Msg("stream write failed, dropping client")
			return
		}
	}
}

func (s *StreamSubscriber) Handle(ctx context.Context, event domain.WorkflowEvent) {
	s.mu.RLock()
	targets := s.clients[event.ExecutionID]
	clients := make([]*streamClient, 0, len(targets))
	for c := range targets {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	msg := streamMessage{
		Type:        event.Type.String(),
		Timestamp:   event.Timestamp,
		ExecutionID: event.ExecutionID,
		Data:        event.Data,
	}

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			s.logger.Warn().Str("execution_id", event.ExecutionID).Msg("client send buffer full, dropping message")
		}
	}
}

// WatcherCount returns how many clients are currently watching executionID.
func (s *StreamSubscriber) WatcherCount(executionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[executionID])
}
