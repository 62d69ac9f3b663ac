package eventbus

import (
	"container/list"
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/flowcore/chatflow/internal/domain"
)

const defaultLogCap = 200

// LogEntry is one recorded event, kept for later retrieval (e.g. a debug
// endpoint showing "what happened during execution X").
type LogEntry struct {
	Event domain.WorkflowEvent
}

// LoggingSubscriber mirrors every event into both zerolog (for operator
// visibility, matching the teacher's structured-logging convention) and a
// bounded in-memory ring per execution id, so a caller can retrieve "the
// last N events for execution X" without re-querying storage. Grounded on
// internal/infrastructure/monitoring/observer.go's LoggingObserver, which
// does the zerolog half only; the bounded per-execution ring is this
// subscriber's own addition to satisfy spec.md §4.8's "debug logs capped
// at N entries" requirement.
type LoggingSubscriber struct {
	logger zerolog.Logger
	cap    int

	mu   sync.Mutex
	logs map[string]*list.List
}

// NewLoggingSubscriber builds a subscriber capping each execution's log at
// capEntries entries (defaultLogCap if capEntries <= 0).
func NewLoggingSubscriber(logger zerolog.Logger, capEntries int) *LoggingSubscriber {
	if capEntries <= 0 {
		capEntries = defaultLogCap
	}
	return &LoggingSubscriber{
		logger: logger.With().Str("subscriber", "logging").Logger(),
		cap:    capEntries,
		logs:   make(map[string]*list.List),
	}
}

func (s *LoggingSubscriber) Handle(ctx context.Context, event domain.WorkflowEvent) {
	s.logger.Debug().
		Str("execution_id", event.ExecutionID).
		Str("event_type", event.Type.String()).
		Time("timestamp", event.Timestamp).
		Interface("data", event.Data).
		Msg("workflow event")

	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.logs[event.ExecutionID]
	if !ok {
		ring = list.New()
		s.logs[event.ExecutionID] = ring
	}
	ring.PushBack(LogEntry{Event: event})
	for ring.Len() > s.cap {
		ring.Remove(ring.Front())
	}
}

// Logs returns the retained log entries for executionID, oldest first.
func (s *LoggingSubscriber) Logs(executionID string) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.logs[executionID]
	if !ok {
		return nil
	}
	out := make([]LogEntry, 0, ring.Len())
	for el := ring.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(LogEntry))
	}
	return out
}

// Clear discards the retained log for executionID.
func (s *LoggingSubscriber) Clear(executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, executionID)
}
