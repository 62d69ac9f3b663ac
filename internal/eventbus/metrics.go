package eventbus

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/flowcore/chatflow/internal/domain"
)

// MetricsSubscriber keeps process-wide execution counters. Counts are kept
// in xsync.Counter (a striped counter that avoids the single cache line a
// plain int64 atomic would contend on under concurrent publish load) rather
// than the teacher's plain mutex-protected struct fields in
// internal/infrastructure/monitoring/observer.go's ObserverManager, since
// this subscriber is on the hot path of every event delivered to every
// execution in the process.
type MetricsSubscriber struct {
	totalExecutions *xsync.Counter
	running         *xsync.Counter
	completed       *xsync.Counter
	failed          *xsync.Counter
	totalTokens     *xsync.Counter
	toolCalls       *xsync.Counter

	costMu    sync.Mutex
	totalCost float64
}

// NewMetricsSubscriber returns a zeroed counter set.
func NewMetricsSubscriber() *MetricsSubscriber {
	return &MetricsSubscriber{
		totalExecutions: xsync.NewCounter(),
		running:         xsync.NewCounter(),
		completed:       xsync.NewCounter(),
		failed:          xsync.NewCounter(),
		totalTokens:     xsync.NewCounter(),
		toolCalls:       xsync.NewCounter(),
	}
}

func (m *MetricsSubscriber) Handle(ctx context.Context, event domain.WorkflowEvent) {
	switch event.Type {
	case domain.EventStarted, domain.EventExecutionStarted:
		m.totalExecutions.Inc()
		m.running.Inc()
	case domain.EventExecutionCompleted:
		m.running.Dec()
		m.completed.Inc()
		m.addCost(event)
	case domain.EventExecutionFailed:
		m.running.Dec()
		m.failed.Inc()
	case domain.EventTokenUsage:
		m.totalTokens.Add(int64(intField(event.Data, "total_tokens")))
	case domain.EventToolCalled:
		m.toolCalls.Inc()
	}
}

func (m *MetricsSubscriber) addCost(event domain.WorkflowEvent) {
	cost := floatField(event.Data, "cost")
	if cost == 0 {
		return
	}
	m.costMu.Lock()
	m.totalCost += cost
	m.costMu.Unlock()
}

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	TotalExecutions int64
	Running         int64
	Completed       int64
	Failed          int64
	TotalTokens     int64
	ToolCalls       int64
	TotalCost       float64
}

// Snapshot returns the current counter values.
func (m *MetricsSubscriber) Snapshot() Snapshot {
	m.costMu.Lock()
	cost := m.totalCost
	m.costMu.Unlock()

	return Snapshot{
		TotalExecutions: m.totalExecutions.Value(),
		Running:         m.running.Value(),
		Completed:       m.completed.Value(),
		Failed:          m.failed.Value(),
		TotalTokens:     m.totalTokens.Value(),
		ToolCalls:       m.toolCalls.Value(),
		TotalCost:       cost,
	}
}
