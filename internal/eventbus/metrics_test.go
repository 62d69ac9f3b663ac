package eventbus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowcore/chatflow/internal/domain"
	"github.com/flowcore/chatflow/internal/eventbus"
)

func TestMetricsSubscriber_TracksLifecycle(t *testing.T) {
	m := eventbus.NewMetricsSubscriber()
	ctx := context.Background()

	m.Handle(ctx, newEvent(domain.EventStarted))
	m.Handle(ctx, newEvent(domain.EventTokenUsage))

	usage := newEvent(domain.EventTokenUsage)
	usage.Data = map[string]any{"total_tokens": 42}
	m.Handle(ctx, usage)

	completed := newEvent(domain.EventExecutionCompleted)
	completed.Data = map[string]any{"cost": 0.5}
	m.Handle(ctx, completed)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.TotalExecutions)
	assert.Equal(t, int64(0), snap.Running)
	assert.Equal(t, int64(1), snap.Completed)
	assert.Equal(t, int64(42), snap.TotalTokens)
	assert.Equal(t, 0.5, snap.TotalCost)
}

func TestMetricsSubscriber_TracksFailures(t *testing.T) {
	m := eventbus.NewMetricsSubscriber()
	ctx := context.Background()

	m.Handle(ctx, newEvent(domain.EventStarted))
	m.Handle(ctx, newEvent(domain.EventExecutionFailed))

	snap := m.Snapshot()
	assert.Equal(t, int64(0), snap.Running)
	assert.Equal(t, int64(1), snap.Failed)
}
