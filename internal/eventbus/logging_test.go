package eventbus_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/chatflow/internal/domain"
	"github.com/flowcore/chatflow/internal/eventbus"
)

func TestLoggingSubscriber_CapsEntriesPerExecution(t *testing.T) {
	s := eventbus.NewLoggingSubscriber(zerolog.Nop(), 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Handle(ctx, newEvent(domain.EventNodeExecuted))
	}

	logs := s.Logs("exec-1")
	require.Len(t, logs, 3)
}

func TestLoggingSubscriber_ClearRemovesExecution(t *testing.T) {
	s := eventbus.NewLoggingSubscriber(zerolog.Nop(), 10)
	ctx := context.Background()

	s.Handle(ctx, newEvent(domain.EventStarted))
	require.Len(t, s.Logs("exec-1"), 1)

	s.Clear("exec-1")
	assert.Empty(t, s.Logs("exec-1"))
}
