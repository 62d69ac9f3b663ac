package eventbus_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/chatflow/internal/domain"
	"github.com/flowcore/chatflow/internal/eventbus"
)

func TestStreamSubscriber_DeliversToWatchingExecutionOnly(t *testing.T) {
	sub := eventbus.NewStreamSubscriber(zerolog.Nop())
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		unregister := sub.Register(conn, "exec-1")
		defer unregister()
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return sub.WatcherCount("exec-1") == 1 }, time.Second, 10*time.Millisecond)

	sub.Handle(context.Background(), newEvent(domain.EventStarted))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "STARTED", msg["type"])
	require.Equal(t, "exec-1", msg["execution_id"])
}

func TestStreamSubscriber_IgnoresOtherExecutions(t *testing.T) {
	sub := eventbus.NewStreamSubscriber(zerolog.Nop())
	require.Equal(t, 0, sub.WatcherCount("unknown"))
	sub.Handle(context.Background(), newEvent(domain.EventStarted))
}
