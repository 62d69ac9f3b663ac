package anthropicchat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/chatflow/internal/domain"
	"github.com/flowcore/chatflow/internal/provider"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	m, err := New(Config{APIKey: "test-key", BaseURL: server.URL, MaxRetries: 1})
	require.NoError(t, err)
	return m
}

func TestComplete_ExtractsTextAndUsage(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-sonnet-4-20250514",
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": "hello there"},
			},
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	})

	resp, err := m.Complete(context.Background(), provider.CompletionRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Message.Content)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestComplete_ExtractsToolUse(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_2",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-sonnet-4-20250514",
			"stop_reason": "tool_use",
			"content": []map[string]any{
				{"type": "tool_use", "id": "toolu_1", "name": "search", "input": map[string]any{"query": "weather"}},
			},
			"usage": map[string]any{"input_tokens": 8, "output_tokens": 3},
		})
	})

	resp, err := m.Complete(context.Background(), provider.CompletionRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "search the weather"}},
		Tools: []provider.ToolBinding{
			{Name: "search", Description: "search the web", Parameters: map[string]any{"type": "object"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "search", resp.Message.ToolCalls[0].Name)
	assert.Equal(t, "weather", resp.Message.ToolCalls[0].Arguments["query"])
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(errAssert("429 too many requests")))
	assert.True(t, isRetryable(errAssert("503 service unavailable")))
	assert.False(t, isRetryable(errAssert("400 bad request")))
}

type errAssert string

func (e errAssert) Error() string { return string(e) }
