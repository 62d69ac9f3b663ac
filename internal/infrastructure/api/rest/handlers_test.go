package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/chatflow/internal/domain"
	"github.com/flowcore/chatflow/internal/infrastructure/api/rest"
)

func TestHandleExecute_RequiresAGraphVariant(t *testing.T) {
	srv := newTestServer(rest.ServerConfig{})
	body, _ := json.Marshal(map[string]any{"user_id": "u1", "input_message": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExecute_InlineGraphRuns(t *testing.T) {
	srv := newTestServer(rest.ServerConfig{})
	body, _ := json.Marshal(map[string]any{
		"user_id":       "u1",
		"input_message": "hi",
		"nodes": []domain.NodeSpec{
			{ID: "start", Kind: domain.NodeKindStart},
			{ID: "end", Kind: domain.NodeKindEnd},
		},
		"edges": []domain.EdgeSpec{
			{ID: "e1", Source: "start", Target: "end", Kind: domain.EdgeKindDefault},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.ExecutionResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.NotEmpty(t, result.ExecutionID)
}

func TestHandleListTemplates_NilStoreReturnsEmptyList(t *testing.T) {
	srv := newTestServer(rest.ServerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var templates []domain.WorkflowTemplate
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&templates))
	assert.Empty(t, templates)
}
