package rest_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/flowcore/chatflow/internal/engine"
	"github.com/flowcore/chatflow/internal/infrastructure/api/rest"
)

func newTestServer(cfg rest.ServerConfig) *rest.Server {
	return rest.NewServer(engine.New(), nil, nil, zerolog.Nop(), cfg)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(rest.ServerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ReadyWithoutStore(t *testing.T) {
	srv := newTestServer(rest.ServerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_StreamDisabledWithoutSubscriber(t *testing.T) {
	srv := newTestServer(rest.ServerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions/exec-1/stream", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AuthMiddlewareRejectsMissingKey(t *testing.T) {
	srv := newTestServer(rest.ServerConfig{APIKeys: []string{"secret"}})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_AuthMiddlewareAcceptsValidKey(t *testing.T) {
	srv := newTestServer(rest.ServerConfig{APIKeys: []string{"secret"}})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ExecuteWithEmptyBodyReturnsBadRequest(t *testing.T) {
	srv := newTestServer(rest.ServerConfig{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", nil)
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		srv.ServeHTTP(rec, req)
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
