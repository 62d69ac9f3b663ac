package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/chatflow/internal/infrastructure/config"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "DATABASE_DSN", "CONFIG_PATH", "ENGINE_EXECUTION_TIMEOUT", "ENGINE_NODE_TIMEOUT"} {
		os.Unsetenv(key)
	}

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.Equal(t, 120*time.Second, cfg.Engine.ExecutionTimeout)
	assert.Equal(t, 60*time.Second, cfg.Engine.NodeTimeout)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 8080, cfg.GetPortInt())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ENGINE_NODE_TIMEOUT", "5s")

	cfg := config.Load()

	require.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Engine.NodeTimeout)
}
