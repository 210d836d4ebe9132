package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Session.SweepInterval)
	assert.Equal(t, 80, cfg.Session.DefaultCols)
	assert.Equal(t, 24, cfg.Session.DefaultRows)
	assert.Equal(t, "minimal", cfg.Sandbox.Profile)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_IDLE_TIMEOUT", "5m")
	t.Setenv("SANDBOX_PROFILE", "privileged")
	t.Setenv("SANDBOX_MEMORY_MB", "1024")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, "privileged", cfg.Sandbox.Profile)
	assert.Equal(t, int64(1024), cfg.Sandbox.MemoryMB)
}

func TestLoadDefaultsWhenUnset(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(256), cfg.Sandbox.MemoryMB)
	assert.Equal(t, int64(128), cfg.Sandbox.PidsLimit)
}
