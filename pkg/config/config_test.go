package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindara-hq/eventdesk/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("EVENTDESK_POSTGRES_URL", "postgres://localhost/eventdesk")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
	assert.Equal(t, 25, cfg.Storage.PostgresMaxConns)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("EVENTDESK_POSTGRES_URL", "postgres://db:5432/eventdesk")
	t.Setenv("EVENTDESK_PORT", "3000")
	t.Setenv("EVENTDESK_LOG_LEVEL", "debug")
	t.Setenv("EVENTDESK_READ_TIMEOUT", "5s")
	t.Setenv("EVENTDESK_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("EVENTDESK_POSTGRES_MAX_CONNS", "50")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "redis://cache:6379/0", cfg.Storage.RedisURL)
	assert.Equal(t, 50, cfg.Storage.PostgresMaxConns)
}

func TestValidate(t *testing.T) {
	t.Run("missing postgres URL", func(t *testing.T) {
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "postgres URL is required")
	})

	t.Run("port clash", func(t *testing.T) {
		t.Setenv("EVENTDESK_POSTGRES_URL", "postgres://localhost/eventdesk")
		t.Setenv("EVENTDESK_PORT", "9090")

		_, err := LoadConfig()
		assert.ErrorContains(t, err, "must be different")
	})

	t.Run("OIDC enabled without issuer", func(t *testing.T) {
		t.Setenv("EVENTDESK_POSTGRES_URL", "postgres://localhost/eventdesk")
		t.Setenv("EVENTDESK_OIDC_ENABLED", "true")

		_, err := LoadConfig()
		assert.ErrorContains(t, err, "OIDC issuer")
	})
}
