package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MAILGUARD_JWT_SECRET", strings.Repeat("s", 32))
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TokenTTL)
	assert.Equal(t, "memory", cfg.Engine.Backend)
	assert.Equal(t, 120, cfg.RateLimit.PerPrincipalLimit)
	assert.Equal(t, time.Minute, cfg.RateLimit.PerPrincipalWindow)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAILGUARD_SERVER_PORT", "9090")
	t.Setenv("MAILGUARD_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAILGUARD_ENGINE_BACKEND", "redis")
	t.Setenv("MAILGUARD_POP3_ADDRESS", "mail.example.com:995")
	t.Setenv("MAILGUARD_POP3_USE_TLS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "redis", cfg.Engine.Backend)
	assert.Equal(t, "mail.example.com:995", cfg.POP3.Address)
	assert.True(t, cfg.POP3.UseTLS)
}

func TestLoad_RejectsDefaultSecret(t *testing.T) {
	t.Setenv("MAILGUARD_JWT_SECRET", "change-me-in-production")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECURITY ERROR")
}

func TestLoad_RejectsShortSecret(t *testing.T) {
	t.Setenv("MAILGUARD_JWT_SECRET", "short")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoad_RejectsUnknownEngineBackend(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAILGUARD_ENGINE_BACKEND", "etcd")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.backend")
}
