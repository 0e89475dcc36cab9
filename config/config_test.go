package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_defaults(t *testing.T) {
	t.Setenv("GO_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.CredentialTTL)
	assert.Equal(t, 10*time.Second, cfg.VerifyTimeout)
	assert.Equal(t, cfg.CredentialTTL, cfg.SweepInterval, "sweep interval defaults to the TTL")
	assert.Equal(t, 7*24*time.Hour, cfg.InviteTTL)
	assert.Equal(t, "flowpay", cfg.DefaultGateway)
}

func TestLoad_overrides(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("CREDENTIAL_TTL", "1m")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.CredentialTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_httpProviderRequiresURL(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("IDENTITY_PROVIDER", "http")

	_, err := Load()
	require.Error(t, err)
}
