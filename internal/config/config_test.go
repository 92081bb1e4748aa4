package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		JWTSecret:           "secret",
		SessionSecret:       "session-secret",
		DatabaseDriver:      "sqlite",
		DatabaseDSN:         ":memory:",
		CreditPricePerK:     1,
		StreamChunkEstimate: 2,
		PollingInterval:     5,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:     "missing jwt secret",
			mutate:   func(c *Config) { c.JWTSecret = "" },
			errorMsg: "JWT_SECRET",
		},
		{
			name:     "missing session secret",
			mutate:   func(c *Config) { c.SessionSecret = "" },
			errorMsg: "SESSION_SECRET",
		},
		{
			name:     "unknown driver",
			mutate:   func(c *Config) { c.DatabaseDriver = "oracle" },
			errorMsg: "invalid DATABASE_DRIVER",
		},
		{
			name:     "missing dsn",
			mutate:   func(c *Config) { c.DatabaseDSN = "" },
			errorMsg: "DATABASE_DSN is required",
		},
		{
			name:     "zero price",
			mutate:   func(c *Config) { c.CreditPricePerK = 0 },
			errorMsg: "CREDIT_PRICE_PER_K",
		},
		{
			name:     "zero chunk estimate",
			mutate:   func(c *Config) { c.StreamChunkEstimate = 0 },
			errorMsg: "STREAM_CHUNK_ESTIMATE",
		},
		{
			name:     "negative polling interval",
			mutate:   func(c *Config) { c.PollingInterval = -1 },
			errorMsg: "DEVICE_POLLING_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenExpiration)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenExpiration)
	assert.Equal(t, 10*time.Minute, cfg.DeviceCodeExpiration)
	assert.Equal(t, 5, cfg.PollingInterval)
	assert.Equal(t, 1, cfg.CreditPricePerK)
	assert.Equal(t, int64(100), cfg.SignupBonusCredits)
	assert.Equal(t, 2, cfg.StreamChunkEstimate)
	assert.Equal(t, CacheModeMemory, cfg.CacheMode)
	assert.Equal(t, "memory", cfg.RateLimitStore)
	assert.False(t, cfg.IsProduction)

	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CREDIT_PRICE_PER_K", "3")
	t.Setenv("STREAM_CHUNK_ESTIMATE", "5")
	t.Setenv("UPSTREAM_TIMEOUT", "90s")
	t.Setenv("OPERATOR_BYPASS_CREDITS", "true")
	t.Setenv("ENVIRONMENT", "production")

	cfg := Load()

	assert.Equal(t, 3, cfg.CreditPricePerK)
	assert.Equal(t, 5, cfg.StreamChunkEstimate)
	assert.Equal(t, 90*time.Second, cfg.UpstreamTimeout)
	assert.True(t, cfg.OperatorBypassCredits)
	assert.True(t, cfg.IsProduction)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CREDIT_PRICE_PER_K", "not-a-number")
	t.Setenv("UPSTREAM_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 1, cfg.CreditPricePerK)
	assert.Equal(t, 60*time.Second, cfg.UpstreamTimeout)
}

func TestLoadPostgresRequiresExplicitDSN(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")

	cfg := Load()

	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Empty(t, cfg.DatabaseDSN)
	assert.Error(t, cfg.Validate())
}
