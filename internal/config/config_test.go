package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("LOCATION_RADIUS_M", "")
	t.Setenv("ACCESS_TTL", "")

	cfg := Load()
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 50.0, cfg.LocationRadiusM)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.False(t, cfg.Production())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOCATION_RADIUS_M", "75.5")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("REFRESH_TTL", "2h")
	t.Setenv("STORE_BACKEND", "memory")

	cfg := Load()
	assert.True(t, cfg.Production())
	assert.Equal(t, 75.5, cfg.LocationRadiusM)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, 2*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, "memory", cfg.StoreBackend)
}

func TestLoadInvalidFallsBack(t *testing.T) {
	t.Setenv("LOCATION_RADIUS_M", "-3")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("ACCESS_TTL", "soon")
	t.Setenv("APP_ENV", "")

	cfg := Load()
	assert.Equal(t, 50.0, cfg.LocationRadiusM)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Len(t, cfg.Warnings, 3)
	assert.Contains(t, cfg.Warnings[0], "RATE_LIMIT_PER_MIN")
	assert.Contains(t, cfg.Warnings[1], "ACCESS_TTL")
	assert.Contains(t, cfg.Warnings[2], "LOCATION_RADIUS_M")
}

func TestLogger(t *testing.T) {
	cfg := App{LogLevel: "debug"}
	logger, err := cfg.Logger()
	require.NoError(t, err)
	require.NotNil(t, logger)

	cfg.Warnings = []string{"invalid int for RATE_LIMIT_PER_MIN, using fallback 120"}
	logger, err = cfg.Logger()
	require.NoError(t, err)
	require.NotNil(t, logger)

	cfg.LogLevel = "chatty"
	_, err = cfg.Logger()
	require.Error(t, err)
}
