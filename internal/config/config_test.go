package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, 6144, cfg.TokenCacheSize)
	assert.Equal(t, 1024, cfg.UserCacheSize)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 60*24*time.Hour, cfg.TokenRetention)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 1024, cfg.SweepBatchSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTH_HTTP_PORT", "9999")
	t.Setenv("TOKEN_CACHE_SIZE", "128")
	t.Setenv("CACHE_TTL", "1h")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.HTTPPort)
	assert.Equal(t, 128, cfg.TokenCacheSize)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("AUTH_HTTP_PORT", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidCacheSize(t *testing.T) {
	t.Setenv("USER_CACHE_SIZE", "0")

	_, err := Load()
	assert.Error(t, err)
}
