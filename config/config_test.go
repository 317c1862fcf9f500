package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HARBOR_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "harbor.db", cfg.DBPath)
	assert.Equal(t, 1024, cfg.ReadBufferSize)

	_, enabled := cfg.Presence()
	assert.False(t, enabled, "presence is disabled without a redis address")
}

func TestPresenceConfig(t *testing.T) {
	t.Setenv("HARBOR_JWT_SECRET", "test-secret")
	t.Setenv("HARBOR_REDIS_ADDR", "localhost:6379")
	t.Setenv("HARBOR_REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	redisCfg, enabled := cfg.Presence()
	require.True(t, enabled)
	assert.Equal(t, "localhost:6379", redisCfg.Addr)
	assert.Equal(t, 3, redisCfg.DB)
	assert.Equal(t, "harbor:presence:", redisCfg.Prefix)
}
