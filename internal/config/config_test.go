package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndRequired(t *testing.T) {
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "booking")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ADMIN_EMAILS", " Boss@Example.com , ,ops@example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"boss@example.com", "ops@example.com"}, cfg.AdminEmails)
	assert.Equal(t, []string{"Cat 1", "Cat 2", "Cat 3"}, cfg.SeedCategories)
	assert.False(t, cfg.EnforceCapacityFloor)
	assert.False(t, cfg.BlockDeleteWithBookings)
	assert.Equal(t, "logs/booking.log", cfg.AMQP.AuditLogPath)
	assert.True(t, cfg.IsAdminEmail("BOSS@example.com"))
	assert.False(t, cfg.IsAdminEmail("admin@admin.com"))
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "booking")
	t.Setenv("JWT_SECRET", "restored-after-test")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	c, err := LoadRateLimitConfig()
	require.NoError(t, err)
	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 5*time.Minute, c.TTL)
}

func TestCacheConfig_MethodSet(t *testing.T) {
	c := CacheConfig{Methods: []string{"get", " head ", ""}}
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, c.MethodSet())
}

func TestRedisConfig_Address(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: "6380", Addr: "x:1"}.address())
	assert.Equal(t, "x:1", RedisConfig{Addr: "x:1"}.address())
}
