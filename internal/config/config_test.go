package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbenek/sitegate/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_PASSWORD", "db-password")
	t.Setenv("ADMIN_AUTH_SECRET", "admin-secret-0123456789abcdef")
	t.Setenv("SITE_AUTH_SECRET", "site-secret-0123456789abcdef")
	t.Setenv("CLIENT_APP_AUTH_SECRET", "client-secret-0123456789abcd")
	t.Setenv("CLIENT_APP_API_KEY", "api-key-0123456789abcdefghij")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 24*time.Hour, cfg.Auth.BaseTokenUnit)
	assert.Equal(t, 5, cfg.Auth.MaxConsecutiveFailures)
	assert.Equal(t, 15*time.Minute, cfg.Auth.LookbackWindow)
	assert.Equal(t, 5*time.Minute, cfg.Auth.BaseLockout)
	assert.Equal(t, time.Hour, cfg.Auth.MaxLockout)
	assert.Equal(t, "https://ipwho.is", cfg.Geo.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Geo.Timeout)
	assert.Empty(t, cfg.Redis.Addr, "verification cache is off by default")
}

func TestLoad_MissingDatabasePassword(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_PASSWORD", "")

	_, err := config.Load()
	assert.ErrorContains(t, err, "DB_PASSWORD")
}

func TestLoad_MissingSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SITE_AUTH_SECRET", "")

	_, err := config.Load()
	assert.ErrorContains(t, err, "SITE_AUTH_SECRET")
}

func TestLoad_ShortSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_AUTH_SECRET", "tooshort")

	_, err := config.Load()
	assert.ErrorContains(t, err, "ADMIN_AUTH_SECRET")
}

func TestLoad_ProductionRequiresLongerSecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENV", "production")
	// 28 characters: fine in development, too short for production.
	t.Setenv("ADMIN_AUTH_SECRET", "0123456789abcdef0123456789ab")

	_, err := config.Load()
	assert.ErrorContains(t, err, "at least 32")
}

func TestLoad_RejectsSharedSecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SITE_AUTH_SECRET", "admin-secret-0123456789abcdef")

	_, err := config.Load()
	assert.ErrorContains(t, err, "distinct")
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("BASE_TOKEN_UNIT", "1h")
	t.Setenv("MAX_CONSECUTIVE_FAILURES", "3")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("VERIFY_CACHE_TTL", "10s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Auth.BaseTokenUnit)
	assert.Equal(t, 3, cfg.Auth.MaxConsecutiveFailures)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Second, cfg.Redis.CacheTTL)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "sitegate",
		Password: "pw",
		Name:     "sitegate",
		SSLMode:  "require",
	}
	assert.Equal(t, "host=db.internal port=5433 user=sitegate password=pw dbname=sitegate sslmode=require", cfg.DSN())
}
