package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("AccessTokenTTL converts minutes to duration", func(t *testing.T) {
		cfg := &Config{AccessTokenTTLMins: 15}
		assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL())
	})

	t.Run("RefreshTokenTTL converts days to duration", func(t *testing.T) {
		cfg := &Config{RefreshTokenTTLDays: 7}
		assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL())
	})

	t.Run("StalePresenceThreshold converts minutes to duration", func(t *testing.T) {
		cfg := &Config{StalePresenceMins: 10}
		assert.Equal(t, 10*time.Minute, cfg.StalePresenceThreshold())
	})
}

func TestLoad(t *testing.T) {
	envKeys := []string{
		"PORT", "DATABASE_URL", "REDIS_URL",
		"ACCESS_TOKEN_SECRET", "REFRESH_TOKEN_SECRET",
		"ACCESS_TOKEN_TTL_MINUTES", "REFRESH_TOKEN_TTL_DAYS",
		"RATE_LIMIT_PER_MIN", "STALE_PRESENCE_MINUTES", "LOG_LEVEL",
	}

	originalEnv := map[string]string{}
	for _, k := range envKeys {
		originalEnv[k] = os.Getenv(k)
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("ACCESS_TOKEN_SECRET", "access-secret-for-tests")
		os.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret-for-tests")
		os.Unsetenv("PORT")
		os.Unsetenv("ACCESS_TOKEN_TTL_MINUTES")
		os.Unsetenv("REFRESH_TOKEN_TTL_DAYS")
		os.Unsetenv("RATE_LIMIT_PER_MIN")
		os.Unsetenv("STALE_PRESENCE_MINUTES")
		os.Unsetenv("LOG_LEVEL")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
		assert.Equal(t, 15, cfg.AccessTokenTTLMins)
		assert.Equal(t, 7, cfg.RefreshTokenTTLDays)
		assert.Equal(t, 120, cfg.RateLimitPerMin)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("fails when required values are missing", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabaseURL:        "postgres://localhost/test",
			RedisURL:           "rediss://localhost:6379",
			AccessTokenSecret:  strings.Repeat("a", 40),
			RefreshTokenSecret: strings.Repeat("b", 40),
		}
	}

	t.Run("accepts strong distinct secrets", func(t *testing.T) {
		cfg := base()
		assert.NoError(t, cfg.Validate(true))
	})

	t.Run("rejects identical access and refresh secrets", func(t *testing.T) {
		cfg := base()
		cfg.RefreshTokenSecret = cfg.AccessTokenSecret
		err := cfg.Validate(false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be different")
	})

	t.Run("rejects short secrets in production", func(t *testing.T) {
		cfg := base()
		cfg.AccessTokenSecret = "short"
		assert.Error(t, cfg.Validate(true))
	})

	t.Run("rejects known weak secrets in production", func(t *testing.T) {
		cfg := base()
		cfg.RefreshTokenSecret = "change-me"
		assert.Error(t, cfg.Validate(true))
	})

	t.Run("allows short secrets outside production", func(t *testing.T) {
		cfg := base()
		cfg.AccessTokenSecret = "dev-a"
		cfg.RefreshTokenSecret = "dev-b"
		assert.NoError(t, cfg.Validate(false))
	})
}
