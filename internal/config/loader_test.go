package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := Load(newViper(t))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.EqualValues(t, 64<<10, cfg.Server.MaxBodyBytes)

		// Verify upstream defaults
		assert.Equal(t, "https://api.bloom.be", cfg.Upstream.BaseURL)
		assert.Equal(t, "/astro/1.0/horoscope", cfg.Upstream.Path)
		assert.Equal(t, 20*time.Second, cfg.Upstream.Timeout)

		// Verify gate defaults
		assert.Equal(t, 12*time.Hour, cfg.Gate.TokenTTL)
		assert.Equal(t, "aw_sid", cfg.Gate.SessionCookie)
		assert.Equal(t, []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}, cfg.Gate.ClientIPHeaders)
		assert.False(t, cfg.Gate.TrustAllProxies)
		assert.Empty(t, cfg.Gate.AllowedOrigins)

		// Verify rate limit defaults
		assert.Equal(t, 20, cfg.RateLimit.Limit)
		assert.Equal(t, 10*time.Minute, cfg.RateLimit.Window)
		assert.Equal(t, "memory", cfg.RateLimit.Backend)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("astroproxy"), "astroproxy.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
		assert.False(t, cfg.Debug.Enabled)

		assert.Same(t, cfg, GetConfig())
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("ASTROPROXY_SERVER_PORT", "9999")
		t.Setenv("ASTROPROXY_RATE_LIMIT_LIMIT", "5")
		t.Setenv("ASTROPROXY_GATE_ALLOWED_ORIGINS", "https://a.example, https://b.example")
		t.Setenv("ASTROPROXY_GATE_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.1")
		t.Setenv("ASTROPROXY_UPSTREAM_TIMEOUT", "5s")
		t.Setenv("ASTROPROXY_DEBUG_ENABLED", "true")
		t.Setenv("ASTROPROXY_LOGGING_PROFILE", " Simple ")
		t.Setenv("ASTROPROXY_HEALTH_ENABLED", "false")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)
		assert.Equal(t, 9999, cfg.Server.Port)
		assert.Equal(t, 5, cfg.RateLimit.Limit)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Gate.AllowedOrigins)
		assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.Gate.TrustedProxies)
		assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
		assert.True(t, cfg.Debug.Enabled)
		assert.Equal(t, "simple", cfg.Logging.Profile)
		assert.False(t, cfg.Health.Enabled)
	})

	t.Run("LegacyTokenVariable", func(t *testing.T) {
		t.Setenv("BLOOM_API_KEY", " legacy-token ")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)
		assert.Equal(t, "legacy-token", cfg.Upstream.Token)
	})

	t.Run("PrefixedTokenWins", func(t *testing.T) {
		t.Setenv("BLOOM_API_KEY", "legacy-token")
		t.Setenv("ASTROPROXY_UPSTREAM_TOKEN", "new-token")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)
		assert.Equal(t, "new-token", cfg.Upstream.Token)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
			"upstream:",
			"  base_url: http://localhost:9000",
			"rate_limit:",
			"  backend: redis",
			"redis:",
			"  addr: redis:6379",
			"  db: 2",
		}, "\n")), 0o600))

		v := newViper(t)
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9000", cfg.Upstream.BaseURL)
		assert.Equal(t, "redis", cfg.RateLimit.Backend)
		assert.Equal(t, "redis:6379", cfg.Redis.Addr)
		assert.Equal(t, 2, cfg.Redis.DB)
	})
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"ASTROPROXY_RATE_LIMIT_LIMIT":     "0",
		"ASTROPROXY_RATE_LIMIT_BACKEND":   "etcd",
		"ASTROPROXY_UPSTREAM_BASE_URL":    "not a url",
		"ASTROPROXY_GATE_TRUSTED_PROXIES": "proxy.internal",
		"ASTROPROXY_GATE_ALLOWED_ORIGINS": "example",
		"ASTROPROXY_LOGGING_LEVEL":        "loud",
		"ASTROPROXY_LOGGING_PROFILE":      "enterprise",
		"ASTROPROXY_SERVER_PORT":          "70000",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load(newViper(t))
			require.Error(t, err)
		})
	}
}

func TestValidateRedisBackendNeedsAddr(t *testing.T) {
	t.Setenv("ASTROPROXY_RATE_LIMIT_BACKEND", "redis")
	t.Setenv("ASTROPROXY_REDIS_ADDR", " ")

	_, err := Load(newViper(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis.addr")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ASTROPROXY_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("ASTROPROXY_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("ASTROPROXY_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("ASTROPROXY_TEST_DOTENV"))
}
