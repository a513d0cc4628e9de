// Package config provides centralized configuration management for astroproxy.
//
// Precedence, lowest first: built-in defaults, the YAML config file,
// variables from .env files, process environment (ASTROPROXY_ prefix,
// dots become underscores). BLOOM_API_KEY is honored for the upstream
// credential.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// AppName names config, data and binary paths.
	AppName = "astroproxy"

	// EnvPrefix is prepended to every environment override.
	EnvPrefix = "ASTROPROXY"

	// LegacyTokenEnv is the credential variable used by existing installs.
	LegacyTokenEnv = "BLOOM_API_KEY"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex

	validate = validator.New()
)

// SetDefaults registers every known key on v. AutomaticEnv only resolves
// keys viper already knows about, so each setting needs a default here.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 64<<10)
	v.SetDefault("server.admin_token", "")

	// Upstream defaults
	v.SetDefault("upstream.base_url", "https://api.bloom.be")
	v.SetDefault("upstream.path", "/astro/1.0/horoscope")
	v.SetDefault("upstream.token", "")
	v.SetDefault("upstream.timeout", "20s")
	v.SetDefault("upstream.site_url", "")

	// Gate defaults
	v.SetDefault("gate.allowed_origins", []string{})
	v.SetDefault("gate.token_secret", "")
	v.SetDefault("gate.token_ttl", "12h")
	v.SetDefault("gate.trusted_proxies", []string{})
	v.SetDefault("gate.client_ip_headers", []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"})
	v.SetDefault("gate.trust_all_proxies", false)
	v.SetDefault("gate.session_cookie", "aw_sid")

	// Rate limit defaults
	v.SetDefault("rate_limit.limit", 20)
	v.SetDefault("rate_limit.window", "10m")
	v.SetDefault("rate_limit.backend", "memory")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "astroproxy:rl:")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
}

// BindEnv wires environment overrides into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("upstream.token", EnvPrefix+"_UPSTREAM_TOKEN", LegacyTokenEnv)
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are skipped; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load decodes and validates the configuration held by v.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.RateLimit.Backend == "redis" && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("invalid config: redis.addr is required when rate_limit.backend is redis")
	}
	if cfg.RateLimit.Backend == "libsql" && strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		return errors.New("invalid config: store.path or store.url is required when rate_limit.backend is libsql")
	}
	return nil
}

func normalize(cfg *Config) {
	cfg.Upstream.Token = strings.TrimSpace(cfg.Upstream.Token)
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Profile = strings.ToLower(strings.TrimSpace(cfg.Logging.Profile))
	cfg.Gate.AllowedOrigins = compact(cfg.Gate.AllowedOrigins)
	cfg.Gate.TrustedProxies = compact(cfg.Gate.TrustedProxies)
	cfg.Gate.ClientIPHeaders = compact(cfg.Gate.ClientIPHeaders)
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultConfigDir returns the XDG-compliant config directory for the app.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
