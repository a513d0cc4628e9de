package config

import "time"

// Config represents the complete application configuration. Values come
// from built-in defaults, an optional YAML file, .env files and ASTROPROXY_
// environment variables, in increasing order of precedence.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Gate      GateConfig      `mapstructure:"gate"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// MaxBodyBytes caps horoscope request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"gt=0"`
	// AdminToken enables the bearer-protected signal endpoint.
	AdminToken string `mapstructure:"admin_token"`
}

// UpstreamConfig describes the astrology API.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Path    string        `mapstructure:"path" validate:"required,startswith=/"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// SiteURL is advertised in the User-Agent.
	SiteURL string `mapstructure:"site_url" validate:"omitempty,url"`
}

// GateConfig controls transport, origin and token checks.
type GateConfig struct {
	AllowedOrigins []string      `mapstructure:"allowed_origins" validate:"dive,url"`
	TokenSecret    string        `mapstructure:"token_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
	TrustedProxies []string      `mapstructure:"trusted_proxies" validate:"dive,cidr|ip"`
	// ClientIPHeaders is the lookup order for forwarded client addresses.
	ClientIPHeaders []string `mapstructure:"client_ip_headers"`
	// TrustAllProxies honors forwarded headers from any peer.
	// Spoofable; only for deployments behind a proxy that strips them.
	TrustAllProxies bool   `mapstructure:"trust_all_proxies"`
	SessionCookie   string `mapstructure:"session_cookie" validate:"required"`
}

// RateLimitConfig selects the per-client limit and where windows live.
type RateLimitConfig struct {
	Limit   int           `mapstructure:"limit" validate:"min=1"`
	Window  time.Duration `mapstructure:"window" validate:"gt=0"`
	Backend string        `mapstructure:"backend" validate:"oneof=memory redis libsql"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RedisConfig contains the shared window store connection.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"min=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`

	// Profile selects the server log shape: structured (JSON) or simple
	// (console text)
	Profile string `mapstructure:"profile" validate:"omitempty,oneof=structured simple"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether the /health routes are mounted
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	// Enabled relaxes the TLS requirement on submissions.
	// WARNING: Only enable in development environments
	Enabled bool `mapstructure:"enabled"`
}
