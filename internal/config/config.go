// Package config manages environment variables.
//
// It reads variables from the `.env` file,
// loads them into structured Go types (struct), and
// validates that required values are present so they
// can be reused across the application runtime.
//
// Responsibilities:
//   - Load environment variables (optionally from a `.env` file).
//   - Map env vars into a structured Go config (structs).
//   - Validate required values so the app fails fast on bad/missing config.
//   - Provide sane defaults for optional config blocks (observability, cache, jobs).
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	// Side-effect import: if a `.env` file exists, it gets loaded into the
	// process env before any value is read below.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix every variable read by LoadConfig must carry.
//
// Nesting uses "." after the prefix, e.g.:
//
//	ACADEMIA_SERVER.PORT -> server.port -> Config.Server.Port
const EnvPrefix = "ACADEMIA_"

// Config is the root configuration object for the application.
//
// The `koanf:"..."` tags specify where koanf should map values from.
// The `validate:"..."` tags are enforced by go-playground/validator.
//
// Pointer blocks are optional. If not provided, defaults are injected.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Redis         RedisConfig          `koanf:"redis" validate:"required"`
	Auth          AuthConfig           `koanf:"auth" validate:"required"`
	Integration   IntegrationConfig    `koanf:"integration" validate:"required"`
	Storage       StorageConfig        `koanf:"storage" validate:"required"`
	Cache         *CacheConfig         `koanf:"cache"`
	Jobs          *JobsConfig          `koanf:"jobs"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment.
type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

// ServerConfig groups settings for the HTTP server runtime.
// Timeouts are in seconds.
type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`

	// RateLimit is the sustained requests per second allowed per client IP;
	// RateLimitBurst the bucket size. Zero picks the defaults.
	RateLimit      float64 `koanf:"rate_limit" validate:"gte=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"gte=0"`
}

const (
	DefaultRateLimit      = 20
	DefaultRateLimitBurst = 40
)

// DatabaseConfig contains PostgreSQL connection parameters and pool tuning.
type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password" validate:"required"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int    `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int    `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time" validate:"required"`
}

// DSN builds the postgres URL used by both the pool and the migrator.
//
// The password is URL-escaped so characters like "@" or ":" do not break
// the URL, and JoinHostPort handles IPv6 hosts.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		d.User,
		url.QueryEscape(d.Password),
		net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		d.Name,
		d.SSLMode,
	)
}

// RedisConfig contains Redis connection details.
// Address is "host:port". Redis backs the asynq broker and, optionally, the cache.
type RedisConfig struct {
	Address  string `koanf:"address" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// AuthConfig stores authentication-related secrets (Clerk).
type AuthConfig struct {
	SecretKey string `koanf:"secret_key" validate:"required"`
}

// IntegrationConfig holds third-party provider credentials.
type IntegrationConfig struct {
	// ResendAPIKey authenticates against the transactional email API.
	ResendAPIKey string `koanf:"resend_api_key" validate:"required"`

	// EmailFrom is the sender identity, e.g. "Academia <noreply@example.edu>".
	EmailFrom string `koanf:"email_from" validate:"required"`
}

// StorageConfig points at the directory uploaded files live in.
type StorageConfig struct {
	UploadDir string `koanf:"upload_dir" validate:"required"`
}

// LoadConfig loads configuration from environment variables, unmarshals it into
// Config structs, validates it, applies defaults, and returns the resulting config.
//
// Behavior summary:
//   - Loads env vars with prefix ACADEMIA_
//   - Unmarshals into Config
//   - Validates required config blocks/fields
//   - Injects defaults for observability, cache and jobs if missing
//   - Validates the optional blocks with their own rules
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load initial env variables: %w", err)
	}

	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("could not unmarshal main config: %w", err)
	}

	if err := validator.New().Struct(mainConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := mainConfig.applyDefaults(); err != nil {
		return nil, err
	}

	return mainConfig, nil
}

// applyDefaults fills the optional blocks and validates them.
//
// ServiceName and Environment are always derived, never configured, so
// logs and traces see consistent naming.
func (c *Config) applyDefaults() error {
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = DefaultRateLimit
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = DefaultRateLimitBurst
	}

	if c.Observability == nil {
		c.Observability = DefaultObservabilityConfig()
	}
	c.Observability.ServiceName = "academia"
	c.Observability.Environment = c.Primary.Env

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	if c.Cache == nil {
		c.Cache = DefaultCacheConfig()
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache config: %w", err)
	}

	if c.Jobs == nil {
		c.Jobs = DefaultJobsConfig()
	}
	if err := c.Jobs.Validate(); err != nil {
		return fmt.Errorf("invalid jobs config: %w", err)
	}

	return nil
}
