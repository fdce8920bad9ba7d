package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	vars := map[string]string{
		"ACADEMIA_PRIMARY.ENV":                 "local",
		"ACADEMIA_SERVER.PORT":                 "8080",
		"ACADEMIA_SERVER.READ_TIMEOUT":         "30",
		"ACADEMIA_SERVER.WRITE_TIMEOUT":        "30",
		"ACADEMIA_SERVER.IDLE_TIMEOUT":         "60",
		"ACADEMIA_SERVER.CORS_ALLOWED_ORIGINS": "http://localhost:3000",
		"ACADEMIA_DATABASE.HOST":               "localhost",
		"ACADEMIA_DATABASE.PORT":               "5432",
		"ACADEMIA_DATABASE.USER":               "academia",
		"ACADEMIA_DATABASE.PASSWORD":           "p@ss:word",
		"ACADEMIA_DATABASE.NAME":               "academia",
		"ACADEMIA_DATABASE.SSL_MODE":           "disable",
		"ACADEMIA_DATABASE.MAX_OPEN_CONNS":     "10",
		"ACADEMIA_DATABASE.MAX_IDLE_CONNS":     "5",
		"ACADEMIA_DATABASE.CONN_MAX_LIFETIME":  "300",
		"ACADEMIA_DATABASE.CONN_MAX_IDLE_TIME": "60",
		"ACADEMIA_REDIS.ADDRESS":               "localhost:6379",
		"ACADEMIA_AUTH.SECRET_KEY":             "sk_test",
		"ACADEMIA_INTEGRATION.RESEND_API_KEY":  "re_test",
		"ACADEMIA_INTEGRATION.EMAIL_FROM":      "Academia <noreply@example.edu>",
		"ACADEMIA_STORAGE.UPLOAD_DIR":          "/tmp/uploads",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	require.NotNil(t, cfg.Observability)
	assert.Equal(t, "academia", cfg.Observability.ServiceName)
	assert.Equal(t, "local", cfg.Observability.Environment)
	require.NotNil(t, cfg.Cache)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	require.NotNil(t, cfg.Jobs)
	assert.Equal(t, 10, cfg.Jobs.Concurrency)
	assert.Equal(t, float64(DefaultRateLimit), cfg.Server.RateLimit)
	assert.Equal(t, DefaultRateLimitBurst, cfg.Server.RateLimitBurst)
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACADEMIA_INTEGRATION.RESEND_API_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ResendAPIKey")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "::1",
		Port:     5432,
		User:     "academia",
		Password: "p@ss:word",
		Name:     "academia",
		SSLMode:  "disable",
	}

	assert.Equal(t, "postgres://academia:p%40ss%3Aword@[::1]:5432/academia?sslmode=disable", d.DSN())
}

func TestObservabilityConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ObservabilityConfig)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *ObservabilityConfig) {}},
		{
			name:    "unknown level",
			mutate:  func(c *ObservabilityConfig) { c.Logging.Level = "inf" },
			wantErr: "invalid logging level",
		},
		{
			name:    "negative slow query threshold",
			mutate:  func(c *ObservabilityConfig) { c.Logging.SlowQueryThreshold = -time.Second },
			wantErr: "slow_query_threshold",
		},
		{
			name:    "missing service name",
			mutate:  func(c *ObservabilityConfig) { c.ServiceName = "" },
			wantErr: "service_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultObservabilityConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJobsConfig_Validate(t *testing.T) {
	c := DefaultJobsConfig()
	require.NoError(t, c.Validate())

	c.CloseWindowSchedule = "@weekly"
	assert.NoError(t, c.Validate())

	c.CloseWindowSchedule = "every tuesday"
	assert.Error(t, c.Validate())

	c = DefaultJobsConfig()
	c.Concurrency = 0
	assert.Error(t, c.Validate())
}

func TestCacheConfig_Validate(t *testing.T) {
	c := &CacheConfig{}
	require.NoError(t, c.Validate())
	assert.Equal(t, CacheBackendMemory, c.Backend)

	c.Backend = "memcached"
	assert.Error(t, c.Validate())
}
