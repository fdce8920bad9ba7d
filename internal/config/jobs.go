package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CacheBackend selects where the current-season cache entry lives.
type CacheBackend string

const (
	// CacheBackendMemory keeps the entry in the process. Each process
	// invalidates only its own copy, so use it with a single API process.
	CacheBackendMemory CacheBackend = "memory"

	// CacheBackendRedis shares the entry between every API process.
	CacheBackendRedis CacheBackend = "redis"
)

// CacheConfig configures the read-through cache of the current season.
type CacheConfig struct {
	Backend CacheBackend `koanf:"backend"`

	// KeyPrefix namespaces keys when Redis is shared with other apps.
	KeyPrefix string `koanf:"key_prefix"`
}

// DefaultCacheConfig is used when Config.Cache is nil.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Backend:   CacheBackendMemory,
		KeyPrefix: "academia",
	}
}

// Validate checks the backend is one we know how to build.
func (c *CacheConfig) Validate() error {
	switch c.Backend {
	case CacheBackendMemory, CacheBackendRedis:
		return nil
	case "":
		c.Backend = CacheBackendMemory
		return nil
	}
	return fmt.Errorf("invalid cache backend: %s (must be one of: memory, redis)", c.Backend)
}

// JobsConfig tunes the asynq worker pool and the periodic triggers.
type JobsConfig struct {
	// Concurrency is the number of tasks processed in parallel per worker process.
	Concurrency int `koanf:"concurrency"`

	// TaskTimeout bounds a single task execution.
	TaskTimeout time.Duration `koanf:"task_timeout"`

	// ShutdownTimeout is how long Stop waits for in-flight tasks.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CloseWindowSchedule is the cron spec of the registration-window sweep.
	// Standard 5-field syntax and descriptors like "@weekly" are accepted.
	CloseWindowSchedule string `koanf:"close_window_schedule"`
}

// DefaultJobsConfig is used when Config.Jobs is nil.
func DefaultJobsConfig() *JobsConfig {
	return &JobsConfig{
		Concurrency:     10,
		TaskTimeout:     2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		// Mondays at 00:05, closes the previous week's windows.
		CloseWindowSchedule: "5 0 * * MON",
	}
}

// Validate rejects nonsensical worker settings and unparsable cron specs.
func (c *JobsConfig) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("jobs concurrency must be positive")
	}
	if c.TaskTimeout <= 0 {
		return fmt.Errorf("jobs task_timeout must be positive")
	}
	if c.CloseWindowSchedule != "" {
		if _, err := cron.ParseStandard(c.CloseWindowSchedule); err != nil {
			return fmt.Errorf("invalid jobs close_window_schedule %q: %w", c.CloseWindowSchedule, err)
		}
	}
	return nil
}
