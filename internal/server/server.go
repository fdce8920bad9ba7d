// Package server defines the core Server struct that composes the app's main dependencies.
//
// It owns the lifecycle of:
//   - configuration
//   - logger + optional New Relic service wrapper
//   - database pool
//   - redis client and the current-season cache store
//   - background job service (asynq), attached once repositories exist
//   - http.Server
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/deppfellow/academia/internal/cache"
	"github.com/deppfellow/academia/internal/config"
	"github.com/deppfellow/academia/internal/database"
	"github.com/deppfellow/academia/internal/lib/job"
	"github.com/newrelic/go-agent/v3/integrations/nrredis-v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	loggerPkg "github.com/deppfellow/academia/internal/logger"
)

// Server is the application container that holds shared resources.
type Server struct {
	Config        *config.Config
	Logger        *zerolog.Logger
	LoggerService *loggerPkg.LoggerService
	DB            *database.Database
	Redis         *redis.Client

	// Cache backs the read-through cache of the current season.
	Cache cache.Store

	// Job is the broker client and worker server. It needs the task result
	// repository, so it is attached with AttachJobs after construction.
	Job *job.JobService

	httpServer *http.Server
}

// New connects to Postgres and Redis and builds the cache store.
//
// Redis is required when it backs the cache; otherwise a failed ping is
// only logged, since the broker client reconnects on its own.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) (*Server, error) {
	db, err := database.New(ctx, cfg, logger, loggerService)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if loggerService != nil && loggerService.GetApplication() != nil {
		redisClient.AddHook(nrredis.NewHook(redisClient.Options()))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		if cfg.Cache.Backend == config.CacheBackendRedis {
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Error().Err(err).Msg("failed to connect to redis, continuing")
	}

	var store cache.Store
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		store = cache.NewRedis(redisClient)
	default:
		store = cache.NewMemory()
	}
	logger.Info().Str("backend", string(cfg.Cache.Backend)).Msg("current season cache ready")

	return &Server{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		DB:            db,
		Redis:         redisClient,
		Cache:         store,
	}, nil
}

// AttachJobs builds the job service on top of the given result store.
func (s *Server) AttachJobs(results job.ResultStore) *job.JobService {
	s.Job = job.NewJobService(s.Logger, s.Config, results, s.LoggerService.GetApplication())
	return s.Job
}

// SetupHTTPServer configures the internal net/http server.
func (s *Server) SetupHTTPServer(handler http.Handler) {
	s.httpServer = &http.Server{
		Addr:         ":" + s.Config.Server.Port,
		Handler:      handler,
		ReadTimeout:  time.Duration(s.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.Config.Server.IdleTimeout) * time.Second,
	}
}

// Start runs the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return errors.New("HTTP server not initialized")
	}

	s.Logger.Info().
		Str("port", s.Config.Server.Port).
		Str("env", s.Config.Primary.Env).
		Msg("starting server")

	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server, then the workers, then the connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	if s.Job != nil {
		s.Job.Stop()
	}

	if err := s.Redis.Close(); err != nil {
		s.Logger.Error().Err(err).Msg("failed to close redis client")
	}

	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}
