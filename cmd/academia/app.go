package main

import (
	"context"
	"time"

	"github.com/deppfellow/academia/internal/config"
	"github.com/deppfellow/academia/internal/lib/email"
	"github.com/deppfellow/academia/internal/lib/job"
	"github.com/deppfellow/academia/internal/lib/storage"
	"github.com/deppfellow/academia/internal/logger"
	"github.com/deppfellow/academia/internal/repository"
	"github.com/deppfellow/academia/internal/server"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 30 * time.Second

// app is what every long-running command shares: config, logging,
// connections, repositories and the job service.
type app struct {
	cfg           *config.Config
	logger        *zerolog.Logger
	loggerService *logger.LoggerService
	server        *server.Server
	repos         *repository.Repositories
	jobs          *job.JobService
}

// loadObservability reads the config and builds the logger. It is the part
// of startup that needs no network.
func loadObservability() (*config.Config, *logger.LoggerService, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "load config")
	}

	loggerService := logger.NewLoggerService(cfg.Observability)
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)
	return cfg, loggerService, &log, nil
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, loggerService, log, err := loadObservability()
	if err != nil {
		return nil, err
	}

	srv, err := server.New(ctx, cfg, log, loggerService)
	if err != nil {
		loggerService.Shutdown()
		return nil, errors.Wrap(err, "initialize server")
	}

	repos := repository.NewRepositories(srv)
	jobs := srv.AttachJobs(repos.TaskResults)

	return &app{
		cfg:           cfg,
		logger:        log,
		loggerService: loggerService,
		server:        srv,
		repos:         repos,
		jobs:          jobs,
	}, nil
}

// startWorker registers the task bodies, starts the asynq server and the
// periodic triggers. The returned func stops the scheduler; the job server
// itself stops with the server.
func (a *app) startWorker() (func(), error) {
	a.jobs.InitHandlers(job.Dependencies{
		Mailer:   email.NewClient(a.cfg, a.logger),
		Files:    storage.NewLocal(a.cfg.Storage.UploadDir),
		Subjects: a.repos.Subjects,
	})

	if err := a.jobs.Start(); err != nil {
		return nil, err
	}

	scheduler := job.NewScheduler(a.logger, a.jobs)
	if _, err := scheduler.AddCloseWindow(a.cfg.Jobs.CloseWindowSchedule); err != nil {
		return nil, errors.Wrap(err, "schedule registration close sweep")
	}
	scheduler.Start()

	return scheduler.Stop, nil
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("server forced to shutdown")
	}
	a.loggerService.Shutdown()
	a.logger.Info().Msg("shutdown complete")
}
