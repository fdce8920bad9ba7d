// Package job provides background job processing using Asynq.
//
// Asynq is a Redis-backed job queue:
//   - You enqueue tasks (producer) using asynq.Client.
//   - A server runs workers that process those tasks (consumer) using asynq.Server.
//
// Every task goes through the same lifecycle. Submit persists a PENDING
// record in the result store and enqueues the task with retries disabled.
// On the worker, Executor.Wrap claims the record, runs the task and stores
// its final state, so a failure is recorded once and never replayed.
package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deppfellow/academia/internal/config"
	"github.com/deppfellow/academia/internal/model"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Queue names and their worker share.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// QueueFor picks the queue a task of the given tag runs on.
func QueueFor(tag model.TaskTag) string {
	switch tag {
	case model.TagSendMail:
		return QueueCritical
	case model.TagDriveFile:
		return QueueLow
	default:
		return QueueDefault
	}
}

// ErrAlreadySubmitted is returned by Submit when a task with the same
// fixed ID was submitted before.
var ErrAlreadySubmitted = errors.New("task already submitted")

// ResultStore is the durable result store tasks report to.
type ResultStore interface {
	// Create reports false when a record with rec.ID already exists.
	Create(ctx context.Context, rec *model.TaskRecord) (bool, error)
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, state model.TaskState, result json.RawMessage) error
	Fail(ctx context.Context, id uuid.UUID, info model.TaskFailureInfo) error
}

// Enqueuer pushes tasks to the broker. *asynq.Client implements it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Submitter is what request-path code uses to start tasks.
type Submitter interface {
	Submit(ctx context.Context, spec TaskSpec) (*model.TaskRecord, error)
}

// TaskSpec describes one task submission.
type TaskSpec struct {
	// ID fixes the record and broker task id. Submissions sharing an ID
	// run once. Zero picks a fresh one.
	ID      uuid.UUID
	Name    string
	Tag     model.TaskTag
	GroupID *uuid.UUID
	Args    any
}

// envelope is the broker payload of every task.
type envelope struct {
	TaskID uuid.UUID       `json:"task_id"`
	Args   json.RawMessage `json:"args"`
}

// JobService holds the Asynq client (enqueue) and server (worker execution).
type JobService struct {
	Client   Enqueuer
	server   *asynq.Server
	closer   func() error
	results  ResultStore
	executor *Executor
	mux      *asynq.ServeMux
	cfg      *config.JobsConfig
	logger   *zerolog.Logger
}

// NewJobService creates a JobService on the Redis from cfg.
//
// Queue weights give "critical" (mail) about six of every ten workers.
func NewJobService(logger *zerolog.Logger, cfg *config.Config, results ResultStore, nrApp *newrelic.Application) *JobService {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := asynq.NewClient(redisOpt)
	j := NewJobServiceWithClient(logger, cfg.Jobs, client, results, nrApp)
	j.closer = client.Close

	j.server = asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Jobs.Concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
			QueueLow:      1,
		},
		ShutdownTimeout: cfg.Jobs.ShutdownTimeout,
		Logger:          newAsynqLogger(logger),
	})

	return j
}

// NewJobServiceWithClient builds a submit-only JobService on an existing
// enqueuer. Handlers can still be registered and invoked through Handler.
func NewJobServiceWithClient(logger *zerolog.Logger, cfg *config.JobsConfig, client Enqueuer, results ResultStore, nrApp *newrelic.Application) *JobService {
	if cfg == nil {
		cfg = config.DefaultJobsConfig()
	}
	return &JobService{
		Client:   client,
		results:  results,
		executor: NewExecutor(results, logger, nrApp),
		mux:      asynq.NewServeMux(),
		cfg:      cfg,
		logger:   logger,
	}
}

// Submit records the task as PENDING and enqueues it. It returns as soon
// as the broker accepted the task.
//
// The record id is also the broker task id, so the broker rejects a second
// enqueue of the same record.
func (j *JobService) Submit(ctx context.Context, spec TaskSpec) (*model.TaskRecord, error) {
	if spec.Name == "" {
		return nil, errors.New("task name is required")
	}
	if spec.Tag == "" {
		spec.Tag = model.TagDefault
	}

	args, err := json.Marshal(spec.Args)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s args", spec.Name)
	}

	id := spec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	rec := &model.TaskRecord{
		ID:      id,
		Name:    spec.Name,
		Tag:     spec.Tag,
		GroupID: spec.GroupID,
		State:   model.TaskPending,
		Args:    args,
	}
	created, err := j.results.Create(ctx, rec)
	if err != nil {
		return nil, errors.Wrapf(err, "persist %s record", spec.Name)
	}
	if !created {
		return nil, ErrAlreadySubmitted
	}

	payload, err := json.Marshal(envelope{TaskID: rec.ID, Args: args})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s payload", spec.Name)
	}

	_, err = j.Client.EnqueueContext(ctx, asynq.NewTask(spec.Name, payload),
		asynq.TaskID(rec.ID.String()),
		asynq.MaxRetry(0),
		asynq.Queue(QueueFor(spec.Tag)),
		asynq.Timeout(j.cfg.TaskTimeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// The broker already holds a task for this record; it will claim it.
		return nil, ErrAlreadySubmitted
	}
	if err != nil {
		err = errors.Wrapf(err, "enqueue %s", spec.Name)
		info := model.TaskFailureInfo{
			Tag:         spec.Tag,
			Task:        spec.Name,
			Description: err.Error(),
			Trace:       fmt.Sprintf("%+v", err),
			Args:        args,
		}
		if ferr := j.results.Fail(context.WithoutCancel(ctx), rec.ID, info); ferr != nil {
			j.logger.Error().Err(ferr).Str("task_id", rec.ID.String()).Msg("failed to record enqueue failure")
		}
		return nil, err
	}

	j.logger.Debug().
		Str("task", spec.Name).
		Str("task_id", rec.ID.String()).
		Str("tag", string(spec.Tag)).
		Msg("task submitted")

	return rec, nil
}

// Register routes name to fn, wrapped by the executor.
func (j *JobService) Register(name string, tag model.TaskTag, fn TaskFunc) {
	j.mux.Handle(name, j.executor.Wrap(name, tag, fn))
}

// Handler returns the router of every registered task.
func (j *JobService) Handler() asynq.Handler {
	return j.mux
}

// Start starts the worker server. It does not block.
func (j *JobService) Start() error {
	if j.server == nil {
		return errors.New("job server not initialized")
	}

	j.logger.Info().Msg("starting background job server")

	if err := j.server.Start(j.mux); err != nil {
		return errors.Wrap(err, "start job server")
	}
	return nil
}

// Stop waits for running tasks up to the shutdown timeout and closes the client.
func (j *JobService) Stop() {
	j.logger.Info().Msg("stopping background job server")
	if j.server != nil {
		j.server.Shutdown()
	}
	if j.closer != nil {
		if err := j.closer(); err != nil {
			j.logger.Error().Err(err).Msg("failed to close job client")
		}
	}
}

// asynqLogger routes asynq's internal logging into zerolog.
type asynqLogger struct {
	l zerolog.Logger
}

func newAsynqLogger(logger *zerolog.Logger) *asynqLogger {
	return &asynqLogger{l: logger.With().Str("component", "asynq").Logger()}
}

func (a *asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a *asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a *asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a *asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a *asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
