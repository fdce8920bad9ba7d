package job

import (
	"context"
	"errors"
	"time"

	"github.com/deppfellow/academia/internal/model"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// firingNamespace seeds the ids of scheduled submissions.
var firingNamespace = uuid.MustParse("5c4e0d1a-7f3b-4c2e-9a61-0b8d2f6e4a10")

// FiringID is the task id of the firing of name at now. Every worker
// process runs its own Scheduler; sharing the id per minute makes their
// submissions of one firing collapse into a single task.
func FiringID(name string, now time.Time) uuid.UUID {
	minute := now.UTC().Truncate(time.Minute).Format(time.RFC3339)
	return uuid.NewSHA1(firingNamespace, []byte(name+"@"+minute))
}

// Scheduler submits tasks on a calendar cadence. Each firing is an
// ordinary Submit.
type Scheduler struct {
	cron      *cron.Cron
	submitter Submitter
	logger    *zerolog.Logger
}

func NewScheduler(logger *zerolog.Logger, submitter Submitter) *Scheduler {
	cl := cronLogger{l: logger.With().Str("component", "scheduler").Logger()}
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		submitter: submitter,
		logger:    logger,
	}
}

// Add submits build(now) whenever the standard cron expression spec fires.
func (s *Scheduler) Add(spec string, build func(now time.Time) TaskSpec) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		s.fire(context.Background(), build(time.Now()))
	})
}

func (s *Scheduler) fire(ctx context.Context, spec TaskSpec) {
	rec, err := s.submitter.Submit(ctx, spec)
	if errors.Is(err, ErrAlreadySubmitted) {
		s.logger.Debug().Str("task", spec.Name).Str("task_id", spec.ID.String()).Msg("firing already submitted elsewhere")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("task", spec.Name).Msg("scheduled submit failed")
		return
	}
	s.logger.Info().Str("task", spec.Name).Str("task_id", rec.ID.String()).Msg("scheduled task submitted")
}

// AddCloseWindow schedules the registration-window sweep.
func (s *Scheduler) AddCloseWindow(spec string) (cron.EntryID, error) {
	return s.Add(spec, CloseWindowSpec)
}

// CloseWindowSpec is the sweep submission for a firing at now.
func CloseWindowSpec(now time.Time) TaskSpec {
	return TaskSpec{
		ID:   FiringID(TaskCloseWindow, now),
		Name: TaskCloseWindow,
		Tag:  model.TagManageForm,
		Args: CloseWindowPayload{Before: now.UTC()},
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops firing and waits for submissions in flight.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
