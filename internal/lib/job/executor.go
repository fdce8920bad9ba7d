package job

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/deppfellow/academia/internal/model"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/newrelic/go-agent/v3/integrations/nrpkgerrors"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrIgnored marks a task that had nothing to do. The record ends IGNORED
// instead of FAILURE.
var ErrIgnored = errors.New("task ignored")

// Ignore returns an error that ends the task IGNORED with reason.
func Ignore(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrIgnored)
}

// TaskFunc is the body of a task. The returned value is stored as the
// task result.
type TaskFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Typed adapts a function over decoded args into a TaskFunc.
func Typed[A any](fn func(ctx context.Context, args A) (any, error)) TaskFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args A
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, errors.Wrap(err, "decode task args")
		}
		return fn(ctx, args)
	}
}

// Executor runs tasks under a uniform failure boundary.
type Executor struct {
	results ResultStore
	logger  *zerolog.Logger
	nrApp   *newrelic.Application
}

func NewExecutor(results ResultStore, logger *zerolog.Logger, nrApp *newrelic.Application) *Executor {
	return &Executor{results: results, logger: logger, nrApp: nrApp}
}

// Wrap turns fn into an asynq handler that:
//   - skips deliveries whose record already left PENDING
//   - converts panics into failures
//   - persists SUCCESS, IGNORED or FAILURE with tag, name, description,
//     trace and args
//   - returns nil for every failure it managed to persist, so the broker
//     never retries or redelivers it
func (e *Executor) Wrap(name string, tag model.TaskTag, fn TaskFunc) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		return e.execute(ctx, name, tag, fn, t)
	})
}

func (e *Executor) execute(ctx context.Context, name string, tag model.TaskTag, fn TaskFunc, t *asynq.Task) error {
	logger := e.logger.With().Str("task", name).Str("tag", string(tag)).Logger()

	var env envelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil || env.TaskID == uuid.Nil {
		logger.Error().Err(err).Msg("dropping task with malformed payload")
		return fmt.Errorf("%s: malformed payload: %w", name, asynq.SkipRetry)
	}
	logger = logger.With().Str("task_id", env.TaskID.String()).Logger()

	// Persisting must outlive the task deadline.
	persistCtx := context.WithoutCancel(ctx)

	claimed, err := e.results.Claim(persistCtx, env.TaskID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to claim task record")
		return fmt.Errorf("claim %s: %v: %w", env.TaskID, err, asynq.SkipRetry)
	}
	if !claimed {
		logger.Warn().Msg("task already claimed, skipping redelivery")
		return nil
	}

	var txn *newrelic.Transaction
	if e.nrApp != nil {
		txn = e.nrApp.StartTransaction("task/" + name)
		defer txn.End()
		ctx = newrelic.NewContext(ctx, txn)
	}

	logger.Info().Msg("task started")

	result, runErr := run(ctx, fn, env.Args)

	switch {
	case runErr == nil:
		encoded, err := json.Marshal(result)
		if err != nil {
			runErr = errors.Wrap(err, "encode task result")
			break
		}
		if err := e.results.Complete(persistCtx, env.TaskID, model.TaskSuccess, encoded); err != nil {
			logger.Error().Err(err).Msg("failed to persist task success")
			return fmt.Errorf("persist %s success: %v: %w", env.TaskID, err, asynq.SkipRetry)
		}
		if w := t.ResultWriter(); w != nil {
			_, _ = w.Write(encoded)
		}
		logger.Info().Msg("task succeeded")
		return nil

	case errors.Is(runErr, ErrIgnored):
		reason, _ := json.Marshal(map[string]string{"reason": runErr.Error()})
		if err := e.results.Complete(persistCtx, env.TaskID, model.TaskIgnored, reason); err != nil {
			logger.Error().Err(err).Msg("failed to persist ignored task")
			return fmt.Errorf("persist %s ignored: %v: %w", env.TaskID, err, asynq.SkipRetry)
		}
		logger.Info().Str("reason", runErr.Error()).Msg("task ignored")
		return nil
	}

	info := model.TaskFailureInfo{
		Tag:         tag,
		Task:        name,
		Description: runErr.Error(),
		Trace:       fmt.Sprintf("%+v", runErr),
		Args:        env.Args,
	}

	logger.Error().Stack().Err(runErr).Msg("task failed")

	if txn != nil {
		txn.NoticeError(nrpkgerrors.Wrap(runErr))
	}
	if e.nrApp != nil {
		e.nrApp.RecordCustomEvent("TaskFailure", map[string]any{
			"task":        name,
			"tag":         string(tag),
			"taskId":      env.TaskID.String(),
			"description": info.Description,
		})
	}

	if err := e.results.Fail(persistCtx, env.TaskID, info); err != nil {
		logger.Error().Err(err).Msg("failed to persist task failure")
		return fmt.Errorf("persist %s failure: %v: %w", env.TaskID, err, asynq.SkipRetry)
	}
	return nil
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// run calls fn, turning a panic into an error and making sure the error
// carries a stack trace.
func run(ctx context.Context, fn TaskFunc, args json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errors.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	result, err = fn(ctx, args)
	if err != nil {
		var st stackTracer
		if !errors.As(err, &st) {
			err = errors.WithStack(err)
		}
	}
	return result, err
}
