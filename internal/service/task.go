package service

import (
	"context"
	"errors"
	"time"

	"github.com/deppfellow/academia/internal/errs"
	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultStaleAfter is how long a record may stay STARTED before it is
// reported as lost.
const DefaultStaleAfter = 30 * time.Minute

// TaskService exposes task records read-only.
type TaskService struct {
	results repository.TaskResultStore
	logger  *zerolog.Logger
}

func NewTaskService(results repository.TaskResultStore, logger *zerolog.Logger) *TaskService {
	return &TaskService{results: results, logger: logger}
}

func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*model.TaskRecord, error) {
	rec, err := s.results.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.NewNotFoundError("task not found", false, errs.Code("TASK_NOT_FOUND"))
	}
	if err != nil {
		loggerFrom(ctx, s.logger).Error().Err(err).Msg("failed to read task")
		return nil, errs.NewInternalServerError()
	}
	return rec, nil
}

func (s *TaskService) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]model.TaskRecord, error) {
	recs, err := s.results.ListByGroup(ctx, groupID)
	if err != nil {
		loggerFrom(ctx, s.logger).Error().Err(err).Msg("failed to list tasks")
		return nil, errs.NewInternalServerError()
	}
	return recs, nil
}

// ListStale returns STARTED records claimed more than olderThan ago. A
// worker that died after claiming leaves such a record behind, and since
// redeliveries skip claimed records nothing else will finish it.
func (s *TaskService) ListStale(ctx context.Context, olderThan time.Duration) ([]model.TaskRecord, error) {
	if olderThan <= 0 {
		olderThan = DefaultStaleAfter
	}
	recs, err := s.results.ListStale(ctx, time.Now().Add(-olderThan))
	if err != nil {
		loggerFrom(ctx, s.logger).Error().Err(err).Msg("failed to list stale tasks")
		return nil, errs.NewInternalServerError()
	}
	return recs, nil
}
