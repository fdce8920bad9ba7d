package service

import (
	"context"
	"errors"

	"github.com/deppfellow/academia/internal/cache"
	"github.com/deppfellow/academia/internal/errs"
	"github.com/deppfellow/academia/internal/lib/job"
	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/repository"
	"github.com/deppfellow/academia/internal/sqlerr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CurrentSeasonKey is the cache key of the current season, below the
// configured key prefix.
const CurrentSeasonKey = "season:current"

const seasonNumberConstraint = "seasons_number_key"

// SeasonService keeps at most one season current.
//
// Create and Promote demote every current season and flag the new one in
// a single transaction; Delete refuses the current season. All three run
// under the store's transaction lock, and each invalidates the cached
// current season inside the transaction and once more after commit.
type SeasonService struct {
	store   repository.SeasonStore
	current *cache.Current[model.Season]
	jobs    job.Submitter
	logger  *zerolog.Logger
}

func NewSeasonService(store repository.SeasonStore, current *cache.Current[model.Season], jobs job.Submitter, logger *zerolog.Logger) *SeasonService {
	return &SeasonService{store: store, current: current, jobs: jobs, logger: logger}
}

// Create inserts a new season and makes it the current one.
func (s *SeasonService) Create(ctx context.Context, payload *model.CreateSeasonPayload) (*model.Season, error) {
	var created *model.Season

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.SeasonTx) error {
		previous, err := tx.FindCurrent(ctx)
		if err != nil {
			return err
		}
		if err := s.current.Invalidate(ctx); err != nil {
			return err
		}
		if len(previous) > 0 {
			if _, err := tx.DemoteAll(ctx); err != nil {
				return err
			}
		}
		created, err = tx.Insert(ctx, payload, true)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "create", err)
	}

	s.invalidate(ctx)

	s.logger.Info().
		Str("season_id", created.ID.String()).
		Int("number", created.Number).
		Msg("season created and promoted")

	return created, nil
}

// Promote makes an existing season the current one and returns it as
// committed.
func (s *SeasonService) Promote(ctx context.Context, id uuid.UUID) (*model.Season, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, s.fail(ctx, "promote", err)
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.SeasonTx) error {
		if err := s.current.Invalidate(ctx); err != nil {
			return err
		}
		demoted, err := tx.DemoteAll(ctx)
		if err != nil {
			return err
		}
		if demoted > 1 {
			s.logger.Warn().Int64("demoted", demoted).Msg("more than one current season found")
		}
		return tx.SetCurrent(ctx, id)
	})
	if err != nil {
		return nil, s.fail(ctx, "promote", err)
	}

	s.invalidate(ctx)

	promoted, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "promote", err)
	}

	s.logger.Info().
		Str("season_id", id.String()).
		Int("number", promoted.Number).
		Msg("season promoted")

	return promoted, nil
}

// Delete removes a season that is not current.
func (s *SeasonService) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted *model.Season

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.SeasonTx) error {
		season, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if season.Current {
			return errs.NewConflictError("cannot delete the active season", false, errs.Code("SEASON_ACTIVE"))
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		deleted = season
		return nil
	})
	if err != nil {
		return s.fail(ctx, "delete", err)
	}

	if deleted.ImageFileID != nil {
		s.deleteFile(ctx, *deleted.ImageFileID)
	}

	s.logger.Info().Str("season_id", id.String()).Msg("season deleted")
	return nil
}

// Update changes the descriptive fields of a season. The current flag is
// never touched here.
func (s *SeasonService) Update(ctx context.Context, payload *model.UpdateSeasonPayload) (*model.Season, error) {
	var before, after *model.Season

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.SeasonTx) error {
		var err error
		before, err = tx.GetByID(ctx, payload.ID)
		if err != nil {
			return err
		}
		if before.Current {
			if err := s.current.Invalidate(ctx); err != nil {
				return err
			}
		}
		after, err = tx.Update(ctx, payload)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "update", err)
	}

	if after.Current {
		s.invalidate(ctx)
	}

	if old := before.ImageFileID; old != nil && (after.ImageFileID == nil || *after.ImageFileID != *old) {
		s.deleteFile(ctx, *old)
	}

	return after, nil
}

// GetCurrent returns the current season through the read-through cache.
func (s *SeasonService) GetCurrent(ctx context.Context) (*model.Season, error) {
	season, err := s.current.Get(ctx, func(ctx context.Context) (model.Season, error) {
		current, err := s.store.FindCurrentSeason(ctx)
		if err != nil {
			return model.Season{}, err
		}
		return *current, nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.NewNotFoundError("no current season configured", false, errs.Code("NO_CURRENT_SEASON"))
	}
	if err != nil {
		if season.ID == uuid.Nil {
			return nil, s.fail(ctx, "get current", err)
		}
		// Loaded but not cached.
		s.logger.Warn().Err(err).Msg("failed to cache current season")
	}
	return &season, nil
}

func (s *SeasonService) GetByID(ctx context.Context, id uuid.UUID) (*model.Season, error) {
	season, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get", err)
	}
	return season, nil
}

func (s *SeasonService) List(ctx context.Context, q model.SeasonQuery) (*model.PaginatedResponse[model.Season], error) {
	q.Normalize()

	seasons, err := s.store.List(ctx, q)
	if err != nil {
		return nil, s.fail(ctx, "list", err)
	}
	total, err := s.store.Count(ctx, q)
	if err != nil {
		return nil, s.fail(ctx, "count", err)
	}

	resp := model.NewPaginatedResponse(seasons, q.Page, model.SeasonPageSize, total)
	return &resp, nil
}

func (s *SeasonService) Count(ctx context.Context, q model.SeasonQuery) (int64, error) {
	q.Normalize()
	n, err := s.store.Count(ctx, q)
	if err != nil {
		return 0, s.fail(ctx, "count", err)
	}
	return n, nil
}

// invalidate drops the cache entry after a commit. The entry was already
// dropped inside the transaction; this clears anything a reader cached in
// between.
func (s *SeasonService) invalidate(ctx context.Context) {
	if err := s.current.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error().Err(err).Msg("failed to invalidate current season after commit")
	}
}

func (s *SeasonService) deleteFile(ctx context.Context, fileID string) {
	_, err := s.jobs.Submit(ctx, job.TaskSpec{
		Name: job.TaskDeleteFile,
		Tag:  model.TagDriveFile,
		Args: job.DeleteFilePayload{FileID: fileID},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("file_id", fileID).Msg("failed to submit file deletion")
	}
}

// fail maps store errors onto the API error classes.
func (s *SeasonService) fail(ctx context.Context, op string, err error) error {
	var httpErr *errs.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.Is(err, repository.ErrNotFound):
		return errs.NewNotFoundError("season not found", false, errs.Code("SEASON_NOT_FOUND"))
	case sqlerr.IsUniqueViolation(err, seasonNumberConstraint):
		return errs.NewConflictError("season already exists", false, errs.Code("SEASON_ALREADY_EXISTS"))
	case errors.Is(err, context.Canceled):
		return err
	}

	loggerFrom(ctx, s.logger).Error().Err(err).Str("op", op).Msg("season operation failed")
	return errs.NewInternalServerError()
}
