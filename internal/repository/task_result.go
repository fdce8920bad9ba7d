package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/deppfellow/academia/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, name, tag, group_id, state, args, result, failure, created_at, started_at, finished_at`

// TaskResultStore is the full result store: the writes used by the job
// executor plus the reads behind the task status endpoints.
type TaskResultStore interface {
	Create(ctx context.Context, rec *model.TaskRecord) (bool, error)
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, state model.TaskState, result json.RawMessage) error
	Fail(ctx context.Context, id uuid.UUID, info model.TaskFailureInfo) error
	Get(ctx context.Context, id uuid.UUID) (*model.TaskRecord, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]model.TaskRecord, error)
	ListStale(ctx context.Context, startedBefore time.Time) ([]model.TaskRecord, error)
}

var _ TaskResultStore = (*TaskResultRepository)(nil)

// TaskResultRepository is the durable result store of background tasks.
//
// Only the job package writes to it. State changes are conditional
// updates, so a record leaves PENDING at most once and never leaves a
// terminal state.
type TaskResultRepository struct {
	pool *pgxpool.Pool
}

func NewTaskResultRepository(pool *pgxpool.Pool) *TaskResultRepository {
	return &TaskResultRepository{pool: pool}
}

// Create inserts a PENDING record. It reports false, leaving the existing
// row untouched, when a record with rec.ID is already there.
func (r *TaskResultRepository) Create(ctx context.Context, rec *model.TaskRecord) (bool, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO task_results (id, name, tag, group_id, state, args)
		VALUES ($1, $2, $3, $4, 'PENDING', $5)
		ON CONFLICT (id) DO NOTHING
		RETURNING state, created_at`,
		rec.ID, rec.Name, rec.Tag, rec.GroupID, rec.Args,
	).Scan(&rec.State, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Claim moves a PENDING record to STARTED. It reports false when the record
// was already claimed, which is how redeliveries are recognized.
func (r *TaskResultRepository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE task_results SET state = 'STARTED', started_at = now()
		WHERE id = $1 AND state = 'PENDING'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Complete records SUCCESS or IGNORED.
func (r *TaskResultRepository) Complete(ctx context.Context, id uuid.UUID, state model.TaskState, result json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE task_results SET state = $2, result = $3, finished_at = now()
		WHERE id = $1 AND state IN ('PENDING', 'STARTED')`,
		id, state, result)
	return err
}

// Fail records FAILURE together with its failure metadata.
func (r *TaskResultRepository) Fail(ctx context.Context, id uuid.UUID, info model.TaskFailureInfo) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE task_results SET state = 'FAILURE', failure = $2, finished_at = now()
		WHERE id = $1 AND state IN ('PENDING', 'STARTED')`,
		id, info)
	return err
}

func (r *TaskResultRepository) Get(ctx context.Context, id uuid.UUID) (*model.TaskRecord, error) {
	return one[model.TaskRecord](r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM task_results WHERE id = $1`, id))
}

func (r *TaskResultRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]model.TaskRecord, error) {
	return many[model.TaskRecord](r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM task_results WHERE group_id = $1 ORDER BY created_at, id`, groupID))
}

// ListStale returns records claimed before startedBefore that never reached
// a terminal state. Their worker is presumed lost; redeliveries skip them.
func (r *TaskResultRepository) ListStale(ctx context.Context, startedBefore time.Time) ([]model.TaskRecord, error) {
	return many[model.TaskRecord](r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM task_results
		WHERE state = 'STARTED' AND started_at < $1
		ORDER BY started_at, id`, startedBefore))
}
