package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/sqlerr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SeasonTx is the set of season operations available inside one unit of
// work. Every call made through it belongs to the same transaction.
type SeasonTx interface {
	// FindCurrent returns every season flagged current. Normally zero or one.
	FindCurrent(ctx context.Context) ([]model.Season, error)
	// DemoteAll clears the current flag everywhere and reports how many rows changed.
	DemoteAll(ctx context.Context) (int64, error)
	Insert(ctx context.Context, payload *model.CreateSeasonPayload, current bool) (*model.Season, error)
	SetCurrent(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Season, error)
	Update(ctx context.Context, payload *model.UpdateSeasonPayload) (*model.Season, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SeasonStore is the consistency store for seasons.
//
// InTx serializes all callers: at most one InTx body runs at a time, and
// its writes become visible all at once when fn returns nil, or not at all.
type SeasonStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx SeasonTx) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Season, error)
	List(ctx context.Context, q model.SeasonQuery) ([]model.Season, error)
	Count(ctx context.Context, q model.SeasonQuery) (int64, error)
	FindCurrentSeason(ctx context.Context) (*model.Season, error)
}

// seasonLockKey is the pg_advisory_xact_lock key shared by every season
// transaction.
const seasonLockKey int64 = 0x5ea5_0001

// maxTxAttempts bounds reruns of a season transaction that failed on a
// serialization failure or deadlock.
const maxTxAttempts = 3

const seasonColumns = `id, number, title, description, image_file_id, current, created_at, updated_at`

type SeasonRepository struct {
	pool *pgxpool.Pool
}

func NewSeasonRepository(pool *pgxpool.Pool) *SeasonRepository {
	return &SeasonRepository{pool: pool}
}

var _ SeasonStore = (*SeasonRepository)(nil)

func (r *SeasonRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx SeasonTx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = r.inTx(ctx, fn)
		if err == nil || !sqlerr.IsRetryable(err) {
			return err
		}
	}
	return err
}

func (r *SeasonRepository) inTx(ctx context.Context, fn func(ctx context.Context, tx SeasonTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin season transaction: %w", err)
	}
	// No-op after a successful Commit.
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, seasonLockKey); err != nil {
		return fmt.Errorf("acquire season lock: %w", err)
	}

	if err := fn(ctx, &seasonTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit season transaction: %w", err)
	}
	return nil
}

func (r *SeasonRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Season, error) {
	return getSeason(ctx, r.pool, id)
}

func (r *SeasonRepository) FindCurrentSeason(ctx context.Context) (*model.Season, error) {
	return one[model.Season](r.pool.Query(ctx,
		`SELECT `+seasonColumns+` FROM seasons WHERE current LIMIT 1`))
}

func (r *SeasonRepository) List(ctx context.Context, q model.SeasonQuery) ([]model.Season, error) {
	q.Normalize()
	where, args := seasonFilter(q)

	sql := fmt.Sprintf(`SELECT %s FROM seasons%s ORDER BY %s %s, id LIMIT %d OFFSET %d`,
		seasonColumns, where, seasonSortColumn(q.Sort), seasonSortDirection(q.Order),
		model.SeasonPageSize, q.Offset())

	return many[model.Season](r.pool.Query(ctx, sql, args...))
}

func (r *SeasonRepository) Count(ctx context.Context, q model.SeasonQuery) (int64, error) {
	q.Normalize()
	where, args := seasonFilter(q)

	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM seasons`+where, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// seasonFilter renders the WHERE clause of q with positional arguments.
func seasonFilter(q model.SeasonQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.Current != nil {
		args = append(args, *q.Current)
		conds = append(conds, fmt.Sprintf("current = $%d", len(args)))
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, "%"+search+"%")
		conds = append(conds, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func seasonSortColumn(sort string) string {
	switch sort {
	case "title":
		return "title"
	case "created_at":
		return "created_at"
	default:
		return "number"
	}
}

func seasonSortDirection(order model.SortOrder) string {
	if order == model.SortAsc {
		return "ASC"
	}
	return "DESC"
}

func getSeason(ctx context.Context, q querier, id uuid.UUID) (*model.Season, error) {
	return one[model.Season](q.Query(ctx,
		`SELECT `+seasonColumns+` FROM seasons WHERE id = $1`, id))
}

type seasonTx struct {
	q pgx.Tx
}

func (t *seasonTx) FindCurrent(ctx context.Context) ([]model.Season, error) {
	return many[model.Season](t.q.Query(ctx,
		`SELECT `+seasonColumns+` FROM seasons WHERE current FOR UPDATE`))
}

func (t *seasonTx) DemoteAll(ctx context.Context) (int64, error) {
	tag, err := t.q.Exec(ctx,
		`UPDATE seasons SET current = false, updated_at = now() WHERE current`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *seasonTx) Insert(ctx context.Context, p *model.CreateSeasonPayload, current bool) (*model.Season, error) {
	return one[model.Season](t.q.Query(ctx, `
		INSERT INTO seasons (number, title, description, image_file_id, current)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+seasonColumns,
		p.Number, p.Title, p.Description, p.ImageFileID, current))
}

func (t *seasonTx) SetCurrent(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE seasons SET current = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *seasonTx) GetByID(ctx context.Context, id uuid.UUID) (*model.Season, error) {
	return getSeason(ctx, t.q, id)
}

func (t *seasonTx) Update(ctx context.Context, p *model.UpdateSeasonPayload) (*model.Season, error) {
	return one[model.Season](t.q.Query(ctx, `
		UPDATE seasons SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			image_file_id = CASE WHEN $4::text IS NULL THEN image_file_id ELSE NULLIF($4::text, '') END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+seasonColumns,
		p.ID, p.Title, p.Description, p.ImageFileID))
}

func (t *seasonTx) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM seasons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
