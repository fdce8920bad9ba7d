package repository

import (
	"context"
	"time"

	"github.com/deppfellow/academia/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subjectColumns = `id, season_id, code, name, session_day, session_time, session_location,
	registration_open, registration_closes_at, created_at, updated_at`

// SubjectStore is the read/write surface services use for subjects.
type SubjectStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Subject, error)
	ListRegistrants(ctx context.Context, subjectID uuid.UUID) ([]model.Student, error)
	UpdateSession(ctx context.Context, id uuid.UUID, d model.SessionDetails) (*model.Subject, error)
	CloseExpiredRegistrations(ctx context.Context, now time.Time) (int64, error)
}

// AdminStore lists admins.
type AdminStore interface {
	ListNotifiable(ctx context.Context) ([]model.Admin, error)
}

var (
	_ SubjectStore = (*SubjectRepository)(nil)
	_ AdminStore   = (*AdminRepository)(nil)
)

type SubjectRepository struct {
	pool *pgxpool.Pool
}

func NewSubjectRepository(pool *pgxpool.Pool) *SubjectRepository {
	return &SubjectRepository{pool: pool}
}

func (r *SubjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Subject, error) {
	return one[model.Subject](r.pool.Query(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id))
}

// ListRegistrants returns the students registered to a subject.
func (r *SubjectRepository) ListRegistrants(ctx context.Context, subjectID uuid.UUID) ([]model.Student, error) {
	return many[model.Student](r.pool.Query(ctx, `
		SELECT st.id, st.name, st.email, st.created_at, st.updated_at
		FROM registrations rg
		JOIN students st ON st.id = rg.student_id
		WHERE rg.subject_id = $1
		ORDER BY st.name, st.id`, subjectID))
}

func (r *SubjectRepository) UpdateSession(ctx context.Context, id uuid.UUID, d model.SessionDetails) (*model.Subject, error) {
	return one[model.Subject](r.pool.Query(ctx, `
		UPDATE subjects SET session_day = $2, session_time = $3, session_location = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+subjectColumns,
		id, d.Day, d.Time, d.Location))
}

// CloseExpiredRegistrations closes every open registration window of the
// current season whose deadline is before now.
func (r *SubjectRepository) CloseExpiredRegistrations(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subjects SET registration_open = false, updated_at = now()
		WHERE registration_open
		  AND registration_closes_at IS NOT NULL
		  AND registration_closes_at < $1
		  AND season_id IN (SELECT id FROM seasons WHERE current)`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type AdminRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// ListNotifiable returns the admins who opted into notifications.
func (r *AdminRepository) ListNotifiable(ctx context.Context) ([]model.Admin, error) {
	return many[model.Admin](r.pool.Query(ctx, `
		SELECT id, name, email, notify, created_at, updated_at
		FROM admins WHERE notify ORDER BY name, id`))
}
