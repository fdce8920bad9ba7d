// Package testutil provides in-memory doubles of the Postgres stores, the
// broker client and the providers, for tests that must not need a database
// or Redis.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// SeasonStore is an in-memory repository.SeasonStore.
//
// Transactions run one at a time under a single mutex on a private copy of
// the committed state, which replaces the committed state only when the
// transaction body returns nil. The number and single-current unique
// indexes are enforced per statement, like the Postgres schema does.
type SeasonStore struct {
	txMu sync.Mutex

	mu        sync.RWMutex
	committed map[uuid.UUID]model.Season

	faultMu sync.Mutex
	faults  map[string]error

	now func() time.Time
}

var _ repository.SeasonStore = (*SeasonStore)(nil)

func NewSeasonStore() *SeasonStore {
	return &SeasonStore{
		committed: map[uuid.UUID]model.Season{},
		faults:    map[string]error{},
		now:       time.Now,
	}
}

// FailNext makes the next call of the named SeasonTx method (e.g.
// "SetCurrent") return err instead of running.
func (s *SeasonStore) FailNext(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = err
}

func (s *SeasonStore) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	err, ok := s.faults[op]
	if ok {
		delete(s.faults, op)
	}
	return err
}

// Seed inserts seasons directly as committed state.
func (s *SeasonStore) Seed(seasons ...model.Season) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, season := range seasons {
		if season.ID == uuid.Nil {
			season.ID = uuid.New()
		}
		s.committed[season.ID] = season
	}
}

// Snapshot returns the committed seasons ordered by number.
func (s *SeasonStore) Snapshot() []model.Season {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedSeasons(s.committed)
}

// CurrentCount counts committed seasons flagged current.
func (s *SeasonStore) CurrentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, season := range s.committed {
		if season.Current {
			n++
		}
	}
	return n
}

func (s *SeasonStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.SeasonTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := make(map[uuid.UUID]model.Season, len(s.committed))
	for k, v := range s.committed {
		work[k] = v
	}
	s.mu.RUnlock()

	if err := fn(ctx, &seasonTx{store: s, rows: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = work
	s.mu.Unlock()
	return nil
}

func (s *SeasonStore) GetByID(_ context.Context, id uuid.UUID) (*model.Season, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	season, ok := s.committed[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &season, nil
}

func (s *SeasonStore) FindCurrentSeason(_ context.Context) (*model.Season, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, season := range sortedSeasons(s.committed) {
		if season.Current {
			return &season, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *SeasonStore) List(_ context.Context, q model.SeasonQuery) ([]model.Season, error) {
	q.Normalize()

	s.mu.RLock()
	matched := filterSeasons(s.committed, q)
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		less := seasonLess(matched[i], matched[j], q.Sort)
		if q.Order == model.SortAsc {
			return less
		}
		return seasonLess(matched[j], matched[i], q.Sort)
	})

	start := q.Offset()
	if start >= len(matched) {
		return []model.Season{}, nil
	}
	end := min(start+model.SeasonPageSize, len(matched))
	return matched[start:end], nil
}

func (s *SeasonStore) Count(_ context.Context, q model.SeasonQuery) (int64, error) {
	q.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(filterSeasons(s.committed, q))), nil
}

func filterSeasons(rows map[uuid.UUID]model.Season, q model.SeasonQuery) []model.Season {
	out := []model.Season{}
	for _, season := range sortedSeasons(rows) {
		if q.Matches(season) {
			out = append(out, season)
		}
	}
	return out
}

func seasonLess(a, b model.Season, key string) bool {
	switch key {
	case "title":
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	case "created_at":
		return a.CreatedAt.Before(b.CreatedAt)
	default:
		return a.Number < b.Number
	}
}

func sortedSeasons(rows map[uuid.UUID]model.Season) []model.Season {
	out := make([]model.Season, 0, len(rows))
	for _, season := range rows {
		out = append(out, season)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"" + constraint + "\"",
		TableName:      "seasons",
		ConstraintName: constraint,
	}
}

type seasonTx struct {
	store *SeasonStore
	rows  map[uuid.UUID]model.Season
}

func (t *seasonTx) hasOtherCurrent(id uuid.UUID) bool {
	for k, season := range t.rows {
		if k != id && season.Current {
			return true
		}
	}
	return false
}

func (t *seasonTx) FindCurrent(_ context.Context) ([]model.Season, error) {
	if err := t.store.fault("FindCurrent"); err != nil {
		return nil, err
	}
	out := []model.Season{}
	for _, season := range sortedSeasons(t.rows) {
		if season.Current {
			out = append(out, season)
		}
	}
	return out, nil
}

func (t *seasonTx) DemoteAll(_ context.Context) (int64, error) {
	if err := t.store.fault("DemoteAll"); err != nil {
		return 0, err
	}
	var n int64
	for id, season := range t.rows {
		if season.Current {
			season.Current = false
			season.UpdatedAt = t.store.now()
			t.rows[id] = season
			n++
		}
	}
	return n, nil
}

func (t *seasonTx) Insert(_ context.Context, p *model.CreateSeasonPayload, current bool) (*model.Season, error) {
	if err := t.store.fault("Insert"); err != nil {
		return nil, err
	}
	for _, season := range t.rows {
		if season.Number == p.Number {
			return nil, uniqueViolation("seasons_number_key")
		}
	}
	if current && t.hasOtherCurrent(uuid.Nil) {
		return nil, uniqueViolation("seasons_single_current")
	}

	now := t.store.now()
	season := model.Season{
		Base:        model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Number:      p.Number,
		Title:       p.Title,
		Description: p.Description,
		ImageFileID: p.ImageFileID,
		Current:     current,
	}
	t.rows[season.ID] = season
	return &season, nil
}

func (t *seasonTx) SetCurrent(_ context.Context, id uuid.UUID) error {
	if err := t.store.fault("SetCurrent"); err != nil {
		return err
	}
	season, ok := t.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if t.hasOtherCurrent(id) {
		return uniqueViolation("seasons_single_current")
	}
	season.Current = true
	season.UpdatedAt = t.store.now()
	t.rows[id] = season
	return nil
}

func (t *seasonTx) GetByID(_ context.Context, id uuid.UUID) (*model.Season, error) {
	season, ok := t.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &season, nil
}

func (t *seasonTx) Update(_ context.Context, p *model.UpdateSeasonPayload) (*model.Season, error) {
	if err := t.store.fault("Update"); err != nil {
		return nil, err
	}
	season, ok := t.rows[p.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Title != nil {
		season.Title = *p.Title
	}
	if p.Description != nil {
		season.Description = *p.Description
	}
	if p.ImageFileID != nil {
		if *p.ImageFileID == "" {
			season.ImageFileID = nil
		} else {
			v := *p.ImageFileID
			season.ImageFileID = &v
		}
	}
	season.UpdatedAt = t.store.now()
	t.rows[p.ID] = season
	return &season, nil
}

func (t *seasonTx) Delete(_ context.Context, id uuid.UUID) error {
	if err := t.store.fault("Delete"); err != nil {
		return err
	}
	if _, ok := t.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t.rows, id)
	return nil
}
