package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/deppfellow/academia/internal/cache"
	"github.com/deppfellow/academia/internal/errs"
	"github.com/deppfellow/academia/internal/lib/job"
	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/repository"
	"github.com/deppfellow/academia/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seasonFixture struct {
	svc    *SeasonService
	store  *testutil.SeasonStore
	mem    *cache.Memory
	broker *testutil.Broker
}

func newSeasonFixture(t *testing.T, store repository.SeasonStore) *seasonFixture {
	t.Helper()

	logger := zerolog.Nop()
	f := &seasonFixture{
		mem:    cache.NewMemory(),
		broker: testutil.NewBroker(),
	}
	if mem, ok := store.(*testutil.SeasonStore); ok {
		f.store = mem
	}
	jobs := job.NewJobServiceWithClient(&logger, nil, f.broker, testutil.NewResultStore(), nil)
	f.svc = NewSeasonService(store, cache.NewCurrent[model.Season](f.mem, CurrentSeasonKey), jobs, &logger)
	return f
}

func seasonByNumber(t *testing.T, store *testutil.SeasonStore, number int) model.Season {
	t.Helper()
	for _, s := range store.Snapshot() {
		if s.Number == number {
			return s
		}
	}
	t.Fatalf("season %d not found", number)
	return model.Season{}
}

func seedThree(t *testing.T) (*seasonFixture, model.Season) {
	t.Helper()
	store := testutil.NewSeasonStore()
	f := newSeasonFixture(t, store)
	three, err := f.svc.Create(context.Background(), &model.CreateSeasonPayload{Number: 3, Title: "Three"})
	require.NoError(t, err)
	return f, *three
}

func TestCreate_DemotesPreviousCurrent(t *testing.T) {
	f, _ := seedThree(t)
	ctx := context.Background()

	_, err := f.svc.GetCurrent(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, f.mem.Len())

	four, err := f.svc.Create(ctx, &model.CreateSeasonPayload{Number: 4, Title: "A"})
	require.NoError(t, err)

	assert.True(t, four.Current)
	assert.False(t, seasonByNumber(t, f.store, 3).Current)
	assert.True(t, seasonByNumber(t, f.store, 4).Current)
	assert.Equal(t, 1, f.store.CurrentCount())
	assert.Equal(t, 0, f.mem.Len(), "cache stays empty until the next read")
}

func TestPromote_SwapsCurrent(t *testing.T) {
	f, three := seedThree(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, &model.CreateSeasonPayload{Number: 4, Title: "Four"})
	require.NoError(t, err)

	promoted, err := f.svc.Promote(ctx, three.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, promoted.Number)
	assert.True(t, promoted.Current)
	assert.True(t, seasonByNumber(t, f.store, 3).Current)
	assert.False(t, seasonByNumber(t, f.store, 4).Current)
}

func TestPromote_AlreadyCurrent(t *testing.T) {
	f, three := seedThree(t)

	promoted, err := f.svc.Promote(context.Background(), three.ID)
	require.NoError(t, err)
	assert.True(t, promoted.Current)
	assert.Equal(t, 1, f.store.CurrentCount())
}

func TestPromote_NotFound(t *testing.T) {
	f, three := seedThree(t)

	_, err := f.svc.Promote(context.Background(), uuid.New())
	assert.True(t, errs.IsNotFound(err))
	assert.True(t, seasonByNumber(t, f.store, three.Number).Current)
}

func TestCreate_DuplicateNumber(t *testing.T) {
	f, _ := seedThree(t)
	before := f.store.Snapshot()

	_, err := f.svc.Create(context.Background(), &model.CreateSeasonPayload{Number: 3, Title: "Again"})

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 409, httpErr.Status)
	assert.Equal(t, "SEASON_ALREADY_EXISTS", httpErr.Code)
	assert.Equal(t, before, f.store.Snapshot())
}

func TestCreate_FaultAfterDemotionRollsBack(t *testing.T) {
	f, _ := seedThree(t)
	before := f.store.Snapshot()
	f.store.FailNext("Insert", errors.New("connection reset"))

	_, err := f.svc.Create(context.Background(), &model.CreateSeasonPayload{Number: 4, Title: "Four"})

	assert.Equal(t, 500, errs.StatusOf(err))
	assert.Equal(t, before, f.store.Snapshot())
	assert.True(t, seasonByNumber(t, f.store, 3).Current)
}

func TestPromote_FaultAfterDemotionRollsBack(t *testing.T) {
	f, three := seedThree(t)
	four, err := f.svc.Create(context.Background(), &model.CreateSeasonPayload{Number: 4, Title: "Four"})
	require.NoError(t, err)

	before := f.store.Snapshot()
	f.store.FailNext("SetCurrent", errors.New("connection reset"))

	_, err = f.svc.Promote(context.Background(), three.ID)

	assert.Equal(t, 500, errs.StatusOf(err))
	assert.Equal(t, before, f.store.Snapshot())
	assert.True(t, seasonByNumber(t, f.store, four.Number).Current)
	assert.Equal(t, 1, f.store.CurrentCount())
}

func TestDelete_RefusesCurrent(t *testing.T) {
	f, three := seedThree(t)
	before := f.store.Snapshot()

	err := f.svc.Delete(context.Background(), three.ID)

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 409, httpErr.Status)
	assert.Equal(t, "SEASON_ACTIVE", httpErr.Code)
	assert.Equal(t, before, f.store.Snapshot())
}

func TestDelete_RemovesAndCleansUpImage(t *testing.T) {
	f, _ := seedThree(t)
	ctx := context.Background()

	image := "cover-2.png"
	store := f.store
	old := model.Season{Number: 2, Title: "Two", ImageFileID: &image}
	store.Seed(old)
	two := seasonByNumber(t, store, 2)

	require.NoError(t, f.svc.Delete(ctx, two.ID))
	assert.Len(t, store.Snapshot(), 1)

	enq := f.broker.Enqueued()
	require.Len(t, enq, 1)
	assert.Equal(t, job.TaskDeleteFile, enq[0].Task.Type())
	assert.Contains(t, string(enq[0].Task.Payload()), image)

	err := f.svc.Delete(ctx, two.ID)
	assert.True(t, errs.IsNotFound(err))
}

func TestGetCurrent_NoneConfigured(t *testing.T) {
	f := newSeasonFixture(t, testutil.NewSeasonStore())

	_, err := f.svc.GetCurrent(context.Background())

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 404, httpErr.Status)
	assert.Equal(t, "NO_CURRENT_SEASON", httpErr.Code)
	assert.Equal(t, 0, f.mem.Len())
}

func TestGetCurrent_CoherentAfterPromote(t *testing.T) {
	f, three := seedThree(t)
	ctx := context.Background()

	four, err := f.svc.Create(ctx, &model.CreateSeasonPayload{Number: 4, Title: "Four"})
	require.NoError(t, err)

	got, err := f.svc.GetCurrent(ctx)
	require.NoError(t, err)
	require.Equal(t, four.ID, got.ID)

	_, err = f.svc.Promote(ctx, three.ID)
	require.NoError(t, err)

	got, err = f.svc.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, three.ID, got.ID)
	assert.NotEqual(t, four.ID, got.ID)
}

// racingStore lets a reader populate the cache while a transaction is
// between its writes and its commit.
type racingStore struct {
	*testutil.SeasonStore
	beforeCommit func()
}

func (r *racingStore) InTx(ctx context.Context, fn func(context.Context, repository.SeasonTx) error) error {
	return r.SeasonStore.InTx(ctx, func(ctx context.Context, tx repository.SeasonTx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if r.beforeCommit != nil {
			r.beforeCommit()
		}
		return nil
	})
}

func TestGetCurrent_ReaderDuringCommitCannotLeaveStaleEntry(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewSeasonStore()
	racing := &racingStore{SeasonStore: mem}
	f := newSeasonFixture(t, racing)
	f.store = mem

	three, err := f.svc.Create(ctx, &model.CreateSeasonPayload{Number: 3, Title: "Three"})
	require.NoError(t, err)

	racing.beforeCommit = func() {
		stale, err := f.svc.GetCurrent(ctx)
		require.NoError(t, err)
		require.Equal(t, three.ID, stale.ID)
	}
	four, err := f.svc.Create(ctx, &model.CreateSeasonPayload{Number: 4, Title: "Four"})
	require.NoError(t, err)
	racing.beforeCommit = nil

	got, err := f.svc.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, four.ID, got.ID)
}

// parkedReader holds FindCurrentSeason after it has read the row until
// release is closed.
type parkedReader struct {
	*testutil.SeasonStore
	read    chan struct{}
	release chan struct{}
}

func (p *parkedReader) FindCurrentSeason(ctx context.Context) (*model.Season, error) {
	season, err := p.SeasonStore.FindCurrentSeason(ctx)
	if p.read != nil {
		close(p.read)
		<-p.release
	}
	return season, err
}

func TestGetCurrent_LoadParkedAcrossPromoteIsDiscarded(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewSeasonStore()
	parked := &parkedReader{SeasonStore: mem}
	f := newSeasonFixture(t, parked)
	f.store = mem

	three, err := f.svc.Create(ctx, &model.CreateSeasonPayload{Number: 3, Title: "Three"})
	require.NoError(t, err)
	four, err := f.svc.Create(ctx, &model.CreateSeasonPayload{Number: 4, Title: "Four"})
	require.NoError(t, err)

	parked.read = make(chan struct{})
	parked.release = make(chan struct{})

	done := make(chan *model.Season)
	go func() {
		got, err := f.svc.GetCurrent(ctx)
		assert.NoError(t, err)
		done <- got
	}()

	<-parked.read
	_, err = f.svc.Promote(ctx, three.ID)
	require.NoError(t, err)
	parked.read = nil
	close(parked.release)

	stale := <-done
	require.NotNil(t, stale)
	assert.Equal(t, four.ID, stale.ID, "the parked reader saw the old row")

	got, err := f.svc.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, three.ID, got.ID)
}

func TestUpdate_ReplacesImageAndKeepsFlag(t *testing.T) {
	f, three := seedThree(t)
	ctx := context.Background()

	first := "a.png"
	_, err := f.svc.Update(ctx, &model.UpdateSeasonPayload{ID: three.ID, ImageFileID: &first})
	require.NoError(t, err)
	assert.Empty(t, f.broker.Enqueued())

	_, err = f.svc.GetCurrent(ctx)
	require.NoError(t, err)

	second := "b.png"
	title := "Three, revised"
	updated, err := f.svc.Update(ctx, &model.UpdateSeasonPayload{ID: three.ID, ImageFileID: &second, Title: &title})
	require.NoError(t, err)

	assert.True(t, updated.Current)
	assert.Equal(t, title, updated.Title)
	require.Len(t, f.broker.Enqueued(), 1)
	assert.Contains(t, string(f.broker.Enqueued()[0].Task.Payload()), first)

	got, err := f.svc.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
}

func TestList_PaginatesAndFilters(t *testing.T) {
	store := testutil.NewSeasonStore()
	f := newSeasonFixture(t, store)
	ctx := context.Background()

	for n := 1; n <= 25; n++ {
		store.Seed(model.Season{Number: n, Title: "Season"})
	}

	page, err := f.svc.List(ctx, model.SeasonQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Data, model.SeasonPageSize)
	assert.Equal(t, 25, page.Data[0].Number)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 2, page.TotalPages)

	page, err = f.svc.List(ctx, model.SeasonQuery{Page: 2, Order: model.SortAsc})
	require.NoError(t, err)
	assert.Len(t, page.Data, 5)
	assert.Equal(t, 21, page.Data[0].Number)

	yes := true
	page, err = f.svc.List(ctx, model.SeasonQuery{Current: &yes})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.NotNil(t, page.Data)

	n, err := f.svc.Count(ctx, model.SeasonQuery{Current: &yes})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInvariant_RandomSequence(t *testing.T) {
	store := testutil.NewSeasonStore()
	f := newSeasonFixture(t, store)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	everCurrent := false
	for i := 0; i < 400; i++ {
		seasons := store.Snapshot()
		switch op := rng.Intn(3); {
		case op == 0 || len(seasons) == 0:
			// Numbers collide on purpose now and then.
			_, err := f.svc.Create(ctx, &model.CreateSeasonPayload{Number: rng.Intn(60) + 1, Title: "S"})
			if err == nil {
				everCurrent = true
			} else {
				require.True(t, errs.IsConflict(err), err)
			}
		case op == 1:
			target := seasons[rng.Intn(len(seasons))]
			_, err := f.svc.Promote(ctx, target.ID)
			require.NoError(t, err)
			everCurrent = true
		default:
			target := seasons[rng.Intn(len(seasons))]
			err := f.svc.Delete(ctx, target.ID)
			if target.Current {
				require.True(t, errs.IsConflict(err))
			} else {
				require.NoError(t, err)
			}
		}

		count := store.CurrentCount()
		require.LessOrEqual(t, count, 1)
		if everCurrent {
			require.Equal(t, 1, count, "step %d", i)
		}
	}
}

func TestInvariant_ConcurrentCalls(t *testing.T) {
	store := testutil.NewSeasonStore()
	f := newSeasonFixture(t, store)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, &model.CreateSeasonPayload{Number: 1, Title: "One"})
	require.NoError(t, err)

	stop := make(chan struct{})
	violations := make(chan int, 1)
	go func() {
		for {
			select {
			case <-stop:
				close(violations)
				return
			default:
				if n := store.CurrentCount(); n != 1 {
					violations <- n
					close(violations)
					return
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if i%2 == 0 {
					_, _ = f.svc.Create(ctx, &model.CreateSeasonPayload{Number: 2 + w*100 + i, Title: "C"})
					continue
				}
				seasons := store.Snapshot()
				_, err := f.svc.Promote(ctx, seasons[(w+i)%len(seasons)].ID)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()
	close(stop)

	n, violated := <-violations
	assert.False(t, violated, "observed %d current seasons", n)
	assert.Equal(t, 1, store.CurrentCount())
}
