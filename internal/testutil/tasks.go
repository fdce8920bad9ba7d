package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/repository"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ResultStore is an in-memory repository.TaskResultStore with the same
// conditional transitions as the Postgres one.
type ResultStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]model.TaskRecord
	seq     int

	// FailWrites, when set, is returned by Complete and Fail.
	FailWrites error
}

var _ repository.TaskResultStore = (*ResultStore)(nil)

func NewResultStore() *ResultStore {
	return &ResultStore{records: map[uuid.UUID]model.TaskRecord{}}
}

func (s *ResultStore) Create(_ context.Context, rec *model.TaskRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return false, nil
	}
	s.seq++
	rec.State = model.TaskPending
	// Strictly increasing so group listings keep submission order.
	rec.CreatedAt = time.Unix(0, 0).Add(time.Duration(s.seq) * time.Millisecond)
	s.records[rec.ID] = *rec
	return true, nil
}

func (s *ResultStore) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.State != model.TaskPending {
		return false, nil
	}
	now := time.Now()
	rec.State = model.TaskStarted
	rec.StartedAt = &now
	s.records[id] = rec
	return true, nil
}

func (s *ResultStore) finish(id uuid.UUID, update func(*model.TaskRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	rec, ok := s.records[id]
	if !ok || rec.State.Terminal() {
		return nil
	}
	now := time.Now()
	rec.FinishedAt = &now
	update(&rec)
	s.records[id] = rec
	return nil
}

func (s *ResultStore) Complete(_ context.Context, id uuid.UUID, state model.TaskState, result json.RawMessage) error {
	return s.finish(id, func(rec *model.TaskRecord) {
		rec.State = state
		rec.Result = result
	})
}

func (s *ResultStore) Fail(_ context.Context, id uuid.UUID, info model.TaskFailureInfo) error {
	return s.finish(id, func(rec *model.TaskRecord) {
		rec.State = model.TaskFailure
		rec.Failure = &info
	})
}

func (s *ResultStore) Get(_ context.Context, id uuid.UUID) (*model.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (s *ResultStore) ListByGroup(_ context.Context, groupID uuid.UUID) ([]model.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.TaskRecord{}
	for _, rec := range s.records {
		if rec.GroupID != nil && *rec.GroupID == groupID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *ResultStore) ListStale(_ context.Context, startedBefore time.Time) ([]model.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.TaskRecord{}
	for _, rec := range s.records {
		if rec.State == model.TaskStarted && rec.StartedAt != nil && rec.StartedAt.Before(startedBefore) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(*out[j].StartedAt) })
	return out, nil
}

// Backdate moves the claim time of a STARTED record.
func (s *ResultStore) Backdate(id uuid.UUID, startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok {
		rec.StartedAt = &startedAt
		s.records[id] = rec
	}
}

// Enqueued is one task accepted by Broker.
type Enqueued struct {
	Task     *asynq.Task
	ID       string
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// Broker is a job.Enqueuer that keeps tasks in memory until Deliver.
type Broker struct {
	mu      sync.Mutex
	pending []Enqueued
	all     []Enqueued
	ids     map[string]bool

	// Reject, when set, decides whether an enqueue fails.
	Reject func(task *asynq.Task) error
}

func NewBroker() *Broker {
	return &Broker{ids: map[string]bool{}}
}

func (b *Broker) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Reject != nil {
		if err := b.Reject(task); err != nil {
			return nil, err
		}
	}

	e := Enqueued{Task: task, Queue: "default", MaxRetry: 25}
	for _, opt := range opts {
		switch opt.Type() {
		case asynq.TaskIDOpt:
			e.ID = opt.Value().(string)
		case asynq.QueueOpt:
			e.Queue = opt.Value().(string)
		case asynq.MaxRetryOpt:
			e.MaxRetry = opt.Value().(int)
		case asynq.TimeoutOpt:
			e.Timeout = opt.Value().(time.Duration)
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if b.ids[e.ID] {
		return nil, asynq.ErrTaskIDConflict
	}
	b.ids[e.ID] = true

	b.pending = append(b.pending, e)
	b.all = append(b.all, e)
	return &asynq.TaskInfo{ID: e.ID, Queue: e.Queue, Type: task.Type(), Payload: task.Payload(), MaxRetry: e.MaxRetry}, nil
}

// Enqueued returns every task ever accepted, in order.
func (b *Broker) Enqueued() []Enqueued {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Enqueued(nil), b.all...)
}

// Deliver hands every pending task to h once and clears the queue. It
// returns the handler errors by task id.
func (b *Broker) Deliver(ctx context.Context, h asynq.Handler) map[string]error {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	errs := map[string]error{}
	for _, e := range batch {
		if err := h.ProcessTask(ctx, e.Task); err != nil {
			errs[e.ID] = err
		}
	}
	return errs
}

// Redeliver hands every task ever accepted to h again, as an
// at-least-once broker may.
func (b *Broker) Redeliver(ctx context.Context, h asynq.Handler) {
	for _, e := range b.Enqueued() {
		_ = h.ProcessTask(ctx, e.Task)
	}
}

// All returns every record in creation order.
func (s *ResultStore) All() []model.TaskRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.TaskRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
