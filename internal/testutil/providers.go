package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/deppfellow/academia/internal/lib/email"
	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/repository"
	"github.com/google/uuid"
)

// SentEmail is one call to Mailer.SendEmail.
type SentEmail struct {
	To       string
	Subject  string
	Template email.Template
	Data     map[string]any
}

// Mailer records sends and fails for the addresses in FailFor.
type Mailer struct {
	mu      sync.Mutex
	Sent    []SentEmail
	FailFor map[string]error
}

func NewMailer() *Mailer {
	return &Mailer{FailFor: map[string]error{}}
}

func (m *Mailer) SendEmail(_ context.Context, to, subject string, tpl email.Template, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.FailFor[strings.ToLower(to)]; ok {
		return err
	}
	m.Sent = append(m.Sent, SentEmail{To: to, Subject: subject, Template: tpl, Data: data})
	return nil
}

// Recipients returns the addresses sent to, in order.
func (m *Mailer) Recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Sent))
	for _, s := range m.Sent {
		out = append(out, s.To)
	}
	return out
}

// Subjects is an in-memory repository.SubjectStore.
type Subjects struct {
	mu            sync.Mutex
	subjects      map[uuid.UUID]model.Subject
	registrations map[uuid.UUID][]model.Student
	// CurrentSeason limits CloseExpiredRegistrations like the SQL does.
	CurrentSeason uuid.UUID
}

var _ repository.SubjectStore = (*Subjects)(nil)

func NewSubjects() *Subjects {
	return &Subjects{
		subjects:      map[uuid.UUID]model.Subject{},
		registrations: map[uuid.UUID][]model.Student{},
	}
}

func (s *Subjects) Add(subject model.Subject, registrants ...model.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[subject.ID] = subject
	s.registrations[subject.ID] = append(s.registrations[subject.ID], registrants...)
}

func (s *Subjects) GetByID(_ context.Context, id uuid.UUID) (*model.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &subject, nil
}

func (s *Subjects) ListRegistrants(_ context.Context, subjectID uuid.UUID) ([]model.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Student{}, s.registrations[subjectID]...), nil
}

func (s *Subjects) UpdateSession(_ context.Context, id uuid.UUID, d model.SessionDetails) (*model.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	subject.SessionDay = d.Day
	subject.SessionTime = d.Time
	subject.SessionLocation = d.Location
	s.subjects[id] = subject
	return &subject, nil
}

func (s *Subjects) CloseExpiredRegistrations(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, subject := range s.subjects {
		if subject.SeasonID != s.CurrentSeason || !subject.RegistrationOpen {
			continue
		}
		if subject.RegistrationClosesAt == nil || !subject.RegistrationClosesAt.Before(now) {
			continue
		}
		subject.RegistrationOpen = false
		s.subjects[id] = subject
		n++
	}
	return n, nil
}

// Admins is an in-memory repository.AdminStore.
type Admins struct {
	List []model.Admin
	Err  error
}

var _ repository.AdminStore = (*Admins)(nil)

func (a *Admins) ListNotifiable(context.Context) ([]model.Admin, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	out := []model.Admin{}
	for _, admin := range a.List {
		if admin.Notify {
			out = append(out, admin)
		}
	}
	return out, nil
}

// ErrProvider is a generic provider failure for tests.
var ErrProvider = errors.New("provider unavailable")
