package service

import (
	"context"
	"errors"

	"github.com/deppfellow/academia/internal/errs"
	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionUpdate is the outcome of a session change.
type SessionUpdate struct {
	Subject *model.Subject `json:"subject"`
	// NotificationGroup identifies the fan-out; nil when nothing was sent.
	NotificationGroup *uuid.UUID `json:"notificationGroupId"`
	Notified          int        `json:"notified"`
	NotifyFailed      int        `json:"notifyFailed"`
}

type SubjectService struct {
	subjects      repository.SubjectStore
	notifications *NotificationService
	logger        *zerolog.Logger
}

func NewSubjectService(subjects repository.SubjectStore, notifications *NotificationService, logger *zerolog.Logger) *SubjectService {
	return &SubjectService{subjects: subjects, notifications: notifications, logger: logger}
}

// UpdateSession stores new session details and, when they differ from the
// old ones, notifies everyone concerned. Notification problems never undo
// the update.
func (s *SubjectService) UpdateSession(ctx context.Context, payload *model.UpdateSessionPayload) (*SessionUpdate, error) {
	before, err := s.subjects.GetByID(ctx, payload.ID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	subject, err := s.subjects.UpdateSession(ctx, payload.ID, payload.SessionDetails)
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	result := &SessionUpdate{Subject: subject}
	if sameSession(before, subject) {
		return result, nil
	}

	out, err := s.notifications.SessionChanged(ctx, subject)
	if err != nil {
		loggerFrom(ctx, s.logger).Error().Err(err).Str("subject_id", subject.ID.String()).Msg("session change notification not sent")
		return result, nil
	}

	result.NotificationGroup = &out.GroupID
	result.Notified = len(out.Submitted)
	result.NotifyFailed = len(out.Failed)
	return result, nil
}

func sameSession(a, b *model.Subject) bool {
	return a.SessionDay == b.SessionDay &&
		a.SessionTime == b.SessionTime &&
		a.SessionLocation == b.SessionLocation
}

func (s *SubjectService) fail(ctx context.Context, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errs.NewNotFoundError("subject not found", false, errs.Code("SUBJECT_NOT_FOUND"))
	}
	loggerFrom(ctx, s.logger).Error().Err(err).Msg("subject operation failed")
	return errs.NewInternalServerError()
}
