package service

import (
	"context"

	"github.com/deppfellow/academia/internal/errs"
	"github.com/deppfellow/academia/internal/lib/email"
	"github.com/deppfellow/academia/internal/lib/job"
	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/repository"
	"github.com/rs/zerolog"
)

// sessionNotice holds the fields every session-changed email shares.
type sessionNotice struct {
	Subject string
	Data    map[string]any
}

var sessionChangedLeaf = job.Leaf[sessionNotice]{
	Name: job.TaskNotifyEmail,
	Tag:  model.TagSendMail,
	Args: func(r model.Recipient, n sessionNotice) any {
		data := make(map[string]any, len(n.Data)+1)
		for k, v := range n.Data {
			data[k] = v
		}
		data["RecipientName"] = r.Name
		return job.NotifyEmailPayload{
			To:       r.Email,
			Subject:  n.Subject,
			Template: email.TemplateSessionChanged,
			Data:     data,
		}
	},
}

// NotificationService prepares recipients and parameters of domain
// notifications and fans them out as one mail task per recipient.
type NotificationService struct {
	seasons  repository.SeasonStore
	subjects repository.SubjectStore
	admins   repository.AdminStore
	jobs     job.Submitter
	logger   *zerolog.Logger
}

func NewNotificationService(seasons repository.SeasonStore, subjects repository.SubjectStore, admins repository.AdminStore, jobs job.Submitter, logger *zerolog.Logger) *NotificationService {
	return &NotificationService{seasons: seasons, subjects: subjects, admins: admins, jobs: jobs, logger: logger}
}

// SessionChanged notifies the subject's registrants and the notifiable
// admins. Someone who is both is emailed once.
func (n *NotificationService) SessionChanged(ctx context.Context, subject *model.Subject) (*job.FanOut, error) {
	recipients, err := n.sessionRecipients(ctx, subject)
	if err != nil {
		return nil, err
	}

	out, err := job.Dispatch(ctx, n.jobs, recipients, func(ctx context.Context) (sessionNotice, error) {
		return n.buildSessionNotice(ctx, subject)
	}, sessionChangedLeaf)
	if err != nil {
		return nil, err
	}

	for _, f := range out.Failed {
		loggerFrom(ctx, n.logger).Error().
			Err(f.Err).
			Str("group_id", out.GroupID.String()).
			Msg("failed to submit session notification")
	}
	loggerFrom(ctx, n.logger).Info().
		Str("subject_id", subject.ID.String()).
		Str("group_id", out.GroupID.String()).
		Int("submitted", len(out.Submitted)).
		Int("failed", len(out.Failed)).
		Msg("session change notifications dispatched")

	return out, nil
}

func (n *NotificationService) sessionRecipients(ctx context.Context, subject *model.Subject) ([]model.Recipient, error) {
	students, err := n.subjects.ListRegistrants(ctx, subject.ID)
	if err != nil {
		loggerFrom(ctx, n.logger).Error().Err(err).Msg("failed to list registrants")
		return nil, errs.NewInternalServerError()
	}
	admins, err := n.admins.ListNotifiable(ctx)
	if err != nil {
		loggerFrom(ctx, n.logger).Error().Err(err).Msg("failed to list admins")
		return nil, errs.NewInternalServerError()
	}

	recipients := make([]model.Recipient, 0, len(students)+len(admins))
	for _, st := range students {
		recipients = append(recipients, model.Recipient{Name: st.Name, Email: st.Email})
	}
	for _, a := range admins {
		recipients = append(recipients, model.Recipient{Name: a.Name, Email: a.Email})
	}
	return model.DedupRecipients(recipients), nil
}

func (n *NotificationService) buildSessionNotice(ctx context.Context, subject *model.Subject) (sessionNotice, error) {
	var fields []errs.FieldError
	if subject.SessionDay == "" {
		fields = append(fields, errs.FieldError{Field: "day", Error: "is required"})
	}
	if subject.SessionTime == "" {
		fields = append(fields, errs.FieldError{Field: "time", Error: "is required"})
	}
	if subject.SessionLocation == "" {
		fields = append(fields, errs.FieldError{Field: "location", Error: "is required"})
	}
	if len(fields) > 0 {
		return sessionNotice{}, errs.NewBadRequestError("subject session is incomplete", true, nil, fields, nil)
	}

	seasonTitle := ""
	if season, err := n.seasons.GetByID(ctx, subject.SeasonID); err == nil {
		seasonTitle = season.Title
	}

	return sessionNotice{
		Subject: "Session changed: " + subject.Code + " " + subject.Name,
		Data: map[string]any{
			"SubjectCode":     subject.Code,
			"SubjectName":     subject.Name,
			"SeasonTitle":     seasonTitle,
			"SessionDay":      subject.SessionDay,
			"SessionTime":     subject.SessionTime,
			"SessionLocation": subject.SessionLocation,
		},
	}, nil
}
