package job

import (
	"context"
	"time"

	"github.com/deppfellow/academia/internal/lib/email"
	"github.com/deppfellow/academia/internal/lib/storage"
	"github.com/deppfellow/academia/internal/model"
	"github.com/pkg/errors"
)

// Task type names stored in Redis.
const (
	TaskNotifyEmail = "mail:notify"
	TaskDeleteFile  = "drive:delete-file"
	TaskCloseWindow = "form:close-window"
)

// Mailer sends one templated email. *email.Client implements it.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject string, template email.Template, data map[string]any) error
}

// RegistrationCloser closes expired registration windows.
type RegistrationCloser interface {
	CloseExpiredRegistrations(ctx context.Context, now time.Time) (int64, error)
}

// Dependencies are the collaborators task bodies call.
type Dependencies struct {
	Mailer   Mailer
	Files    storage.Provider
	Subjects RegistrationCloser
}

// NotifyEmailPayload is one email to one recipient.
type NotifyEmailPayload struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	Template email.Template `json:"template"`
	Data     map[string]any `json:"data"`
}

// DeleteFilePayload names a stored file to remove.
type DeleteFilePayload struct {
	FileID string `json:"file_id"`
}

// CloseWindowPayload closes registrations whose deadline is before Before.
type CloseWindowPayload struct {
	Before time.Time `json:"before"`
}

// InitHandlers registers every task body.
func (j *JobService) InitHandlers(deps Dependencies) {
	j.Register(TaskNotifyEmail, model.TagSendMail, Typed(notifyEmail(deps.Mailer)))
	j.Register(TaskDeleteFile, model.TagDriveFile, Typed(deleteFile(deps.Files)))
	j.Register(TaskCloseWindow, model.TagManageForm, Typed(closeWindow(deps.Subjects)))
}

func notifyEmail(m Mailer) func(context.Context, NotifyEmailPayload) (any, error) {
	return func(ctx context.Context, p NotifyEmailPayload) (any, error) {
		if p.To == "" {
			return nil, errors.New("recipient email is empty")
		}
		if err := m.SendEmail(ctx, p.To, p.Subject, p.Template, p.Data); err != nil {
			return nil, err
		}
		return map[string]string{"to": p.To}, nil
	}
}

func deleteFile(files storage.Provider) func(context.Context, DeleteFilePayload) (any, error) {
	return func(ctx context.Context, p DeleteFilePayload) (any, error) {
		err := files.Delete(ctx, p.FileID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, Ignore("file " + p.FileID + " already gone")
		}
		if err != nil {
			return nil, err
		}
		return map[string]string{"file_id": p.FileID}, nil
	}
}

func closeWindow(subjects RegistrationCloser) func(context.Context, CloseWindowPayload) (any, error) {
	return func(ctx context.Context, p CloseWindowPayload) (any, error) {
		before := p.Before
		if before.IsZero() {
			before = time.Now()
		}
		n, err := subjects.CloseExpiredRegistrations(ctx, before)
		if err != nil {
			return nil, errors.Wrap(err, "close expired registrations")
		}
		if n == 0 {
			return nil, Ignore("no registration window to close")
		}
		return map[string]int64{"closed": n}, nil
	}
}
