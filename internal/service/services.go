package service

import (
	"github.com/deppfellow/academia/internal/cache"
	"github.com/deppfellow/academia/internal/lib/job"
	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/repository"
	"github.com/deppfellow/academia/internal/server"
)

type Services struct {
	Auth          *AuthService
	Job           *job.JobService
	Seasons       *SeasonService
	Subjects      *SubjectService
	Notifications *NotificationService
	Tasks         *TaskService
}

func NewService(s *server.Server, repos *repository.Repositories) (*Services, error) {
	authService := NewAuthService(s)

	key := CurrentSeasonKey
	if prefix := s.Config.Cache.KeyPrefix; prefix != "" {
		key = prefix + ":" + key
	}
	current := cache.NewCurrent[model.Season](s.Cache, key)

	seasons := NewSeasonService(repos.Seasons, current, s.Job, s.Logger)
	notifications := NewNotificationService(repos.Seasons, repos.Subjects, repos.Admins, s.Job, s.Logger)

	return &Services{
		Job:           s.Job,
		Auth:          authService,
		Seasons:       seasons,
		Subjects:      NewSubjectService(repos.Subjects, notifications, s.Logger),
		Notifications: notifications,
		Tasks:         NewTaskService(repos.TaskResults, s.Logger),
	}, nil
}
