// Package handler is the HTTP entry point for the business logic.
//
// Handlers bind and validate requests through the validation package, call
// the service layer and write the response.
package handler

import (
	"github.com/deppfellow/academia/internal/server"
	"github.com/deppfellow/academia/internal/service"
)

// Handlers groups every HTTP handler so the router receives one value.
type Handlers struct {
	Health   *HealthHandler
	Seasons  *SeasonHandler
	Subjects *SubjectHandler
	Tasks    *TaskHandler
}

func NewHandlers(s *server.Server, services *service.Services) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(s),
		Seasons:  NewSeasonHandler(s, services.Seasons),
		Subjects: NewSubjectHandler(s, services.Subjects),
		Tasks:    NewTaskHandler(s, services.Tasks),
	}
}
