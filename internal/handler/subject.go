package handler

import (
	"net/http"

	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/server"
	"github.com/deppfellow/academia/internal/service"
	"github.com/labstack/echo/v4"
)

type SubjectHandler struct {
	Handler
	subjects *service.SubjectService
}

func NewSubjectHandler(s *server.Server, subjects *service.SubjectService) *SubjectHandler {
	return &SubjectHandler{
		Handler:  NewHandler(s),
		subjects: subjects,
	}
}

func (h *SubjectHandler) updateSession(c echo.Context, p *model.UpdateSessionPayload) (*service.SessionUpdate, error) {
	return h.subjects.UpdateSession(c.Request().Context(), p)
}

// UpdateSession stores the new session details and, when they changed,
// notifies registrants and admins. The response carries the notification
// group so clients can follow the per-recipient tasks.
func (h *SubjectHandler) UpdateSession() echo.HandlerFunc {
	return Handle[model.UpdateSessionPayload](h.Handler, h.updateSession, http.StatusOK)
}
