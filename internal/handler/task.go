package handler

import (
	"net/http"
	"time"

	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/server"
	"github.com/deppfellow/academia/internal/service"
	"github.com/labstack/echo/v4"
)

type TaskHandler struct {
	Handler
	tasks *service.TaskService
}

func NewTaskHandler(s *server.Server, tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{
		Handler: NewHandler(s),
		tasks:   tasks,
	}
}

func (h *TaskHandler) get(c echo.Context, p *model.TaskIDPayload) (*model.TaskRecord, error) {
	return h.tasks.Get(c.Request().Context(), p.ID)
}

func (h *TaskHandler) listByGroup(c echo.Context, p *model.TaskGroupPayload) ([]model.TaskRecord, error) {
	return h.tasks.ListByGroup(c.Request().Context(), p.GroupID)
}

func (h *TaskHandler) listStale(c echo.Context, p *model.StaleTasksPayload) ([]model.TaskRecord, error) {
	return h.tasks.ListStale(c.Request().Context(), time.Duration(p.OlderThan)*time.Second)
}

func (h *TaskHandler) Get() echo.HandlerFunc {
	return Handle[model.TaskIDPayload](h.Handler, h.get, http.StatusOK)
}

func (h *TaskHandler) ListByGroup() echo.HandlerFunc {
	return Handle[model.TaskGroupPayload](h.Handler, h.listByGroup, http.StatusOK)
}

func (h *TaskHandler) ListStale() echo.HandlerFunc {
	return Handle[model.StaleTasksPayload](h.Handler, h.listStale, http.StatusOK)
}
