package handler

import (
	"net/http"

	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/server"
	"github.com/deppfellow/academia/internal/service"
	"github.com/labstack/echo/v4"
)

type SeasonHandler struct {
	Handler
	seasons *service.SeasonService
}

func NewSeasonHandler(s *server.Server, seasons *service.SeasonService) *SeasonHandler {
	return &SeasonHandler{
		Handler: NewHandler(s),
		seasons: seasons,
	}
}

// SeasonCount is the body of GET /seasons/count.
type SeasonCount struct {
	Count int64 `json:"count"`
}

// noPayload binds nothing; used by routes without input.
type noPayload struct{}

func (*noPayload) Validate() error { return nil }

func (h *SeasonHandler) list(c echo.Context, q *model.SeasonQuery) (*model.PaginatedResponse[model.Season], error) {
	return h.seasons.List(c.Request().Context(), *q)
}

func (h *SeasonHandler) count(c echo.Context, q *model.SeasonQuery) (*SeasonCount, error) {
	n, err := h.seasons.Count(c.Request().Context(), *q)
	if err != nil {
		return nil, err
	}
	return &SeasonCount{Count: n}, nil
}

func (h *SeasonHandler) current(c echo.Context, _ *noPayload) (*model.Season, error) {
	return h.seasons.GetCurrent(c.Request().Context())
}

func (h *SeasonHandler) get(c echo.Context, p *model.SeasonIDPayload) (*model.Season, error) {
	return h.seasons.GetByID(c.Request().Context(), p.ID)
}

func (h *SeasonHandler) create(c echo.Context, p *model.CreateSeasonPayload) (*model.Season, error) {
	return h.seasons.Create(c.Request().Context(), p)
}

func (h *SeasonHandler) update(c echo.Context, p *model.UpdateSeasonPayload) (*model.Season, error) {
	return h.seasons.Update(c.Request().Context(), p)
}

func (h *SeasonHandler) promote(c echo.Context, p *model.SeasonIDPayload) (*model.Season, error) {
	return h.seasons.Promote(c.Request().Context(), p.ID)
}

func (h *SeasonHandler) delete(c echo.Context, p *model.SeasonIDPayload) error {
	return h.seasons.Delete(c.Request().Context(), p.ID)
}

func (h *SeasonHandler) List() echo.HandlerFunc {
	return Handle[model.SeasonQuery](h.Handler, h.list, http.StatusOK)
}

func (h *SeasonHandler) Count() echo.HandlerFunc {
	return Handle[model.SeasonQuery](h.Handler, h.count, http.StatusOK)
}

func (h *SeasonHandler) Current() echo.HandlerFunc {
	return Handle[noPayload](h.Handler, h.current, http.StatusOK)
}

func (h *SeasonHandler) Get() echo.HandlerFunc {
	return Handle[model.SeasonIDPayload](h.Handler, h.get, http.StatusOK)
}

func (h *SeasonHandler) Create() echo.HandlerFunc {
	return Handle[model.CreateSeasonPayload](h.Handler, h.create, http.StatusCreated)
}

func (h *SeasonHandler) Update() echo.HandlerFunc {
	return Handle[model.UpdateSeasonPayload](h.Handler, h.update, http.StatusOK)
}

// Promote makes the season current, demoting whichever season was.
func (h *SeasonHandler) Promote() echo.HandlerFunc {
	return Handle[model.SeasonIDPayload](h.Handler, h.promote, http.StatusOK)
}

func (h *SeasonHandler) Delete() echo.HandlerFunc {
	return HandleNoContent[model.SeasonIDPayload](h.Handler, h.delete, http.StatusNoContent)
}
