package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deppfellow/academia/internal/cache"
	"github.com/deppfellow/academia/internal/config"
	"github.com/deppfellow/academia/internal/errs"
	"github.com/deppfellow/academia/internal/lib/job"
	"github.com/deppfellow/academia/internal/middleware"
	"github.com/deppfellow/academia/internal/model"
	"github.com/deppfellow/academia/internal/server"
	"github.com/deppfellow/academia/internal/service"
	"github.com/deppfellow/academia/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() *server.Server {
	logger := zerolog.Nop()
	return &server.Server{
		Config: &config.Config{
			Primary: config.Primary{Env: "test"},
			Cache:   config.DefaultCacheConfig(),
		},
		Logger: &logger,
	}
}

type seasonAPI struct {
	e     *echo.Echo
	store *testutil.SeasonStore
}

func newSeasonAPI(t *testing.T) *seasonAPI {
	t.Helper()

	s := testServer()
	store := testutil.NewSeasonStore()
	jobs := job.NewJobServiceWithClient(s.Logger, nil, testutil.NewBroker(), testutil.NewResultStore(), nil)
	seasons := service.NewSeasonService(store, cache.NewCurrent[model.Season](cache.NewMemory(), service.CurrentSeasonKey), jobs, s.Logger)
	h := NewSeasonHandler(s, seasons)

	e := echo.New()
	e.HTTPErrorHandler = middleware.NewGlobalMiddlewares(s).GlobalErrorHandler
	g := e.Group("/seasons")
	g.GET("", h.List())
	g.GET("/count", h.Count())
	g.GET("/current", h.Current())
	g.GET("/:id", h.Get())
	g.POST("", h.Create())
	g.PATCH("/:id", h.Update())
	g.POST("/:id/promote", h.Promote())
	g.DELETE("/:id", h.Delete())

	return &seasonAPI{e: e, store: store}
}

func (a *seasonAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *seasonAPI) create(t *testing.T, body string) model.Season {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/seasons", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var season model.Season
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &season))
	return season
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errs.HTTPError {
	t.Helper()
	var body errs.HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSeasonHandler_CreateMakesCurrent(t *testing.T) {
	api := newSeasonAPI(t)

	first := api.create(t, `{"number":3,"title":"Three"}`)
	second := api.create(t, `{"number":4,"title":"Four"}`)

	assert.True(t, second.Current)

	rec := api.do(t, http.MethodGet, "/seasons/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var current model.Season
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.Equal(t, second.ID, current.ID)

	rec = api.do(t, http.MethodGet, "/seasons/"+first.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var old model.Season
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &old))
	assert.False(t, old.Current)
}

func TestSeasonHandler_ValidationError(t *testing.T) {
	api := newSeasonAPI(t)

	rec := api.do(t, http.MethodPost, "/seasons", `{"number":3}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "title", body.Errors[0].Field)
	assert.Equal(t, "is required", body.Errors[0].Error)
	assert.Empty(t, api.store.Snapshot())
}

func TestSeasonHandler_MalformedBody(t *testing.T) {
	api := newSeasonAPI(t)

	rec := api.do(t, http.MethodPost, "/seasons", `{"number":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeasonHandler_BadID(t *testing.T) {
	api := newSeasonAPI(t)

	rec := api.do(t, http.MethodGet, "/seasons/not-a-uuid", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeasonHandler_DuplicateNumber(t *testing.T) {
	api := newSeasonAPI(t)
	api.create(t, `{"number":3,"title":"Three"}`)

	rec := api.do(t, http.MethodPost, "/seasons", `{"number":3,"title":"Again"}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SEASON_ALREADY_EXISTS", decodeError(t, rec).Code)
	assert.Equal(t, 1, api.store.CurrentCount())
}

func TestSeasonHandler_NoCurrent(t *testing.T) {
	api := newSeasonAPI(t)

	rec := api.do(t, http.MethodGet, "/seasons/current", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NO_CURRENT_SEASON", decodeError(t, rec).Code)
}

func TestSeasonHandler_PromoteAndCount(t *testing.T) {
	api := newSeasonAPI(t)
	first := api.create(t, `{"number":3,"title":"Three"}`)
	api.create(t, `{"number":4,"title":"Four"}`)

	rec := api.do(t, http.MethodPost, "/seasons/"+first.ID.String()+"/promote", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var promoted model.Season
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &promoted))
	assert.True(t, promoted.Current)
	assert.Equal(t, 1, api.store.CurrentCount())

	rec = api.do(t, http.MethodGet, "/seasons/count?current=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/seasons/count", "")
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())
}

func TestSeasonHandler_List(t *testing.T) {
	api := newSeasonAPI(t)
	api.create(t, `{"number":1,"title":"Spring intake"}`)
	api.create(t, `{"number":2,"title":"Autumn intake"}`)

	rec := api.do(t, http.MethodGet, "/seasons?search=spring", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page model.PaginatedResponse[model.Season]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, 1, page.Data[0].Number)

	rec = api.do(t, http.MethodGet, "/seasons?sort=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeasonHandler_Delete(t *testing.T) {
	api := newSeasonAPI(t)
	first := api.create(t, `{"number":3,"title":"Three"}`)

	rec := api.do(t, http.MethodDelete, "/seasons/"+first.ID.String(), "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SEASON_ACTIVE", decodeError(t, rec).Code)

	api.create(t, `{"number":4,"title":"Four"}`)

	rec = api.do(t, http.MethodDelete, "/seasons/"+first.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, api.store.Snapshot(), 1)
}

func TestSeasonHandler_FreshPayloadPerRequest(t *testing.T) {
	api := newSeasonAPI(t)

	withImage := api.create(t, `{"number":1,"title":"One","imageFileId":"cover.png"}`)
	without := api.create(t, `{"number":2,"title":"Two"}`)

	require.NotNil(t, withImage.ImageFileID)
	assert.Nil(t, without.ImageFileID)
}

func TestSeasonHandler_UpdateIgnoresBodyID(t *testing.T) {
	api := newSeasonAPI(t)
	first := api.create(t, `{"number":1,"title":"One"}`)
	second := api.create(t, `{"number":2,"title":"Two"}`)

	rec := api.do(t, http.MethodPatch, "/seasons/"+first.ID.String(),
		`{"id":"`+second.ID.String()+`","title":"Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated model.Season
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Title)
}

func TestHealthHandler(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name       string
		checks     []dependencyCheck
		wantStatus int
		wantBody   string
	}{
		{
			name: "all healthy",
			checks: []dependencyCheck{
				{name: "database", required: true, ping: func(context.Context) error { return nil }},
			},
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
		},
		{
			name: "optional dependency down",
			checks: []dependencyCheck{
				{name: "database", required: true, ping: func(context.Context) error { return nil }},
				{name: "redis", ping: func(context.Context) error { return down }},
			},
			wantStatus: http.StatusOK,
			wantBody:   "degraded",
		},
		{
			name: "required dependency down",
			checks: []dependencyCheck{
				{name: "database", required: true, ping: func(context.Context) error { return down }},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &HealthHandler{Handler: NewHandler(testServer()), checks: tt.checks}

			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/status", nil), rec)

			require.NoError(t, h.CheckHealth(c))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
