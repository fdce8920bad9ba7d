// Package router builds the Echo instance: global middleware in order,
// then the system routes and the versioned API.
package router

import (
	"github.com/deppfellow/academia/internal/handler"
	"github.com/deppfellow/academia/internal/middleware"
	"github.com/deppfellow/academia/internal/server"
	"github.com/labstack/echo/v4"
)

func NewRouter(s *server.Server, h *handler.Handlers) *echo.Echo {
	middlewares := middleware.NewMiddlewares(s)

	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.HTTPErrorHandler = middlewares.Global.GlobalErrorHandler

	// Tracing comes first so the context enhancer can pick up the
	// transaction; Recover sits last so panics still get logged with the
	// request logger.
	router.Use(
		middlewares.Tracing.NewRelicMiddleware(),
		middlewares.Tracing.EnhanceTracing(),
		middleware.RequestID(),
		middlewares.ContextEnhancer.EnhanceContext(),
		middlewares.Global.CORS(),
		middlewares.Global.Secure(),
		middlewares.Global.RequestLogger(),
		middlewares.Global.Recover(),
	)

	registerSystemRoutes(router, h)

	v1 := router.Group("/api/v1", middlewares.RateLimit.Limit())
	registerSeasonRoutes(v1, h.Seasons, middlewares.Auth)
	registerSubjectRoutes(v1, h.Subjects, middlewares.Auth)
	registerTaskRoutes(v1, h.Tasks)

	return router
}
