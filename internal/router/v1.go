package router

import (
	"github.com/deppfellow/academia/internal/handler"
	"github.com/deppfellow/academia/internal/middleware"
	"github.com/labstack/echo/v4"
)

// Reads are public; every write needs an authenticated admin.

func registerSeasonRoutes(g *echo.Group, h *handler.SeasonHandler, auth *middleware.AuthMiddleware) {
	seasons := g.Group("/seasons")

	seasons.GET("", h.List())
	seasons.GET("/count", h.Count())
	seasons.GET("/current", h.Current())
	seasons.GET("/:id", h.Get())

	seasons.POST("", h.Create(), auth.RequireAuth)
	seasons.PATCH("/:id", h.Update(), auth.RequireAuth)
	seasons.POST("/:id/promote", h.Promote(), auth.RequireAuth)
	seasons.DELETE("/:id", h.Delete(), auth.RequireAuth)
}

func registerSubjectRoutes(g *echo.Group, h *handler.SubjectHandler, auth *middleware.AuthMiddleware) {
	g.PUT("/subjects/:id/session", h.UpdateSession(), auth.RequireAuth)
}

func registerTaskRoutes(g *echo.Group, h *handler.TaskHandler) {
	g.GET("/tasks", h.ListByGroup())
	g.GET("/tasks/stale", h.ListStale())
	g.GET("/tasks/:id", h.Get())
}
