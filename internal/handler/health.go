package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deppfellow/academia/internal/config"
	"github.com/deppfellow/academia/internal/middleware"
	"github.com/deppfellow/academia/internal/server"
	"github.com/labstack/echo/v4"
)

const healthCheckTimeout = 5 * time.Second

// dependencyCheck pings one backing service. A failing optional check is
// reported but does not turn the service unhealthy.
type dependencyCheck struct {
	name     string
	required bool
	ping     func(ctx context.Context) error
}

// HealthHandler serves GET /status for load balancers and uptime monitors.
type HealthHandler struct {
	Handler
	checks []dependencyCheck
}

func NewHealthHandler(s *server.Server) *HealthHandler {
	h := &HealthHandler{Handler: NewHandler(s)}

	if s.DB != nil {
		h.checks = append(h.checks, dependencyCheck{
			name:     "database",
			required: true,
			ping:     s.DB.Pool.Ping,
		})
	}

	// Redis always carries the task broker; it is only fatal when the
	// current-season cache lives there too.
	if s.Redis != nil {
		h.checks = append(h.checks, dependencyCheck{
			name:     "redis",
			required: s.Config.Cache.Backend == config.CacheBackendRedis,
			ping: func(ctx context.Context) error {
				return s.Redis.Ping(ctx).Err()
			},
		})
	}

	return h
}

// CheckHealth returns 200 when every required dependency answers and 503
// otherwise. Each check reports its own status and response time.
func (h *HealthHandler) CheckHealth(c echo.Context) error {
	start := time.Now()

	logger := middleware.GetLogger(c).With().
		Str("operation", "health_check").
		Logger()

	checks := make(map[string]any, len(h.checks))
	response := map[string]any{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"environment": h.server.Config.Primary.Env,
		"checks":      checks,
	}

	isHealthy := true
	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		checkStart := time.Now()
		err := check.ping(ctx)
		cancel()
		elapsed := time.Since(checkStart)

		if err == nil {
			checks[check.name] = map[string]any{
				"status":        "healthy",
				"response_time": elapsed.String(),
			}
			logger.Debug().Str("check", check.name).Dur("response_time", elapsed).Msg("health check passed")
			continue
		}

		status := "degraded"
		if check.required {
			status = "unhealthy"
			isHealthy = false
		}
		checks[check.name] = map[string]any{
			"status":        status,
			"response_time": elapsed.String(),
			"error":         err.Error(),
		}

		logger.Error().
			Err(err).
			Str("check", check.name).
			Dur("response_time", elapsed).
			Msg("health check failed")

		h.recordError(map[string]any{
			"check_type":       check.name,
			"operation":        "health_check",
			"error_type":       check.name + "_" + status,
			"response_time_ms": elapsed.Milliseconds(),
			"error_message":    err.Error(),
		})
	}

	if !isHealthy {
		response["status"] = "unhealthy"

		logger.Warn().
			Dur("total_duration", time.Since(start)).
			Msg("health check failed")

		h.recordError(map[string]any{
			"check_type":        "overall",
			"operation":         "health_check",
			"error_type":        "overall_unhealthy",
			"total_duration_ms": time.Since(start).Milliseconds(),
		})

		return c.JSON(http.StatusServiceUnavailable, response)
	}

	if err := c.JSON(http.StatusOK, response); err != nil {
		logger.Error().Err(err).Msg("failed to write JSON response")
		return fmt.Errorf("failed to write JSON response: %w", err)
	}

	return nil
}

func (h *HealthHandler) recordError(attrs map[string]any) {
	if app := h.server.LoggerService.GetApplication(); app != nil {
		app.RecordCustomEvent("HealthCheckError", attrs)
	}
}
