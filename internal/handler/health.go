package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthHandler reports whether the service and its backing stores are up.
// MySQL is required; Redis only backs the cache and rate limits, so losing
// it degrades the service without taking it down.
type HealthHandler struct {
	DB    *sql.DB
	Redis *redis.Client
}

type dependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Live always answers 200 while the process serves requests.
func (h *HealthHandler) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": statusHealthy, "timestamp": time.Now().UTC()})
}

// Ready pings the dependencies and answers 503 when MySQL is unreachable.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	overall := statusHealthy
	deps := map[string]dependencyStatus{}
	if h.DB != nil {
		d := probe(func() error { return h.DB.PingContext(ctx) })
		deps["database"] = d
		if d.Status != statusHealthy {
			overall = statusUnhealthy
		}
	}
	if h.Redis != nil {
		d := probe(func() error { return h.Redis.Ping(ctx).Err() })
		deps["redis"] = d
		if d.Status != statusHealthy && overall == statusHealthy {
			overall = statusDegraded
		}
	}

	code := http.StatusOK
	if overall == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, echo.Map{
		"status":       overall,
		"timestamp":    time.Now().UTC(),
		"dependencies": deps,
	})
}

func probe(ping func() error) dependencyStatus {
	start := time.Now()
	err := ping()
	d := dependencyStatus{Status: statusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		d.Status = statusUnhealthy
		d.Message = err.Error()
	}
	return d
}
