package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/observability/metrics"
)

// Metrics records request count and latency per route template. Errors are
// run through the error handler first so the recorded status is the one the
// client sees.
func Metrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.ObserveRequest(c.Request().Method, path, c.Response().Status, time.Since(start).Seconds())
			return nil
		}
	}
}
