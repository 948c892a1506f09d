package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/apperr"
	"github.com/iliyamo/scydb-api/internal/queue"
)

const (
	// dbTimeout bounds the database work of a single request.
	dbTimeout = 5 * time.Second

	publishTimeout = 2 * time.Second
)

// envelope is the uniform response body.
type envelope struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
	Results *int   `json:"results,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respond(c echo.Context, code int, data any) error {
	return c.JSON(code, envelope{Status: "success", Data: data})
}

func respondList(c echo.Context, results int, data any) error {
	return c.JSON(http.StatusOK, envelope{Status: "success", Results: &results, Data: data})
}

func respondMessage(c echo.Context, code int, msg string) error {
	return c.JSON(code, envelope{Status: "success", Message: msg})
}

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// bind decodes the body into dst and runs the validator.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	return c.Validate(dst)
}

// pathID parses a positive numeric path parameter. Anything else cannot
// name a row, so it is reported as notFound.
func pathID(c echo.Context, name, notFound string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.NotFound(notFound)
	}
	return id, nil
}

// emit publishes an activity event on a context detached from the request.
// Failures are logged by the publisher and never fail the request.
func emit(c echo.Context, p queue.Publisher, ev queue.ActivityEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), publishTimeout)
	defer cancel()
	_ = p.Publish(ctx, ev)
}
