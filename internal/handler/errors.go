package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/scydb-api/internal/apperr"
	"github.com/iliyamo/scydb-api/internal/logging"
	"github.com/iliyamo/scydb-api/internal/query"
	"github.com/iliyamo/scydb-api/internal/repository"
)

// msgInvalidField is shown for every ErrInvalidField; the detail is logged.
const msgInvalidField = "Invalid field in query"

// ErrorHandler is the single place errors become responses. In production
// the messages of internal errors are replaced by a generic one.
func ErrorHandler(log *zap.Logger, production bool) echo.HTTPErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ae := toAppError(err)
		code := ae.Status()

		msg := ae.Message
		if code < http.StatusInternalServerError && ae.Err != nil {
			logging.WithRequestID(log, c.Response().Header().Get(echo.HeaderXRequestID)).Warn("request rejected",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.String("message", msg),
				zap.Error(ae.Err))
		}
		if code >= http.StatusInternalServerError {
			logging.WithRequestID(log, c.Response().Header().Get(echo.HeaderXRequestID)).Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err))
			if !production && ae.Kind == apperr.KindInternal && ae.Err != nil {
				msg = ae.Err.Error()
			}
		}

		status := "fail"
		if code >= http.StatusInternalServerError {
			status = "error"
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, envelope{Status: status, Message: msg})
	}
}

// toAppError classifies any error returned by the handler chain.
func toAppError(err error) *apperr.Error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return apperr.BadRequest(validationMessage(ve))
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return httpError(he)
	}

	switch {
	case errors.Is(err, query.ErrInvalidQuery):
		return apperr.BadRequest(capitalize(err.Error()))
	case errors.Is(err, repository.ErrInvalidField):
		ae := apperr.BadRequest(msgInvalidField)
		ae.Err = err
		return ae
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("No document found with that ID")
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.BadRequest("Duplicate field value. Please use another value!")
	case errors.Is(err, repository.ErrInUse):
		return apperr.Conflict("The document is still referenced and cannot be deleted")
	}
	return apperr.Internal(err)
}

func httpError(he *echo.HTTPError) *apperr.Error {
	msg := http.StatusText(he.Code)
	if he.Message != nil {
		msg = fmt.Sprint(he.Message)
	}
	switch he.Code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return apperr.BadRequest(msg)
	case http.StatusUnauthorized:
		return apperr.Unauthenticated(msg)
	case http.StatusForbidden:
		return apperr.Forbidden(msg)
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperr.NotFound(msg)
	case http.StatusConflict:
		return apperr.Conflict(msg)
	}
	return apperr.Internal(he)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
