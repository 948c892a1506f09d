package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/apperr"
	"github.com/iliyamo/scydb-api/internal/model"
)

// MsgNoPermission is returned when the principal's role is not allowed.
const MsgNoPermission = "You do not have permission to perform this action"

// RestrictTo only lets principals with one of roles through. It must run
// after Protect; a request without a principal is treated as unauthenticated.
func RestrictTo(roles ...model.RoleName) echo.MiddlewareFunc {
	allowed := make(map[model.RoleName]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return apperr.Unauthenticated(MsgNotLoggedIn)
			}
			if !allowed[p.Role] {
				return apperr.Forbidden(MsgNoPermission)
			}
			return next(c)
		}
	}
}
