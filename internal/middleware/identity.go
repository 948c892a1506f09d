package middleware

// identity.go holds the context keys shared by the middleware in this
// package and typed accessors handlers use to read the authenticated user.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/model"
)

// Context keys set by Protect.
const (
	ctxPrincipal = "principal"
	ctxUser      = "user"
	ctxUserID    = "user_id"
)

// PrincipalFrom returns the principal attached by Protect.
func PrincipalFrom(c echo.Context) (model.Principal, bool) {
	p, ok := c.Get(ctxPrincipal).(model.Principal)
	return p, ok
}

// UserFrom returns the full user record loaded by Protect.
func UserFrom(c echo.Context) (model.User, bool) {
	u, ok := c.Get(ctxUser).(model.User)
	return u, ok
}

func setIdentity(c echo.Context, u model.User) {
	c.Set(ctxUser, u)
	c.Set(ctxPrincipal, u.Principal())
	c.Set(ctxUserID, strconv.FormatUint(u.ID, 10))
}

// currentUserID returns the authenticated user id or "anon".
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
