package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/apperr"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/repository"
	"github.com/iliyamo/scydb-api/internal/utils"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "jwt"

// Client-facing messages of the guard.
const (
	MsgNotLoggedIn     = "You are not logged in! Please log in to get access."
	MsgInvalidToken    = "Invalid token. Please log in again."
	MsgExpiredToken    = "Your token has expired! Please log in again."
	MsgUserGone        = "The user belonging to this token no longer exists."
	MsgPasswordChanged = "User recently changed password! Please log in again."
	MsgVerifyEmail     = "Please verify your email address to continue."
)

// UserLoader loads an active user by id.
type UserLoader interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Guard resolves the session token of a request into a user.
type Guard struct {
	Secret          string
	Users           UserLoader
	RequireVerified bool // strict mode: unverified users are refused
}

// Resolve authenticates a request given its Authorization header and the
// value of the session cookie. The header wins when it carries a Bearer
// token. The user is reloaded on every call, so deactivation, role changes
// and password changes take effect immediately.
func (g Guard) Resolve(ctx context.Context, authorization, cookie string) (model.User, error) {
	token := ""
	if strings.HasPrefix(authorization, "Bearer") {
		if parts := strings.Fields(authorization); len(parts) == 2 {
			token = parts[1]
		}
	} else if cookie != "" {
		token = cookie
	}
	if token == "" || token == utils.LoggedOutToken {
		return model.User{}, apperr.Unauthenticated(MsgNotLoggedIn)
	}

	claims, err := utils.ParseSessionToken(g.Secret, token)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return model.User{}, apperr.Unauthenticated(MsgExpiredToken)
		}
		return model.User{}, apperr.Unauthenticated(MsgInvalidToken)
	}

	u, err := g.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, apperr.Unauthenticated(MsgUserGone)
		}
		return model.User{}, apperr.Internal(err)
	}
	if u.ChangedPasswordAfter(claims.IssuedAtTime()) {
		return model.User{}, apperr.Unauthenticated(MsgPasswordChanged)
	}
	if g.RequireVerified && !u.EmailVerified {
		return model.User{}, apperr.Forbidden(MsgVerifyEmail)
	}
	return u, nil
}

// Protect rejects requests without a valid session and attaches the user
// and principal to the context for the rest of the chain.
func Protect(g Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie := ""
			if ck, err := c.Cookie(SessionCookie); err == nil {
				cookie = ck.Value
			}
			u, err := g.Resolve(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization), cookie)
			if err != nil {
				return err
			}
			setIdentity(c, u)
			return next(c)
		}
	}
}

// SessionCookieFor builds the session cookie. maxAge < 0 expires it.
func SessionCookieFor(token string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
