package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/handler"
	"github.com/iliyamo/scydb-api/internal/middleware"
	"github.com/iliyamo/scydb-api/internal/model"
)

// APIPrefix is the mount point of every resource route.
const APIPrefix = "/api/v1"

// Handlers groups the controllers the router mounts.
type Handlers struct {
	Auth    *handler.AuthHandler
	Movies  *handler.MovieHandler
	Reviews *handler.ReviewHandler
	Genres  *handler.GenreHandler
	Roles   *handler.RoleHandler
	Users   *handler.UserHandler
	Health  *handler.HealthHandler
}

// Middleware groups the cross-cutting middleware chosen at startup. Nil
// entries are skipped.
type Middleware struct {
	Guard       middleware.Guard
	AuthLimit   echo.MiddlewareFunc // /auth
	StdLimit    echo.MiddlewareFunc // every other resource
	PublicCache echo.MiddlewareFunc // anonymous catalog reads
}

var staff = []model.RoleName{model.RoleAdmin, model.RoleSuperAdmin}

// Register mounts the health probes and every /api/v1 resource.
func Register(e *echo.Echo, h Handlers, mw Middleware) {
	if h.Health != nil {
		e.GET("/healthz", h.Health.Live)
		e.GET("/readyz", h.Health.Ready)
	}

	api := e.Group(APIPrefix)
	protect := middleware.Protect(mw.Guard)

	std := chain(mw.StdLimit)

	registerAuth(api.Group("/auth", chain(mw.AuthLimit)...), h.Auth, protect)
	registerMovies(api.Group("/movies", std...), h.Movies, h.Reviews, protect, mw.PublicCache)
	registerReviewAdmin(api.Group("/reviews", std...), h.Reviews, protect)
	registerGenres(api.Group("/genres", std...), h.Genres, protect, mw.PublicCache)
	registerRoles(api.Group("/roles", std...), h.Roles, protect)
	registerUsers(api.Group("/users", std...), h.Users, h.Auth, protect)
}

// chain drops nil middleware.
func chain(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func registerAuth(g *echo.Group, a *handler.AuthHandler, protect echo.MiddlewareFunc) {
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.GET("/logout", a.Logout)
	g.GET("/verify-email/:token", a.VerifyEmail)
	g.POST("/resend-verification", a.ResendVerification)
	g.POST("/forgot-password", a.ForgotPassword)
	g.PATCH("/reset-password/:token", a.ResetPassword)

	g.GET("/check", a.Check, protect)
}
