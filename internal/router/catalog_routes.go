package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/handler"
	"github.com/iliyamo/scydb-api/internal/middleware"
	"github.com/iliyamo/scydb-api/internal/model"
)

// registerMovies mounts the catalog and the reviews nested under a movie.
// Reads are public and may be served from the response cache; writes need
// a staff session.
func registerMovies(g *echo.Group, m *handler.MovieHandler, r *handler.ReviewHandler,
	protect, cache echo.MiddlewareFunc) {
	public := chain(cache)
	admin := []echo.MiddlewareFunc{protect, middleware.RestrictTo(staff...)}

	g.GET("", m.List, public...)
	g.GET("/:id", m.Get, public...)
	g.POST("", m.Create, admin...)
	g.PATCH("/:id", m.Update, admin...)
	g.DELETE("/:id", m.Delete, admin...)

	reviews := g.Group("/:movieId/reviews", protect)
	reviews.GET("", r.ListByMovie)
	reviews.POST("", r.Create, middleware.RestrictTo(model.RoleClient, model.RoleAdmin, model.RoleSuperAdmin))
	reviews.PATCH("/:id", r.Update)
	reviews.DELETE("/:id", r.Delete)
}

func registerReviewAdmin(g *echo.Group, r *handler.ReviewHandler, protect echo.MiddlewareFunc) {
	g.GET("/admin", r.AdminList, protect, middleware.RestrictTo(staff...))
}

// registerGenres: the active list is public, other reads need a session and
// writes need staff.
func registerGenres(g *echo.Group, h *handler.GenreHandler, protect, cache echo.MiddlewareFunc) {
	g.GET("/active", h.Active, chain(cache)...)

	read := g.Group("", protect)
	read.GET("", h.List)
	read.GET("/stats", h.Stats)
	read.GET("/:id", h.Get)

	write := g.Group("", protect, middleware.RestrictTo(staff...))
	write.POST("", h.Create)
	write.PATCH("/bulk", h.Bulk)
	write.PATCH("/:id", h.Update)
	write.DELETE("/:id", h.Delete)
}
