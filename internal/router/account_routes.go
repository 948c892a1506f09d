package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/handler"
	"github.com/iliyamo/scydb-api/internal/middleware"
	"github.com/iliyamo/scydb-api/internal/model"
)

// registerUsers mounts the self-service routes for any signed-in user and
// the administration routes for staff. Role toggling is super-admin only.
func registerUsers(g *echo.Group, u *handler.UserHandler, a *handler.AuthHandler, protect echo.MiddlewareFunc) {
	g.Use(protect)

	g.GET("/me", u.Me)
	g.PATCH("/me", u.UpdateMe)
	g.PATCH("/me/password", a.UpdatePassword)
	g.DELETE("/me", u.DeleteMe)
	g.POST("/watchlist/:movieId", u.AddToWatchlist)
	g.DELETE("/watchlist/:movieId", u.RemoveFromWatchlist)

	admin := g.Group("", middleware.RestrictTo(staff...))
	admin.GET("/available-roles", u.AvailableRoles)
	admin.GET("", u.List)
	admin.GET("/stats", u.Stats)
	admin.GET("/:id", u.Get)
	admin.PATCH("/:id", u.Update)
	admin.DELETE("/:id", u.Delete)
	admin.PATCH("/:id/role", u.ToggleRole, middleware.RestrictTo(model.RoleSuperAdmin))
}

// registerRoles: reads for any signed-in user, writes for super-admins.
func registerRoles(g *echo.Group, h *handler.RoleHandler, protect echo.MiddlewareFunc) {
	g.Use(protect)

	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.GET("/:id", h.Get)

	write := g.Group("", middleware.RestrictTo(model.RoleSuperAdmin))
	write.POST("", h.Create)
	write.PATCH("/:id", h.Update)
	write.DELETE("/:id", h.Delete)
}
