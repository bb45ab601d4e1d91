package router

import (
	"github.com/labstack/echo/v4"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/middleware"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
)

// RegisterMember registers the routes any signed-in user may call. Owner
// checks on another user's registration happen in the engine.
func RegisterMember(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleMember, model.RoleCommittee),
	)
	r := d.Registrations

	g.POST("/events/:id/registrations", r.Create, d.RateLimit)
	g.GET("/events/:id/registrations/me", r.GetMine)
	g.DELETE("/events/:id/registrations/me", r.DeleteMine, d.RateLimit)
	g.GET("/events/:id/registrations/:userId", r.Get)
	g.DELETE("/events/:id/registrations/:userId", r.Delete)
	g.GET("/me/registrations", r.ListMine)
}
