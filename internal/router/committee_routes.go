package router

import (
	"github.com/labstack/echo/v4"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/middleware"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
)

// RegisterCommittee registers committee-only event management and
// registration review routes under /v1.
func RegisterCommittee(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleCommittee),
	)

	// ---- Events ----
	g.POST("/events", d.Events.Create)
	g.PUT("/events/:id", d.Events.Update)
	g.DELETE("/events/:id", d.Events.Delete)

	// ---- Registrations ----
	r := d.Registrations
	g.GET("/events/:id/registrations", r.List)
	g.PUT("/events/:id/registrations/:userId", r.UpdateStatus)
	g.POST("/events/:id/registrations/accept", r.AcceptUntilCapacity)
	g.POST("/events/:id/registrations/batch-status", r.BatchStatus)
	g.GET("/events/:id/analytics", r.Analytics)
}
