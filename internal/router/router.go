// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/handler"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/middleware"
)

// Deps carries everything the route table needs. RateLimit and Cache may be
// nil, in which case the routes run without them.
type Deps struct {
	JWTSecret     string
	Health        handler.Health
	Events        *handler.EventHandler
	Registrations *handler.RegistrationHandler
	RateLimit     echo.MiddlewareFunc
	Cache         echo.MiddlewareFunc
}

// NewEcho returns an Echo instance with the JSON validator and the central
// error handler installed.
func NewEcho(logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(logger)
	return e
}

// Register installs every route.
func Register(e *echo.Echo, d Deps) {
	if d.RateLimit == nil {
		d.RateLimit = passthrough
	}
	if d.Cache == nil {
		d.Cache = passthrough
	}
	RegisterRoutes(e, d.Health)
	RegisterPublic(e, d)
	RegisterMember(e, d)
	RegisterCommittee(e, d)
}

// RegisterRoutes registers routes that need neither a token nor a version
// prefix.
func RegisterRoutes(e *echo.Echo, h handler.Health) {
	e.GET("/healthz", h.Check)
}

// RegisterPublic registers event browsing. A bearer token is optional; with
// a committee token drafts become visible, so the cache keys on role.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/v1", middleware.OptionalJWT(d.JWTSecret))
	g.GET("/events", d.Events.List, d.Cache)
	g.GET("/events/:id", d.Events.Get, d.Cache)
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
