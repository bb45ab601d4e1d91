package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/middleware"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/service"
)

// EventRequest is the body of POST and PUT /v1/events.
type EventRequest struct {
	Organiser   string            `json:"organiser" validate:"required,max=64"`
	Title       string            `json:"title" validate:"required,max=255"`
	Description string            `json:"description"`
	Location    string            `json:"location" validate:"max=255"`
	State       string            `json:"state" validate:"omitempty,oneof=draft published"`
	Capacity    *int              `json:"capacity" validate:"omitempty,min=1"`
	StartsAt    *time.Time        `json:"starts_at"`
	EndsAt      *time.Time        `json:"ends_at"`
	FormFields  []model.FormField `json:"form_fields" validate:"dive"`
}

func (r EventRequest) input() service.EventInput {
	return service.EventInput{
		Organiser:   r.Organiser,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		State:       model.EventState(r.State),
		Capacity:    r.Capacity,
		StartsAt:    r.StartsAt,
		EndsAt:      r.EndsAt,
		FormFields:  r.FormFields,
	}
}

// EventHandler serves event browsing and committee event management.
type EventHandler struct {
	svc      *service.EventService
	onChange func(ctx context.Context)
}

// NewEventHandler returns an EventHandler. onChange, when non-nil, runs after
// every successful write, e.g. to purge cached listings.
func NewEventHandler(svc *service.EventService, onChange func(ctx context.Context)) *EventHandler {
	if svc == nil {
		panic("nil service passed to NewEventHandler")
	}
	if onChange == nil {
		onChange = func(context.Context) {}
	}
	return &EventHandler{svc: svc, onChange: onChange}
}

// List handles GET /v1/events.
func (h *EventHandler) List(c echo.Context) error {
	events, err := h.svc.List(c.Request().Context(), middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	id, err := eventID(c)
	if err != nil {
		return err
	}
	ev, err := h.svc.Get(c.Request().Context(), id, middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ev)
}

// Create handles POST /v1/events.
func (h *EventHandler) Create(c echo.Context) error {
	var req EventRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ev, err := h.svc.Create(c.Request().Context(), req.input(), middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	h.onChange(c.Request().Context())
	return c.JSON(http.StatusCreated, ev)
}

// Update handles PUT /v1/events/:id.
func (h *EventHandler) Update(c echo.Context) error {
	id, err := eventID(c)
	if err != nil {
		return err
	}
	var req EventRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ev, err := h.svc.Update(c.Request().Context(), id, req.input(), middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	h.onChange(c.Request().Context())
	return c.JSON(http.StatusOK, ev)
}

// Delete handles DELETE /v1/events/:id.
func (h *EventHandler) Delete(c echo.Context) error {
	id, err := eventID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id, middleware.IdentityFrom(c)); err != nil {
		return err
	}
	h.onChange(c.Request().Context())
	return c.JSON(http.StatusOK, echo.Map{"deleted": id})
}
