package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/middleware"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/service"
)

// CreateRegistrationRequest is the body of POST /v1/events/:id/registrations.
type CreateRegistrationRequest struct {
	Answers model.Answers `json:"answers"`
}

// StatusRequest is the body of PUT /v1/events/:id/registrations/:userId.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending accepted waitlist rejected"`
}

// BatchStatusRequest is the body of POST .../registrations/batch-status.
type BatchStatusRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,required"`
	Status  string   `json:"status" validate:"required,oneof=pending accepted waitlist rejected"`
}

// RegistrationHandler exposes the registration engine over HTTP. Every
// method expects JWTAuth to have run.
type RegistrationHandler struct {
	svc *service.RegistrationService
}

// NewRegistrationHandler returns a RegistrationHandler backed by svc.
func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	if svc == nil {
		panic("nil service passed to NewRegistrationHandler")
	}
	return &RegistrationHandler{svc: svc}
}

// Create handles POST /v1/events/:id/registrations.
func (h *RegistrationHandler) Create(c echo.Context) error {
	id, err := eventID(c)
	if err != nil {
		return err
	}
	var req CreateRegistrationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	reg, err := h.svc.Create(c.Request().Context(), id, middleware.IdentityFrom(c), req.Answers)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, reg)
}

// List handles GET /v1/events/:id/registrations?status=.
func (h *RegistrationHandler) List(c echo.Context) error {
	id, err := eventID(c)
	if err != nil {
		return err
	}
	status := model.RegistrationStatus(c.QueryParam("status"))
	regs, err := h.svc.ListForEvent(c.Request().Context(), id, status, middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"registrations": regs})
}

// Get handles GET /v1/events/:id/registrations/:userId.
func (h *RegistrationHandler) Get(c echo.Context) error {
	return h.get(c, c.Param("userId"))
}

// GetMine handles GET /v1/events/:id/registrations/me.
func (h *RegistrationHandler) GetMine(c echo.Context) error {
	return h.get(c, middleware.IdentityFrom(c).UserID)
}

func (h *RegistrationHandler) get(c echo.Context, userID string) error {
	id, err := eventID(c)
	if err != nil {
		return err
	}
	reg, err := h.svc.Get(c.Request().Context(), id, userID, middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reg)
}

// UpdateStatus handles PUT /v1/events/:id/registrations/:userId.
func (h *RegistrationHandler) UpdateStatus(c echo.Context) error {
	id, err := eventID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	reg, err := h.svc.Update(c.Request().Context(), id, c.Param("userId"), model.RegistrationStatus(req.Status), middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reg)
}

// Delete handles DELETE /v1/events/:id/registrations/:userId.
func (h *RegistrationHandler) Delete(c echo.Context) error {
	return h.delete(c, c.Param("userId"))
}

// DeleteMine handles DELETE /v1/events/:id/registrations/me.
func (h *RegistrationHandler) DeleteMine(c echo.Context) error {
	return h.delete(c, middleware.IdentityFrom(c).UserID)
}

func (h *RegistrationHandler) delete(c echo.Context, userID string) error {
	id, err := eventID(c)
	if err != nil {
		return err
	}
	reg, err := h.svc.Delete(c.Request().Context(), id, userID, middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reg)
}

// AcceptUntilCapacity handles POST /v1/events/:id/registrations/accept.
func (h *RegistrationHandler) AcceptUntilCapacity(c echo.Context) error {
	id, err := eventID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.AcceptUntilCapacity(c.Request().Context(), id, middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"accepted": res.Count, "user_ids": res.UserIDs})
}

// BatchStatus handles POST /v1/events/:id/registrations/batch-status.
func (h *RegistrationHandler) BatchStatus(c echo.Context) error {
	id, err := eventID(c)
	if err != nil {
		return err
	}
	var req BatchStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.BatchUpdateStatus(c.Request().Context(), id, req.UserIDs, model.RegistrationStatus(req.Status), middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": res.Count, "user_ids": res.UserIDs})
}

// Analytics handles GET /v1/events/:id/analytics.
func (h *RegistrationHandler) Analytics(c echo.Context) error {
	id, err := eventID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Analytics(c.Request().Context(), id, middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// ListMine handles GET /v1/me/registrations.
func (h *RegistrationHandler) ListMine(c echo.Context) error {
	regs, err := h.svc.ListMine(c.Request().Context(), middleware.IdentityFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"registrations": regs})
}
