package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/service"
)

// ErrorHandler maps service errors onto HTTP responses. Anything it does not
// recognise is a 500 whose cause is logged but never shown to the client.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := errorResponse(err)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"err", err)
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Warn("write error response", "err", err)
		}
	}
}

func errorResponse(err error) (int, echo.Map) {
	var (
		verr     *service.ValidationError
		notFound service.NotFoundError
		conflict service.ConflictError
		denied   service.UnauthorizedError
		herr     *echo.HTTPError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": verr.Fields}
	case errors.As(err, &notFound):
		return http.StatusNotFound, echo.Map{"error": notFound.Error()}
	case errors.As(err, &conflict):
		return http.StatusConflict, echo.Map{"error": conflict.Error()}
	case errors.As(err, &denied):
		return http.StatusForbidden, echo.Map{"error": denied.Error()}
	case errors.As(err, &herr):
		msg := http.StatusText(herr.Code)
		if s, ok := herr.Message.(string); ok {
			msg = s
		}
		return herr.Code, echo.Map{"error": msg}
	}
	return http.StatusInternalServerError, echo.Map{"error": "internal server error"}
}
