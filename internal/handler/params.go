package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/service"
)

// eventID parses the :id path parameter.
func eventID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{Fields: map[string]string{"id": "must be a positive integer"}}
	}
	return id, nil
}
