package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wusimpl/hackernewscn/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrStoryNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "story not found"})
	case errors.Is(err, service.ErrNoProvider):
		return c.JSON(http.StatusConflict, errorResponse{Error: "no translation provider configured"})
	case errors.Is(err, service.ErrInvalidInterval):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "interval must be positive"})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// Error returns a JSON error response with the given status and message
func Error(c echo.Context, status int, message string) error {
	return c.JSON(status, errorResponse{Error: message})
}
