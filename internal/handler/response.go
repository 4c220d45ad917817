package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cafetrack/internal/geocode"
	"cafetrack/internal/location"
	"cafetrack/internal/repository"
	"cafetrack/internal/tracking"
	"cafetrack/internal/upstream"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, tracking.ErrNotTracking),
		errors.Is(err, upstream.ErrOrderNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, tracking.ErrInvalidOrderID):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, tracking.ErrAlreadyTracking):
		return http.StatusConflict

	// Upstream credential problems propagate as-is so clients can force
	// a re-login.
	case errors.Is(err, upstream.ErrUnauthorized):
		return http.StatusUnauthorized

	// Unresolvable address
	case errors.Is(err, geocode.ErrNotFound):
		return http.StatusUnprocessableEntity

	// Position temporarily unknown
	case errors.Is(err, location.ErrUnavailable):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
