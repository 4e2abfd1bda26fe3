// Package httputil holds the response envelope shared by every handler.
package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/careslot/booking-api/pkg/errors"
)

// Response wraps all API responses.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondWithSuccess sends data in the success envelope.
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, NewSuccessResponse(data))
}

// RespondWithError maps a domain error onto its HTTP status and sends the
// error envelope. Unknown errors become an opaque 500.
func RespondWithError(c *gin.Context, err error) {
	status, message := StatusForError(err)
	c.JSON(status, NewErrorResponse(message))
}

// StatusForError maps domain error codes onto HTTP statuses in one place.
func StatusForError(err error) (int, string) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, "internal server error"
	}

	switch appErr.Code {
	case apperrors.ErrNotFound:
		return http.StatusNotFound, appErr.Message
	case apperrors.ErrBadRequest, apperrors.ErrInvalidTransition:
		return http.StatusBadRequest, appErr.Message
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized, appErr.Message
	case apperrors.ErrForbidden, apperrors.ErrBlacklisted:
		return http.StatusForbidden, appErr.Message
	case apperrors.ErrInsufficientCapacity, apperrors.ErrStorageConflict:
		return http.StatusConflict, appErr.Message
	case apperrors.ErrTooSoon:
		return http.StatusTooManyRequests, appErr.Message
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
