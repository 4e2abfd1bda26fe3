package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrInsufficientCapacity
	ErrInvalidTransition
	ErrStorageConflict
	ErrBlacklisted
	ErrTooSoon
)

// Sentinel errors for the booking core. Services return these (possibly
// wrapped) so callers can branch with errors.Is.
var (
	ErrSlotCapacity      = &AppError{Code: ErrInsufficientCapacity, Message: "slot no longer available"}
	ErrTransition        = &AppError{Code: ErrInvalidTransition, Message: "this appointment cannot be changed"}
	ErrMissing           = &AppError{Code: ErrNotFound, Message: "not found"}
	ErrConflict          = &AppError{Code: ErrStorageConflict, Message: "concurrent update detected"}
	ErrPatientBlacklist  = &AppError{Code: ErrBlacklisted, Message: "patient is blacklisted"}
	ErrReissueTooSoon    = &AppError{Code: ErrTooSoon, Message: "please wait before requesting a new code"}
	ErrInvalidCredential = &AppError{Code: ErrUnauthorized, Message: "invalid credentials"}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// Is lets a sentinel match every wrapped instance of its code.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if !errors.As(target, &appErr) {
		return false
	}
	return e.Code == appErr.Code
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrNotFound
}

func IsBadRequest(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrBadRequest
}

func IsInsufficientCapacity(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrInsufficientCapacity
}

func IsInvalidTransition(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrInvalidTransition
}

func IsStorageConflict(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrStorageConflict
}
