package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers
// and to realtime clients as an `error` event.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so wrapped copies compare equal to the sentinels below.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a different human readable message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// HTTP-facing errors.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// Realtime protocol errors. Each maps to the `code` of an outbound error event.
var (
	// ErrAuthFailed covers missing, invalid and expired credentials.
	ErrAuthFailed = &AppError{
		Code:       "AUTH_FAILED",
		Message:    "Invalid or expired token",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidFrame = &AppError{
		Code:       "INVALID_FRAME",
		Message:    "Frame could not be parsed",
		StatusCode: http.StatusBadRequest,
	}

	ErrUnknownEvent = &AppError{
		Code:       "UNKNOWN_EVENT",
		Message:    "Unsupported event type",
		StatusCode: http.StatusBadRequest,
	}

	ErrRoomMismatch = &AppError{
		Code:       "ROOM_MISMATCH",
		Message:    "Event room does not match the connection room",
		StatusCode: http.StatusBadRequest,
	}

	ErrEmptyMessage = &AppError{
		Code:       "EMPTY_MESSAGE",
		Message:    "Message cannot be empty",
		StatusCode: http.StatusBadRequest,
	}

	ErrMessageTooLong = &AppError{
		Code:       "MESSAGE_TOO_LONG",
		Message:    "Message must be no more than 2000 characters",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidReply = &AppError{
		Code:       "INVALID_REPLY",
		Message:    "Parent message not found",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidReaction = &AppError{
		Code:       "INVALID_REACTION",
		Message:    "Unsupported reaction",
		StatusCode: http.StatusBadRequest,
	}

	ErrMessageNotFound = &AppError{
		Code:       "MESSAGE_NOT_FOUND",
		Message:    "Message not found",
		StatusCode: http.StatusNotFound,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Rate limit exceeded. Maximum 10 messages per 60 seconds.",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrPersistence = &AppError{
		Code:       "PERSISTENCE_FAILED",
		Message:    "Message could not be saved",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}
