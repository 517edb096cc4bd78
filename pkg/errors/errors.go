package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrTranscriptUnavailable = errors.New("transcript unavailable")
	ErrSnapshotInvalid       = errors.New("snapshot invalid")
	ErrEngineStopped         = errors.New("engine stopped")
	ErrNotReady              = errors.New("index not ready")
	ErrInternal              = errors.New("internal error")
	ErrTimeout               = errors.New("operation timed out")
	ErrUnavailable           = errors.New("upstream unavailable")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTranscriptUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrEngineStopped), errors.Is(err, ErrNotReady), errors.Is(err, ErrTimeout),
		errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
