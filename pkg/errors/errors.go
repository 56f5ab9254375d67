// Package errors defines the analyzer's error kinds and how they surface
// over HTTP. Sentinels classify a failure; AppError adds a client-facing
// message and status to one.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidQuery        = errors.New("invalid query")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrAnalysisNotFound    = errors.New("analysis not found")
	ErrNoResults           = errors.New("no results found")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUpstream            = errors.New("upstream platform error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(kind error, status int, message string) *AppError {
	return &AppError{Err: kind, Message: message, StatusCode: status}
}

func Newf(kind error, status int, format string, args ...any) *AppError {
	return New(kind, status, fmt.Sprintf(format, args...))
}

// Invalidf reports a malformed query as a 400.
func Invalidf(format string, args ...any) *AppError {
	return Newf(ErrInvalidQuery, http.StatusBadRequest, format, args...)
}

// NotFoundf reports a missing analysis as a 404.
func NotFoundf(format string, args ...any) *AppError {
	return Newf(ErrAnalysisNotFound, http.StatusNotFound, format, args...)
}

// statusByKind is checked in order; the first kind err matches wins.
var statusByKind = []struct {
	kind   error
	status int
}{
	{ErrAnalysisNotFound, http.StatusNotFound},
	{ErrInvalidQuery, http.StatusBadRequest},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrUnsupportedPlatform, http.StatusBadRequest},
	{ErrRateLimited, http.StatusTooManyRequests},
	{ErrUpstream, http.StatusBadGateway},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

// HTTPStatusCode maps err onto a response status. An AppError's own status
// takes precedence; unknown errors are 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, m := range statusByKind {
		if errors.Is(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}
