package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable generation failure categories. Reply handling branches on these,
// so the set is closed: anything a provider cannot classify lands in
// ErrorUnavailable.
const (
	ErrorEmptyResponse = "empty_response"
	ErrorRateLimited   = "rate_limited"
	ErrorAuthFailure   = "auth_failure"
	ErrorUnavailable   = "unavailable"
)

// Error represents a stable, categorized generation failure.
type Error struct {
	Category string
	Detail   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Category
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

// NewError creates a categorized generation error.
func NewError(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// CategoryFromError returns the stable category for an error when available.
// Uncategorized errors (transport failures, decode errors) map to
// ErrorUnavailable.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	return ErrorUnavailable
}

// ErrorFromStatus maps an HTTP status code from a provider API to a
// categorized error.
func ErrorFromStatus(statusCode int, detail string) error {
	switch statusCode {
	case http.StatusTooManyRequests:
		return NewError(ErrorRateLimited, detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return NewError(ErrorAuthFailure, detail)
	default:
		return NewError(ErrorUnavailable, detail)
	}
}
