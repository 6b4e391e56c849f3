package plex

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors
var (
	// ErrInvalidConfig indicates invalid client configuration
	ErrInvalidConfig = errors.New("invalid plex configuration")
	// ErrUnauthorized indicates a missing or rejected token
	ErrUnauthorized = errors.New("unauthorized: invalid plex token")
	// ErrNotFound indicates the section or item does not exist
	ErrNotFound = errors.New("resource not found")
)

// APIError represents a Plex API error
type APIError struct {
	StatusCode int
	Method     string
	Endpoint   string
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("plex API error: %s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
}

// Unwrap maps well-known status codes onto sentinel errors
func (e *APIError) Unwrap() error {
	switch {
	case e.IsUnauthorized():
		return ErrUnauthorized
	case e.IsNotFound():
		return ErrNotFound
	default:
		return nil
	}
}

// IsNotFound checks if the error indicates a not found response
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized checks if the error indicates an authentication failure
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
