package fetch

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrCoolingDown indicates the provider is suspended and no request was sent
	ErrCoolingDown = errors.New("provider is on cooldown")
	// ErrRateLimited indicates the provider rejected the request for exceeding its rate limit
	ErrRateLimited = errors.New("rate limited by provider")
	// ErrUnauthorized indicates the provider rejected the credentials
	ErrUnauthorized = errors.New("unauthorized: invalid API key")
	// ErrNotFound indicates the resource does not exist at the provider
	ErrNotFound = errors.New("resource not found")
	// ErrExhausted indicates every attempt failed with a transient error
	ErrExhausted = errors.New("retries exhausted")
)

// Error is returned by every Fetcher call that did not succeed
type Error struct {
	Provider string
	URL      string
	Err      error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s request %s: %v", e.Provider, e.URL, e.Err)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is an unexpected HTTP status
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the status is worth another attempt
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == 408 || e.StatusCode >= 500
}
