package provider

import "errors"

// Common errors
var (
	// ErrUnknownProvider indicates a priority entry that names no registered provider
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrDuplicateProvider indicates two providers registered under one name
	ErrDuplicateProvider = errors.New("duplicate provider")
	// ErrInvalidProvider indicates a provider without a usable name
	ErrInvalidProvider = errors.New("invalid provider")
	// ErrMissingAPIKey indicates a credential check without a configured key
	ErrMissingAPIKey = errors.New("no API key configured")
	// ErrMalformedResponse indicates a provider response that could not be interpreted
	ErrMalformedResponse = errors.New("malformed provider response")
)
