package domain

import "errors"

// Common errors used throughout the application.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidAPIKey = errors.New("invalid API key")

	// Sync taxonomy.
	ErrMalformedSpec         = errors.New("malformed course spec")
	ErrGroupNotFound         = errors.New("group not found")
	ErrDirectoryUnavailable  = errors.New("directory unavailable")
	ErrPlatform              = errors.New("platform request failed")
	ErrPaginationExhausted   = errors.New("pagination exhausted")
	ErrInvalidToken          = errors.New("invalid token")
	ErrMissingToken          = errors.New("no access token set")
	ErrSchedulerUnconfigured = errors.New("scheduled sync requires a configured access token")
)

// Error codes for standardized API error responses.
const (
	ErrCodeResourceNotFound      = "RESOURCE_NOT_FOUND"
	ErrCodeResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeValidationError       = "VALIDATION_ERROR"
	ErrCodeInvalidToken          = "INVALID_TOKEN"
	ErrCodePlatformError         = "PLATFORM_ERROR"
	ErrCodeDirectoryError        = "DIRECTORY_ERROR"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// StandardError represents a standardized error response from the API.
type StandardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// StandardErrorResponse wraps a StandardError for JSON responses.
type StandardErrorResponse struct {
	Error StandardError `json:"error"`
}
