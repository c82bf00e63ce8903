// Package apperror provides structured error handling following RFC 7807 Problem Details.
// Every error surfaced by the query compiler is an AppError so that the HTTP layer
// can render a stable code and the CLI can print a readable message.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Query compilation errors (400)
	CodeInvalidFilterFormat    = "INVALID_FILTER_FORMAT"
	CodeMalformedRelationSpec  = "MALFORMED_RELATION_SPEC"
	CodeUnknownRelation        = "UNKNOWN_RELATION"
	CodeUnsupportedCardinality = "UNSUPPORTED_CARDINALITY"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (offending spec, column, relation name)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInvalidFilterFormat is returned when a filter string cannot be parsed
// or names an operator outside the operator table.
func NewInvalidFilterFormat(spec string) *AppError {
	return &AppError{
		Code:       CodeInvalidFilterFormat,
		Message:    fmt.Sprintf("Invalid Filter Format %s", spec),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"filter": spec},
	}
}

// NewMalformedRelationSpec is returned when a relation spec has no
// relation|column pair and no projection callback.
func NewMalformedRelationSpec(spec string) *AppError {
	return &AppError{
		Code:       CodeMalformedRelationSpec,
		Message:    fmt.Sprintf("Incorrectly formatted relation %s", spec),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"relation": spec},
	}
}

// NewUnknownRelation is returned by schema providers when the parent table
// does not define the requested relation.
func NewUnknownRelation(parent, name string) *AppError {
	return &AppError{
		Code:       CodeUnknownRelation,
		Message:    fmt.Sprintf("relation %s is not defined on %s", name, parent),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"parent": parent, "relation": name},
	}
}

// NewUnsupportedCardinality describes the flat-join fallback taken for a relation
// whose cardinality is neither has-many nor belongs-to. It is a diagnostic, not a failure.
func NewUnsupportedCardinality(relation, cardinality string) *AppError {
	return &AppError{
		Code:       CodeUnsupportedCardinality,
		Message:    fmt.Sprintf("relation %s has unsupported cardinality %q, using left join", relation, cardinality),
		HTTPStatus: http.StatusOK,
		Details:    map[string]any{"relation": relation, "cardinality": cardinality},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewDatabase wraps a query execution failure.
func NewDatabase(err error) *AppError {
	return &AppError{
		Code:       CodeDatabase,
		Message:    "Database error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewTimeout is returned when query execution exceeds its deadline.
func NewTimeout(err error) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    "Query timed out",
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsInvalidFilterFormat checks if error is CodeInvalidFilterFormat
func IsInvalidFilterFormat(err error) bool {
	return HasCode(err, CodeInvalidFilterFormat)
}

// IsMalformedRelationSpec checks if error is CodeMalformedRelationSpec
func IsMalformedRelationSpec(err error) bool {
	return HasCode(err, CodeMalformedRelationSpec)
}

// IsUnknownRelation checks if error is CodeUnknownRelation
func IsUnknownRelation(err error) bool {
	return HasCode(err, CodeUnknownRelation)
}
