// Package errors defines the error taxonomy of the scanner. Handlers and
// aggregators wrap failures into categorized errors so the poller can decide
// whether a triggering event is retryable and the API can map failures to
// status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryMissingEntity marks operations that assumed a prior event had
	// created an entity. Absence indicates an out-of-order or corrupted
	// event stream and is fatal for the triggering event.
	CategoryMissingEntity ErrorCategory = "missing_entity"
	// CategoryValuation marks failures of the price feed or master oracle.
	CategoryValuation ErrorCategory = "valuation"
	// CategoryProvider marks RPC/provider failures outside valuation.
	CategoryProvider ErrorCategory = "provider"
	// CategoryDatabase marks persistence failures.
	CategoryDatabase ErrorCategory = "database"
	// CategoryUserInput marks bad API input (4xx).
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem is the fallback for uncategorized failures (5xx).
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewMissingEntityError reports an entity a prior event should have created.
func NewMissingEntityError(kind, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMissingEntity,
		StatusCode: http.StatusNotFound,
		Code:       "MISSING_ENTITY",
		Message:    fmt.Sprintf("%s not found: %s", kind, id),
	}
}

// NewNotFoundError creates a not found error for API lookups.
func NewNotFoundError(resource, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
	}
}

// NewValuationError wraps a price feed or oracle failure.
func NewValuationError(token string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValuation,
		StatusCode: http.StatusBadGateway,
		Code:       "VALUATION_ERROR",
		Message:    fmt.Sprintf("failed to value token %s", token),
		Cause:      cause,
	}
}

// NewProviderError wraps an RPC provider failure.
func NewProviderError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("provider error during %s", operation),
		Cause:      cause,
	}
}

// NewDatabaseError wraps a persistence failure.
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsMissingEntity reports whether err is a missing-entity failure.
func IsMissingEntity(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryMissingEntity
}

// IsRetryable determines if an error is retryable by the event delivery
// layer. Missing entities are not: retrying cannot conjure the prior event.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryValuation, CategoryProvider, CategoryDatabase:
		return true
	default:
		return false
	}
}
