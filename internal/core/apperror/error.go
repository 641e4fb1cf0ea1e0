// Package apperror provides structured error handling following RFC 7807 Problem Details.
// Every business failure raised by the bookkeeping core is an AppError.
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

	// Operational: numbering space exhausted, operators must act
	CodeSequenceLimitExceeded = "SEQUENCE_LIMIT_EXCEEDED"

	// Validation errors (400)
	CodeValidation    = "VALIDATION_ERROR"
	CodeInvalidAmount = "INVALID_AMOUNT"

	// Business rule violations (422)
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeImmutablePeriod   = "IMMUTABLE_PERIOD"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Lock contention (409); the caller may retry the whole transaction
	CodeLockTimeout = "LOCK_TIMEOUT"
)

// AppError is the standard error type of the core.
// It implements error interface and provides structured details for callers.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (quantities, keys, etc.)
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

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidAmount is returned when a ledger amount is zero or negative.
func NewInvalidAmount(amount any) *AppError {
	return &AppError{
		Code:       CodeInvalidAmount,
		Message:    "Amount must be positive",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"amount": amount},
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

// NewInsufficientStock creates a stock shortage error
func NewInsufficientStock(productID, branchID string, requested, available int64) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    fmt.Sprintf("Insufficient stock. Available: %d, Requested: %d", available, requested),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"branch_id":  branchID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewSequenceLimitExceeded is returned when a numbering series has no numbers left.
func NewSequenceLimitExceeded(entityType string, year int, max int64) *AppError {
	return &AppError{
		Code:       CodeSequenceLimitExceeded,
		Message:    fmt.Sprintf("Sequence limit reached for %s in year %d. Max: %d", entityType, year, max),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"entity_type": entityType, "year": year, "max_value": max},
	}
}

// NewImmutablePeriod is returned when a closed year's sequence would be rewritten.
func NewImmutablePeriod(entityType string, year int) *AppError {
	return &AppError{
		Code:       CodeImmutablePeriod,
		Message:    fmt.Sprintf("Sequence %s for year %d is closed for modifications", entityType, year),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"entity_type": entityType, "year": year},
	}
}

// NewLockTimeout wraps a lock wait that exceeded the store timeout or a detected deadlock.
func NewLockTimeout(resource string, err error) *AppError {
	return &AppError{
		Code:       CodeLockTimeout,
		Message:    "Could not acquire lock, transaction may be retried",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"resource": resource},
		Err:        err,
	}
}

// NewDatabase wraps an unexpected storage failure.
func NewDatabase(op string, err error) *AppError {
	return &AppError{
		Code:       CodeDatabase,
		Message:    fmt.Sprintf("Database error during %s", op),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
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

// IsInsufficientStock checks if error is CodeInsufficientStock
func IsInsufficientStock(err error) bool {
	return HasCode(err, CodeInsufficientStock)
}

// IsSequenceLimitExceeded checks if error is CodeSequenceLimitExceeded
func IsSequenceLimitExceeded(err error) bool {
	return HasCode(err, CodeSequenceLimitExceeded)
}

// IsRetryable reports whether the orchestrator may retry the whole transaction.
func IsRetryable(err error) bool {
	return HasCode(err, CodeLockTimeout)
}
