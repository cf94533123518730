// Package errors holds the error definitions shared by every seiscube package.
//
// This file provides:
// - Stable error codes and kind names carried in API error responses
// - Sentinel errors for all error conditions
// - ErrorToCode, CodeToError and HTTPStatus mapping
// - Error wrapping utilities and contextual constructors
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Error codes - carried in the "code" field of API error responses
// ============================================================================

const (
	CodeUnknown              int32 = 1
	CodeInvalidRequest       int32 = 2
	CodeFormat               int32 = 3
	CodeHeaderField          int32 = 4
	CodeInsufficientGeometry int32 = 5
	CodeOutOfRange           int32 = 6
	CodeStoreUnavailable     int32 = 7
	CodeNotFound             int32 = 8
	CodeNoCube               int32 = 9
	CodeInternal             int32 = 10
	CodeBusy                 int32 = 11
	CodeTooLarge             int32 = 12
)

// CodeName returns the stable kind name for an error code.
func CodeName(code int32) string {
	switch code {
	case CodeUnknown:
		return "unknown"
	case CodeInvalidRequest:
		return "invalid_request"
	case CodeFormat:
		return "format_error"
	case CodeHeaderField:
		return "header_field_error"
	case CodeInsufficientGeometry:
		return "insufficient_geometry_data"
	case CodeOutOfRange:
		return "out_of_range_index"
	case CodeStoreUnavailable:
		return "store_unavailable"
	case CodeNotFound:
		return "not_found"
	case CodeNoCube:
		return "no_cube_loaded"
	case CodeInternal:
		return "internal"
	case CodeBusy:
		return "busy"
	case CodeTooLarge:
		return "too_large"
	default:
		return fmt.Sprintf("code_%d", code)
	}
}

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Input errors
	ErrFormat         = errors.New("unreadable trace file")
	ErrHeaderField    = errors.New("trace header field unreadable")
	ErrInvalidAxis    = errors.New("invalid slice axis")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrTooLarge       = errors.New("payload too large")

	// Geometry
	ErrInsufficientGeometry = errors.New("insufficient geometry data")

	// Slicing
	ErrOutOfRange = errors.New("index out of range")
	ErrNoCube     = errors.New("no cube loaded")

	// Lookup
	ErrNotFound = errors.New("not found")

	// Durable store
	ErrStoreUnavailable = errors.New("object store unavailable")

	// Background work
	ErrQueueFull  = errors.New("persistence queue full")
	ErrPoolClosed = errors.New("persistence pool closed")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrCatalog  = errors.New("catalog error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation returns true if err was caused by bad caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAxis) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidConfig)
}

// ============================================================================
// Error to code mapping
// ============================================================================

// ErrorToCode maps a sentinel error to its stable code.
func ErrorToCode(err error) int32 {
	if err == nil {
		return CodeUnknown
	}

	switch {
	case Is(err, ErrFormat):
		return CodeFormat
	case Is(err, ErrHeaderField):
		return CodeHeaderField
	case Is(err, ErrInsufficientGeometry):
		return CodeInsufficientGeometry
	case Is(err, ErrOutOfRange):
		return CodeOutOfRange
	case Is(err, ErrNoCube):
		return CodeNoCube
	case IsNotFound(err):
		return CodeNotFound
	case IsValidation(err):
		return CodeInvalidRequest
	case Is(err, ErrTooLarge):
		return CodeTooLarge
	case Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	case Is(err, ErrQueueFull), Is(err, ErrPoolClosed):
		return CodeBusy
	default:
		return CodeInternal
	}
}

// CodeToError maps a code to a sentinel error (for clients).
func CodeToError(code int32) error {
	switch code {
	case CodeInvalidRequest:
		return ErrInvalidRequest
	case CodeFormat:
		return ErrFormat
	case CodeHeaderField:
		return ErrHeaderField
	case CodeInsufficientGeometry:
		return ErrInsufficientGeometry
	case CodeOutOfRange:
		return ErrOutOfRange
	case CodeStoreUnavailable:
		return ErrStoreUnavailable
	case CodeNotFound:
		return ErrNotFound
	case CodeNoCube:
		return ErrNoCube
	case CodeBusy:
		return ErrQueueFull
	case CodeTooLarge:
		return ErrTooLarge
	default:
		return ErrInternal
	}
}

// HTTPStatus returns the HTTP status used for a code.
func HTTPStatus(code int32) int {
	switch code {
	case CodeInvalidRequest, CodeFormat, CodeHeaderField, CodeOutOfRange:
		return http.StatusBadRequest
	case CodeNotFound, CodeNoCube:
		return http.StatusNotFound
	case CodeStoreUnavailable, CodeBusy:
		return http.StatusServiceUnavailable
	case CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewFormat creates a format error. cause may be nil.
func NewFormat(reason string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%s: %w: %w", reason, ErrFormat, cause)
	}
	return fmt.Errorf("%s: %w", reason, ErrFormat)
}

// NewHeaderField creates an error for an unreadable header field of one trace.
func NewHeaderField(trace int, field string, cause error) error {
	if cause != nil {
		return fmt.Errorf("trace %d field %s: %w: %w", trace, field, ErrHeaderField, cause)
	}
	return fmt.Errorf("trace %d field %s: %w", trace, field, ErrHeaderField)
}

// NewOutOfRange creates an out-of-range error for a slice index.
func NewOutOfRange(axis string, index, length int) error {
	return fmt.Errorf("index %d out of bounds for %s (max: %d): %w", index, axis, length-1, ErrOutOfRange)
}

// NewInsufficientGeometry reports that too few position records were usable.
func NewInsufficientGeometry(valid, required int) error {
	return fmt.Errorf("%d usable position records, need %d: %w", valid, required, ErrInsufficientGeometry)
}

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewInvalidAxis creates an invalid axis error.
func NewInvalidAxis(axis string) error {
	return fmt.Errorf("'%s' (want inline, xline or sample): %w", axis, ErrInvalidAxis)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidRequest)
}
