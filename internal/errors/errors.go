// Package errors provides sentinel errors and wrapping helpers shared by
// all importer components.
//
// Three classes of failure exist:
//   - configuration errors: fatal before any import work starts
//   - source query errors: fatal to the current run, never retried internally
//   - data quality drops: non-fatal, counted and logged by the importer
//
// Data quality drops are deliberately not modeled as errors; they are a
// known defect of the source data, not a failure of the run.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Source errors
	ErrSourceQuery   = errors.New("source query failed")
	ErrMetricEmpty   = errors.New("metric has no rows")
	ErrInvalidMetric = errors.New("invalid metric name")

	// Destination errors
	ErrMetricReadOnly  = errors.New("metric is read-only")
	ErrNonMonotonic    = errors.New("non-monotonic insert")
	ErrDirectoryClosed = errors.New("directory is closed")

	// Preflight errors. A dry-run that raises plausibility warnings fails
	// with this sentinel; the configuration itself is fine.
	ErrSuspiciousData = errors.New("suspicious source data")
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// ============================================================================
// Category checks
// ============================================================================

// IsConfig returns true if err is a configuration error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// IsSourceQuery returns true if err is a source-side failure.
// The whole run must be re-invoked; partial chunks are never retried.
func IsSourceQuery(err error) bool {
	return errors.Is(err, ErrSourceQuery) ||
		errors.Is(err, ErrMetricEmpty) ||
		errors.Is(err, ErrInvalidMetric)
}

// ============================================================================
// Wrapping utilities
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

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}
