// Package source provides read access to the relational database holding
// the metric rows to import.
//
// Each metric lives in its own table with (timestamp, value) columns, the
// timestamp being unix milliseconds. The package exposes exactly the two
// query shapes the importer needs: the aggregate range probe and the
// bounded, limit-capped ascending range scan.
package source

import "context"

// Stats describes the full timestamp extent and row count of one metric,
// independent of any caller-supplied bounds.
type Stats struct {
	Count        uint64
	MinTimestamp uint64 // unix milliseconds
	MaxTimestamp uint64 // unix milliseconds
}

// Row is a single source row.
type Row struct {
	TimestampMs uint64
	Value       float64
}

// Source is the read-only query surface of the import database.
//
// Implementations must return Range results in ascending timestamp order.
// Note the source does not guarantee strictly increasing timestamps across
// rows; duplicates and regressions are filtered downstream.
type Source interface {
	// Stats runs the aggregate probe for one metric. A metric with zero
	// rows is an error (errors.ErrMetricEmpty), not a zero Stats.
	Stats(ctx context.Context, metric string) (Stats, error)

	// Range returns rows with lower <= timestamp < upper, ascending,
	// truncated at limit rows.
	Range(ctx context.Context, metric string, lower, upper, limit uint64) ([]Row, error)

	// ValueRange returns the minimum and maximum value of the metric.
	// Used only by preflight plausibility checks.
	ValueRange(ctx context.Context, metric string) (min, max float64, err error)

	// Close releases the underlying connection.
	Close() error
}
