// Package importer streams time-ordered samples for one metric out of a
// relational source into the destination store.
//
// The import is chunked: the source's full time extent is probed once,
// an adaptive window width is derived from the average sampling interval,
// and the window is walked with bounded, limit-capped, ascending range
// queries. A monotonicity cursor rejects duplicate and out-of-order
// timestamps, which are a known defect of the source data.
package importer

import (
	"context"
	"time"

	"github.com/metricq/metricq-import/internal/errors"
	"github.com/metricq/metricq-import/internal/hta"
	"github.com/metricq/metricq-import/internal/logging"
	"github.com/metricq/metricq-import/internal/source"
)

// DefaultMaxRowsPerQuery caps a single chunk query's result set.
const DefaultMaxRowsPerQuery = 20_000_000

// Destination is the write surface the importer needs from a metric
// handle. Inserts are buffered; Flush is the durability checkpoint.
type Destination interface {
	Insert(hta.Sample) error
	Flush() error
}

// Options configures one import run.
type Options struct {
	// SourceMetric is the source table name.
	SourceMetric string

	// DestinationMetric is the destination metric name, used for logging
	// only; the handle itself is passed to Run.
	DestinationMetric string

	// MinTimestamp and MaxTimestamp bound the import in unix milliseconds.
	// 0 means unbounded on that end. The range is [min, max).
	MinTimestamp uint64
	MaxTimestamp uint64

	// MaxRowsPerQuery caps a single chunk query.
	// Defaults to DefaultMaxRowsPerQuery.
	MaxRowsPerQuery uint64
}

// Result reports what one run accomplished.
type Result struct {
	// Rows is the number of accepted, inserted samples.
	Rows uint64

	// Dropped counts rows rejected by the monotonicity filter.
	Dropped uint64

	// Chunks is the number of chunk queries issued.
	Chunks uint64

	Elapsed time.Duration
}

// Run imports all rows of one source metric within the clamped bounds
// into dest, in strictly ascending timestamp order.
//
// Cancellation is cooperative: ctx is checked once at the top of each
// chunk iteration. On cancellation the destination is flushed and the
// context error is returned alongside the partial result. There is no
// persisted progress cursor; a re-invocation restarts from the clamped
// lower bound and re-appends (the destination filter state is per-run, so
// re-runs duplicate data by design).
func Run(ctx context.Context, src source.Source, dest Destination, opts Options) (Result, error) {
	start := time.Now()
	log := logging.Component("importer").With("metric", opts.DestinationMetric)

	maxRows := opts.MaxRowsPerQuery
	if maxRows == 0 {
		maxRows = DefaultMaxRowsPerQuery
	}

	stats, err := ProbeRange(ctx, src, opts.SourceMetric)
	if err != nil {
		return Result{}, err
	}

	bounds := ClampBounds(opts.MinTimestamp, opts.MaxTimestamp, stats)

	// Average inter-sample spacing across the entire source range, not
	// just the requested bounds. This only sizes the window and is
	// self-correcting, so the approximation is acceptable.
	samplingInterval := float64(stats.MaxTimestamp-stats.MinTimestamp) / float64(stats.Count)

	// Halve the naive estimate so irregular sampling density rarely runs
	// a single chunk into the row cap.
	chunkTimedelta := uint64(samplingInterval * float64(maxRows) / 2)
	if chunkTimedelta == 0 {
		// A source spanning a single timestamp would otherwise produce a
		// zero-width window that never advances.
		chunkTimedelta = 1
	}

	log.Info("starting import",
		"source_metric", opts.SourceMetric,
		"chunk_timedelta_ms", chunkTimedelta,
		"lower", bounds.Lower,
		"upper", bounds.Upper)

	res := Result{}
	cursor := hta.MinTimePoint
	current := bounds.Lower

	for current < bounds.Upper {
		if err := ctx.Err(); err != nil {
			// Terminate cleanly between chunks: push anything accepted
			// but not yet flushed, then stop.
			if ferr := dest.Flush(); ferr != nil {
				log.Error("flush on cancellation failed", "error", ferr)
			}
			res.Elapsed = time.Since(start)
			log.Warn("import interrupted", "rows", res.Rows)
			return res, err
		}

		next := current + chunkTimedelta
		if next > bounds.Upper || next < current {
			next = bounds.Upper
		}

		batch, err := src.Range(ctx, opts.SourceMetric, current, next, maxRows)
		if err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		res.Chunks++

		if len(batch) == 0 {
			// No data in this sub-window; advance by the nominal width.
			current = next
			continue
		}

		for _, row := range batch {
			t := hta.TimePointFromMillis(row.TimestampMs)
			if t <= cursor {
				res.Dropped++
				log.Warn("skipping non-monotonous timestamp", "timestamp", t)
				continue
			}
			cursor = t
			if err := dest.Insert(hta.Sample{Time: t, Value: row.Value}); err != nil {
				res.Elapsed = time.Since(start)
				return res, errors.Wrap(err, "insert sample")
			}
			res.Rows++
		}

		if err := dest.Flush(); err != nil {
			res.Elapsed = time.Since(start)
			return res, errors.Wrap(err, "flush destination")
		}

		log.Info("chunk completed", "rows", res.Rows)

		// Advance one past the last row actually returned, not to the
		// nominal window edge: the row cap may have truncated this chunk,
		// and skipping to the edge would silently drop the remainder.
		current = batch[len(batch)-1].TimestampMs + 1
	}

	res.Elapsed = time.Since(start)
	log.Info("completed import",
		"rows", res.Rows,
		"dropped", res.Dropped,
		"chunks", res.Chunks,
		"elapsed", res.Elapsed)

	return res, nil
}
