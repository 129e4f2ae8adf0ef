package importer

import "github.com/metricq/metricq-import/internal/source"

// Bounds is the effective import time range: [Lower, Upper) in unix
// milliseconds, computed once per run and never mutated.
type Bounds struct {
	Lower uint64
	Upper uint64
}

// ClampBounds intersects the caller-requested range with the source's
// actual extent. requestedMax == 0 means unbounded; the upper bound is
// exclusive, derived from the source's inclusive maximum.
//
// A requested range entirely outside the source extent yields an empty
// Bounds and the import performs zero work.
func ClampBounds(requestedMin, requestedMax uint64, stats source.Stats) Bounds {
	lower := requestedMin
	if stats.MinTimestamp > lower {
		lower = stats.MinTimestamp
	}

	upper := stats.MaxTimestamp + 1
	if requestedMax != 0 && requestedMax < upper {
		upper = requestedMax
	}

	return Bounds{Lower: lower, Upper: upper}
}

// Empty returns true if the bounds cover no timestamps.
func (b Bounds) Empty() bool {
	return b.Lower >= b.Upper
}
