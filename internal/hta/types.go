// Package hta implements the destination time-series store: an
// append-oriented directory of metrics, each keeping raw samples plus a
// geometric ladder of aggregation levels, persisted as Parquet segments.
package hta

import (
	"fmt"
	"math"
	"time"
)

// TimePoint is the store's native time representation: nanoseconds since
// the unix epoch.
type TimePoint int64

// MinTimePoint is the smallest representable TimePoint. A monotonicity
// cursor initialized to it accepts any first sample.
const MinTimePoint = TimePoint(math.MinInt64)

// TimePointFromMillis converts a source timestamp in unix milliseconds.
func TimePointFromMillis(ms uint64) TimePoint {
	return TimePoint(int64(ms) * int64(time.Millisecond))
}

// Time returns the TimePoint as a time.Time.
func (t TimePoint) Time() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

// UnixNano returns the raw nanosecond value.
func (t TimePoint) UnixNano() int64 {
	return int64(t)
}

func (t TimePoint) String() string {
	return t.Time().Format(time.RFC3339Nano)
}

// Sample is a single accepted point in destination time representation.
type Sample struct {
	Time  TimePoint
	Value float64
}

// Aggregate holds the statistics of one closed aggregation interval.
type Aggregate struct {
	IntervalStart TimePoint
	IntervalEnd   TimePoint

	Count int64
	Sum   float64
	Min   float64
	Max   float64

	// Timestamps of the actual first and last sample in the interval.
	First TimePoint
	Last  TimePoint

	// Percentiles, nil unless enabled for the metric.
	P50 *float64
	P90 *float64
	P99 *float64
}

// Mean returns the average value, or NaN for an empty aggregate.
func (a *Aggregate) Mean() float64 {
	if a.Count == 0 {
		return math.NaN()
	}
	return a.Sum / float64(a.Count)
}

// HasPercentiles returns true if percentile data is present.
func (a *Aggregate) HasPercentiles() bool {
	return a.P50 != nil
}

// Mode controls whether a metric accepts inserts.
type Mode int

const (
	// ModeReadWrite accepts inserts. The default.
	ModeReadWrite Mode = iota
	// ModeReadOnly rejects inserts.
	ModeReadOnly
)

func (m Mode) String() string {
	switch m {
	case ModeReadWrite:
		return "RW"
	case ModeReadOnly:
		return "RO"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// ParseMode parses "RW" or "RO".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "RW", "":
		return ModeReadWrite, nil
	case "RO":
		return ModeReadOnly, nil
	default:
		return ModeReadWrite, fmt.Errorf("unknown mode %q", s)
	}
}

// MetricOptions configures one metric's aggregation ladder.
//
// Interval values are nanoseconds. Levels run interval_min,
// interval_min*factor, ... while not exceeding interval_max.
type MetricOptions struct {
	Mode           Mode
	IntervalMin    int64
	IntervalMax    int64
	IntervalFactor int64

	// Percentiles enables p50/p90/p99 tracking per aggregation interval.
	Percentiles bool
}

// DefaultMetricOptions returns the options used for metrics created on
// first reference without an explicit configuration.
func DefaultMetricOptions() MetricOptions {
	return MetricOptions{
		Mode:           ModeReadWrite,
		IntervalMin:    40 * int64(time.Second),
		IntervalMax:    400_000 * int64(time.Second),
		IntervalFactor: 10,
	}
}
