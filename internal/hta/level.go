package hta

import (
	"math"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// level aggregates incoming samples into fixed-width intervals of one
// ladder step. Samples arrive in strictly ascending time order, so an
// interval can be closed as soon as a sample beyond its end shows up.
type level struct {
	interval int64 // ns
	closed   []Aggregate

	// open interval state
	active      bool
	start       TimePoint
	count       int64
	sum         float64
	min         float64
	max         float64
	first       TimePoint
	last        TimePoint
	sketch      *ddsketch.DDSketch
	percentiles bool
}

func newLevel(interval int64, percentiles bool) *level {
	return &level{interval: interval, percentiles: percentiles}
}

// buildLevels constructs the geometric aggregation ladder
// min, min*factor, ... while not exceeding max.
func buildLevels(opts MetricOptions) []*level {
	var levels []*level
	for interval := opts.IntervalMin; interval <= opts.IntervalMax; interval *= opts.IntervalFactor {
		levels = append(levels, newLevel(interval, opts.Percentiles))
		if interval > math.MaxInt64/opts.IntervalFactor {
			break
		}
	}
	return levels
}

// intervalStart truncates t to the start of its interval, safe for
// pre-epoch timestamps.
func (l *level) intervalStart(t TimePoint) TimePoint {
	ns := int64(t)
	q := ns / l.interval
	if ns%l.interval < 0 {
		q--
	}
	return TimePoint(q * l.interval)
}

func (l *level) add(s Sample) {
	if l.active && int64(s.Time) >= int64(l.start)+l.interval {
		l.seal()
	}
	if !l.active {
		l.open(l.intervalStart(s.Time))
	}

	l.count++
	l.sum += s.Value
	if s.Value < l.min {
		l.min = s.Value
	}
	if s.Value > l.max {
		l.max = s.Value
	}
	if l.count == 1 {
		l.first = s.Time
	}
	l.last = s.Time

	if l.sketch != nil {
		l.sketch.Add(s.Value)
	}
}

func (l *level) open(start TimePoint) {
	l.active = true
	l.start = start
	l.count = 0
	l.sum = 0
	l.min = math.MaxFloat64
	l.max = -math.MaxFloat64
	l.sketch = nil

	if l.percentiles {
		// 1% relative accuracy, same default as the closing stats
		sketch, err := ddsketch.NewDefaultDDSketch(0.01)
		if err == nil {
			l.sketch = sketch
		}
	}
}

// seal closes the open interval and queues its aggregate. Empty intervals
// are never emitted; gaps in the data produce gaps in the aggregates.
func (l *level) seal() {
	if !l.active || l.count == 0 {
		l.active = false
		return
	}

	agg := Aggregate{
		IntervalStart: l.start,
		IntervalEnd:   TimePoint(int64(l.start) + l.interval),
		Count:         l.count,
		Sum:           l.sum,
		Min:           l.min,
		Max:           l.max,
		First:         l.first,
		Last:          l.last,
	}

	if l.sketch != nil {
		p50, err50 := l.sketch.GetValueAtQuantile(0.50)
		p90, err90 := l.sketch.GetValueAtQuantile(0.90)
		p99, err99 := l.sketch.GetValueAtQuantile(0.99)
		if err50 == nil && err90 == nil && err99 == nil {
			agg.P50, agg.P90, agg.P99 = &p50, &p90, &p99
		}
	}

	l.closed = append(l.closed, agg)
	l.active = false
}

// drain returns and clears the closed aggregates.
func (l *level) drain() []Aggregate {
	out := l.closed
	l.closed = nil
	return out
}

func (l *level) duration() time.Duration {
	return time.Duration(l.interval)
}
