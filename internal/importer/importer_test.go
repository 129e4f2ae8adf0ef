package importer

import (
	"context"
	"testing"

	"github.com/metricq/metricq-import/internal/errors"
	"github.com/metricq/metricq-import/internal/hta"
	"github.com/metricq/metricq-import/internal/source"
)

// =============================================================================
// Fakes
// =============================================================================

type rangeQuery struct {
	lower, upper, limit uint64
}

// fakeSource serves rows from a slice, preserving slice order within a
// window, like a table scan that does not guarantee strict ordering for
// equal timestamps.
type fakeSource struct {
	rows       []source.Row
	queries    []rangeQuery
	statsCalls int
	rangeErr   error
}

func (f *fakeSource) Stats(ctx context.Context, metric string) (source.Stats, error) {
	f.statsCalls++
	if len(f.rows) == 0 {
		return source.Stats{}, errors.Wrapf(errors.ErrMetricEmpty, "metric %s", metric)
	}
	stats := source.Stats{
		Count:        uint64(len(f.rows)),
		MinTimestamp: f.rows[0].TimestampMs,
		MaxTimestamp: f.rows[0].TimestampMs,
	}
	for _, r := range f.rows[1:] {
		if r.TimestampMs < stats.MinTimestamp {
			stats.MinTimestamp = r.TimestampMs
		}
		if r.TimestampMs > stats.MaxTimestamp {
			stats.MaxTimestamp = r.TimestampMs
		}
	}
	return stats, nil
}

func (f *fakeSource) Range(ctx context.Context, metric string, lower, upper, limit uint64) ([]source.Row, error) {
	f.queries = append(f.queries, rangeQuery{lower, upper, limit})
	if f.rangeErr != nil {
		return nil, f.rangeErr
	}
	var out []source.Row
	for _, r := range f.rows {
		if r.TimestampMs >= lower && r.TimestampMs < upper {
			out = append(out, r)
			if uint64(len(out)) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSource) ValueRange(ctx context.Context, metric string) (float64, float64, error) {
	min, max := f.rows[0].Value, f.rows[0].Value
	for _, r := range f.rows[1:] {
		if r.Value < min {
			min = r.Value
		}
		if r.Value > max {
			max = r.Value
		}
	}
	return min, max, nil
}

func (f *fakeSource) Close() error { return nil }

type fakeMetric struct {
	inserted []hta.Sample
	flushes  int
}

func (f *fakeMetric) Insert(s hta.Sample) error {
	f.inserted = append(f.inserted, s)
	return nil
}

func (f *fakeMetric) Flush() error {
	f.flushes++
	return nil
}

func rowsAt(timestamps ...uint64) []source.Row {
	rows := make([]source.Row, len(timestamps))
	for i, ts := range timestamps {
		rows[i] = source.Row{TimestampMs: ts, Value: float64(i + 1)}
	}
	return rows
}

func checkMonotonic(t *testing.T, samples []hta.Sample) {
	t.Helper()
	for i := 1; i < len(samples); i++ {
		if samples[i].Time <= samples[i-1].Time {
			t.Fatalf("inserted samples not strictly increasing at %d: %s <= %s",
				i, samples[i].Time, samples[i-1].Time)
		}
	}
}

// =============================================================================
// Scenarios
// =============================================================================

// Five distinct rows with a row cap of 2: everything arrives, in order,
// across several chunk queries.
func TestRun_SmallCap(t *testing.T) {
	src := &fakeSource{rows: rowsAt(100, 200, 300, 400, 500)}
	dest := &fakeMetric{}

	res, err := Run(context.Background(), src, dest, Options{
		SourceMetric:    "m",
		MaxRowsPerQuery: 2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Rows != 5 {
		t.Errorf("rows = %d, want 5", res.Rows)
	}
	if res.Dropped != 0 {
		t.Errorf("dropped = %d, want 0", res.Dropped)
	}
	if len(dest.inserted) != 5 {
		t.Fatalf("inserted = %d, want 5", len(dest.inserted))
	}
	checkMonotonic(t, dest.inserted)
	if len(src.queries) < 3 {
		t.Errorf("chunk queries = %d, want at least 3", len(src.queries))
	}
	if res.Chunks != uint64(len(src.queries)) {
		t.Errorf("reported chunks %d != issued queries %d", res.Chunks, len(src.queries))
	}
}

// A duplicate timestamp is dropped, not imported twice.
func TestRun_DuplicateTimestamp(t *testing.T) {
	src := &fakeSource{rows: rowsAt(100, 200, 200, 300)}
	dest := &fakeMetric{}

	res, err := Run(context.Background(), src, dest, Options{SourceMetric: "m", MaxRowsPerQuery: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Rows != 3 {
		t.Errorf("rows = %d, want 3", res.Rows)
	}
	if res.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", res.Dropped)
	}
	checkMonotonic(t, dest.inserted)

	want := []uint64{100, 200, 300}
	for i, ts := range want {
		if dest.inserted[i].Time != hta.TimePointFromMillis(ts) {
			t.Errorf("sample %d time = %s, want %dms", i, dest.inserted[i].Time, ts)
		}
	}
}

// A regression within one batch is rejected against the running cursor,
// not against the batch's own ordering.
func TestRun_OutOfOrderBatch(t *testing.T) {
	src := &fakeSource{rows: rowsAt(100, 300, 200, 400)}
	dest := &fakeMetric{}

	res, err := Run(context.Background(), src, dest, Options{SourceMetric: "m", MaxRowsPerQuery: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Rows != 3 || res.Dropped != 1 {
		t.Errorf("rows = %d dropped = %d, want 3/1", res.Rows, res.Dropped)
	}
	checkMonotonic(t, dest.inserted)

	want := []uint64{100, 300, 400}
	for i, ts := range want {
		if dest.inserted[i].Time != hta.TimePointFromMillis(ts) {
			t.Errorf("sample %d time = %s, want %dms", i, dest.inserted[i].Time, ts)
		}
	}
}

// A requested lower bound past the source's extent imports nothing and
// still succeeds.
func TestRun_BoundsOutsideExtent(t *testing.T) {
	src := &fakeSource{rows: rowsAt(100, 200, 300, 400, 500)}
	dest := &fakeMetric{}

	res, err := Run(context.Background(), src, dest, Options{
		SourceMetric:    "m",
		MinTimestamp:    501,
		MaxRowsPerQuery: 10,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rows != 0 {
		t.Errorf("rows = %d, want 0", res.Rows)
	}
	if len(src.queries) != 0 {
		t.Errorf("expected no chunk queries, got %d", len(src.queries))
	}
}

// =============================================================================
// Properties
// =============================================================================

// When the row cap truncates a chunk before the nominal window edge, the
// next query starts one past the last returned row, so nothing between the
// truncation point and the window edge is skipped.
func TestRun_NoSilentSkipAcrossTruncatedChunk(t *testing.T) {
	// Dense cluster at the start makes the first window hit the cap.
	src := &fakeSource{rows: rowsAt(100, 101, 102, 103, 104, 200)}
	dest := &fakeMetric{}

	res, err := Run(context.Background(), src, dest, Options{SourceMetric: "m", MaxRowsPerQuery: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Rows != 6 {
		t.Fatalf("rows = %d, want 6 (a truncated chunk lost data)", res.Rows)
	}
	checkMonotonic(t, dest.inserted)

	// The first chunk returns {100, 101}; the second must start at 102.
	if len(src.queries) < 2 {
		t.Fatalf("expected multiple queries, got %d", len(src.queries))
	}
	first := src.queries[0]
	second := src.queries[1]
	if first.lower != 100 {
		t.Errorf("first query lower = %d, want 100", first.lower)
	}
	if second.lower != 102 {
		t.Errorf("second query lower = %d, want 102 (last returned + 1)", second.lower)
	}
	if second.lower == first.upper {
		t.Error("advanced to the nominal window edge instead of last returned row")
	}
}

func TestRun_FlushesEveryChunk(t *testing.T) {
	src := &fakeSource{rows: rowsAt(100, 200, 300, 400, 500)}
	dest := &fakeMetric{}

	if _, err := Run(context.Background(), src, dest, Options{SourceMetric: "m", MaxRowsPerQuery: 2}); err != nil {
		t.Fatal(err)
	}

	// Every non-empty chunk ends in a flush.
	if dest.flushes < 3 {
		t.Errorf("flushes = %d, want one per non-empty chunk (>= 3)", dest.flushes)
	}
}

func TestRun_EmptyMetric(t *testing.T) {
	src := &fakeSource{}
	dest := &fakeMetric{}

	_, err := Run(context.Background(), src, dest, Options{SourceMetric: "m"})
	if !errors.Is(err, errors.ErrMetricEmpty) {
		t.Errorf("err = %v, want ErrMetricEmpty", err)
	}
}

func TestRun_SourceErrorAborts(t *testing.T) {
	src := &fakeSource{rows: rowsAt(100, 200, 300)}
	src.rangeErr = errors.Wrap(errors.ErrSourceQuery, "connection lost")
	dest := &fakeMetric{}

	_, err := Run(context.Background(), src, dest, Options{SourceMetric: "m", MaxRowsPerQuery: 10})
	if !errors.Is(err, errors.ErrSourceQuery) {
		t.Errorf("err = %v, want ErrSourceQuery", err)
	}
	if len(dest.inserted) != 0 {
		t.Errorf("inserted %d samples despite query failure", len(dest.inserted))
	}
}

func TestRun_Cancellation(t *testing.T) {
	src := &fakeSource{rows: rowsAt(100, 200, 300)}
	dest := &fakeMetric{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, src, dest, Options{SourceMetric: "m", MaxRowsPerQuery: 10})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Rows != 0 {
		t.Errorf("rows = %d, want 0", res.Rows)
	}
	if len(src.queries) != 0 {
		t.Errorf("issued %d chunk queries after cancellation", len(src.queries))
	}
	if dest.flushes != 1 {
		t.Errorf("flushes = %d, want 1 (flush on cancellation)", dest.flushes)
	}
}

func TestProbeRange_Idempotent(t *testing.T) {
	src := &fakeSource{rows: rowsAt(100, 200, 300)}

	first, err := ProbeRange(context.Background(), src, "m")
	if err != nil {
		t.Fatal(err)
	}
	second, err := ProbeRange(context.Background(), src, "m")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("probe not idempotent: %+v != %+v", first, second)
	}
	if src.statsCalls != 2 {
		t.Errorf("stats calls = %d", src.statsCalls)
	}
}
