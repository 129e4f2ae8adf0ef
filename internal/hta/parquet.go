package hta

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// sampleRow is the Parquet layout of one raw sample.
type sampleRow struct {
	TimestampNs int64   `parquet:"timestamp_ns"`
	Value       float64 `parquet:"value"`
}

// aggregateRow is the Parquet layout of one aggregation interval.
// Percentiles are pointers so that Parquet nulls carry their presence;
// an all-zero percentile triple is valid data, not absence.
type aggregateRow struct {
	IntervalStart int64    `parquet:"interval_start"`
	IntervalEnd   int64    `parquet:"interval_end"`
	Count         int64    `parquet:"count"`
	Sum           float64  `parquet:"sum"`
	Min           float64  `parquet:"min"`
	Max           float64  `parquet:"max"`
	FirstNs       int64    `parquet:"first_ns"`
	LastNs        int64    `parquet:"last_ns"`
	P50           *float64 `parquet:"p50,optional"`
	P90           *float64 `parquet:"p90,optional"`
	P99           *float64 `parquet:"p99,optional"`
}

// writeSampleSegment writes samples to a new Parquet segment file.
func writeSampleSegment(path string, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}

	writer := parquet.NewGenericWriter[sampleRow](f, parquet.Compression(&parquet.Zstd))

	rows := make([]sampleRow, len(samples))
	for i, s := range samples {
		rows[i] = sampleRow{TimestampNs: s.Time.UnixNano(), Value: s.Value}
	}

	if _, err := writer.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write segment: %w", err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close segment: %w", err)
	}
	return f.Close()
}

// writeAggregateSegment writes aggregates to a new Parquet segment file.
func writeAggregateSegment(path string, aggs []Aggregate) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}

	writer := parquet.NewGenericWriter[aggregateRow](f, parquet.Compression(&parquet.Zstd))

	rows := make([]aggregateRow, len(aggs))
	for i := range aggs {
		rows[i] = aggregateToRow(&aggs[i])
	}

	if _, err := writer.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write segment: %w", err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close segment: %w", err)
	}
	return f.Close()
}

func aggregateToRow(a *Aggregate) aggregateRow {
	row := aggregateRow{
		IntervalStart: a.IntervalStart.UnixNano(),
		IntervalEnd:   a.IntervalEnd.UnixNano(),
		Count:         a.Count,
		Sum:           a.Sum,
		Min:           a.Min,
		Max:           a.Max,
		FirstNs:       a.First.UnixNano(),
		LastNs:        a.Last.UnixNano(),
	}
	row.P50 = a.P50
	row.P90 = a.P90
	row.P99 = a.P99
	return row
}

func rowToAggregate(r *aggregateRow) Aggregate {
	a := Aggregate{
		IntervalStart: TimePoint(r.IntervalStart),
		IntervalEnd:   TimePoint(r.IntervalEnd),
		Count:         r.Count,
		Sum:           r.Sum,
		Min:           r.Min,
		Max:           r.Max,
		First:         TimePoint(r.FirstNs),
		Last:          TimePoint(r.LastNs),
	}
	a.P50 = r.P50
	a.P90 = r.P90
	a.P99 = r.P99
	return a
}

// ReadSampleSegment reads all samples from a segment file.
func ReadSampleSegment(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[sampleRow](f)
	defer reader.Close()

	rows := make([]sampleRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read segment: %w", err)
	}

	samples := make([]Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = Sample{Time: TimePoint(rows[i].TimestampNs), Value: rows[i].Value}
	}
	return samples, nil
}

// ReadAggregateSegment reads all aggregates from a segment file.
func ReadAggregateSegment(path string) ([]Aggregate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[aggregateRow](f)
	defer reader.Close()

	rows := make([]aggregateRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read segment: %w", err)
	}

	aggs := make([]Aggregate, n)
	for i := 0; i < n; i++ {
		aggs[i] = rowToAggregate(&rows[i])
	}
	return aggs, nil
}
