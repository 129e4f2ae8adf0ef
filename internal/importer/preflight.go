package importer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/metricq/metricq-import/internal/logging"
	"github.com/metricq/metricq-import/internal/source"
)

// PreflightMetric names one metric to probe and its expected sampling
// interval (0 disables the interval plausibility check for it).
type PreflightMetric struct {
	Name             string
	ExpectedInterval time.Duration
}

// PreflightOptions configures the dry-run probe.
type PreflightOptions struct {
	// MaxAge flags metrics whose newest row is older than this.
	// 0 disables the check.
	MaxAge time.Duration

	// IntervalTolerance is the accepted factor between expected and
	// observed average interval. Defaults to 1.5.
	IntervalTolerance float64

	// CheckValues also probes the value range and flags implausible data.
	CheckValues bool

	// Concurrency bounds parallel probes. Defaults to 3. Probes are
	// read-only; the import itself always runs strictly sequentially.
	Concurrency int

	// Now overrides the reference time for age checks. Zero means
	// time.Now().
	Now time.Time
}

// PreflightReport summarizes the probe of one metric.
type PreflightReport struct {
	Metric      string
	Stats       source.Stats
	AvgInterval time.Duration
	ValueMin    float64
	ValueMax    float64
	Warnings    []string
}

// Suspicious returns true if any plausibility check failed.
func (r *PreflightReport) Suspicious() bool {
	return len(r.Warnings) > 0
}

// Preflight probes each metric's row count, extent, and average sampling
// interval without importing anything, and runs plausibility checks on the
// results. Reports are returned in input order.
func Preflight(ctx context.Context, src source.Source, metrics []PreflightMetric, opts PreflightOptions) ([]PreflightReport, error) {
	if opts.IntervalTolerance == 0 {
		opts.IntervalTolerance = 1.5
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 3
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	log := logging.Component("preflight")
	reports := make([]PreflightReport, len(metrics))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, m := range metrics {
		i, m := i, m
		g.Go(func() error {
			report, err := probeOne(ctx, src, m, opts)
			if err != nil {
				return err
			}
			reports[i] = report
			log.Info("probed metric",
				"metric", m.Name,
				"count", report.Stats.Count,
				"avg_interval", report.AvgInterval,
				"warnings", len(report.Warnings))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func probeOne(ctx context.Context, src source.Source, m PreflightMetric, opts PreflightOptions) (PreflightReport, error) {
	stats, err := ProbeRange(ctx, src, m.Name)
	if err != nil {
		return PreflightReport{}, err
	}

	report := PreflightReport{Metric: m.Name, Stats: stats}
	report.AvgInterval = time.Duration(
		float64(stats.MaxTimestamp-stats.MinTimestamp) / float64(stats.Count) * float64(time.Millisecond))

	if opts.MaxAge > 0 {
		age := opts.Now.Sub(time.UnixMilli(int64(stats.MaxTimestamp)))
		if age < 0 || age > opts.MaxAge {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("suspicious max timestamp age %s", age))
		}
	}

	if m.ExpectedInterval > 0 {
		tol := opts.IntervalTolerance
		lower := time.Duration(float64(m.ExpectedInterval) / tol)
		upper := time.Duration(float64(m.ExpectedInterval) * tol)
		if report.AvgInterval < lower || report.AvgInterval > upper {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("suspicious interval %s, expected %s", report.AvgInterval, m.ExpectedInterval))
		}
	}

	if opts.CheckValues {
		min, max, err := src.ValueRange(ctx, m.Name)
		if err != nil {
			return PreflightReport{}, err
		}
		report.ValueMin, report.ValueMax = min, max
		if !(-1e9 < min && min <= max && max < 1e9) {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("suspicious value range %g to %g", min, max))
		}
	}

	return report, nil
}
