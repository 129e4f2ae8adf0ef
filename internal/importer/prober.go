package importer

import (
	"context"

	"github.com/metricq/metricq-import/internal/logging"
	"github.com/metricq/metricq-import/internal/source"
)

// ProbeRange runs the aggregate probe for one metric: its full row count
// and timestamp extent, independent of any requested bounds. A metric with
// zero rows is an error, never a zero-count result.
//
// Probing an unmodified source twice yields identical stats.
func ProbeRange(ctx context.Context, src source.Source, metric string) (source.Stats, error) {
	stats, err := src.Stats(ctx, metric)
	if err != nil {
		return source.Stats{}, err
	}

	logging.Component("prober").Debug("probed source range",
		"metric", metric,
		"count", stats.Count,
		"min_timestamp", stats.MinTimestamp,
		"max_timestamp", stats.MaxTimestamp)

	return stats, nil
}
