package hta

import (
	"fmt"
	"os"
	"sync"

	"github.com/metricq/metricq-import/internal/errors"
)

// Directory is the registry of destination metrics under one data
// directory. Referencing an unknown metric name creates it with its
// configured options, or defaults when it was never configured.
type Directory struct {
	mu sync.Mutex

	path    string
	options map[string]MetricOptions
	metrics map[string]*Metric
	closed  bool
}

// NewDirectory opens (or creates) a data directory. options maps metric
// names to their aggregation configuration; metrics without an entry get
// DefaultMetricOptions.
func NewDirectory(path string, options map[string]MetricOptions) (*Directory, error) {
	if path == "" {
		return nil, errors.NewMissingField("data path")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	if options == nil {
		options = make(map[string]MetricOptions)
	}

	return &Directory{
		path:    path,
		options: options,
		metrics: make(map[string]*Metric),
	}, nil
}

// OpenOrCreate returns the handle for the named metric, creating its
// on-disk layout on first reference. Repeated calls return the same handle.
func (d *Directory) OpenOrCreate(name string) (*Metric, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.ErrDirectoryClosed
	}
	if m, ok := d.metrics[name]; ok {
		return m, nil
	}

	opts, ok := d.options[name]
	if !ok {
		opts = DefaultMetricOptions()
	}

	m, err := openMetric(d.path, name, opts)
	if err != nil {
		return nil, err
	}
	d.metrics[name] = m
	return m, nil
}

// Path returns the data directory path.
func (d *Directory) Path() string {
	return d.path
}

// Close closes all open metrics, sealing and flushing their state.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var firstErr error
	for _, m := range d.metrics {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
