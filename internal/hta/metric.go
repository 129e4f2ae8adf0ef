package hta

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/metricq/metricq-import/internal/errors"
)

const rawDirName = "raw"

// Metric is a handle to one destination metric. Inserts are buffered in
// memory; Flush writes the buffer to a new raw Parquet segment and closed
// aggregation intervals to per-level segments. Flush is the durability
// checkpoint: anything inserted after the last flush is lost on a crash.
//
// Metric is safe for concurrent use, though an import run owns its handle
// exclusively.
type Metric struct {
	mu sync.Mutex

	name string
	dir  string
	opts MetricOptions

	buffer []Sample
	levels []*level

	// lastTime enforces strictly ascending inserts across the lifetime of
	// the handle. The store is append-only and aggregates are computed on
	// the way in, so an out-of-order insert would corrupt the ladder.
	lastTime TimePoint

	seq    uint64 // next segment number
	closed bool
}

func openMetric(dataDir, name string, opts MetricOptions) (*Metric, error) {
	if err := validateMetricName(name); err != nil {
		return nil, err
	}

	dir := filepath.Join(dataDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Join(dir, rawDirName), 0755); err != nil {
		return nil, fmt.Errorf("create metric directory: %w", err)
	}

	m := &Metric{
		name:     name,
		dir:      dir,
		opts:     opts,
		levels:   buildLevels(opts),
		lastTime: MinTimePoint,
	}

	for _, l := range m.levels {
		if err := os.MkdirAll(filepath.Join(dir, levelDirName(l)), 0755); err != nil {
			return nil, fmt.Errorf("create level directory: %w", err)
		}
	}

	seq, err := scanSegmentSeq(dir)
	if err != nil {
		return nil, err
	}
	m.seq = seq

	return m, nil
}

// Insert appends a sample to the metric's buffer.
func (m *Metric) Insert(s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.ErrDirectoryClosed
	}
	if m.opts.Mode == ModeReadOnly {
		return errors.Wrapf(errors.ErrMetricReadOnly, "metric %s", m.name)
	}
	if s.Time <= m.lastTime {
		return errors.Wrapf(errors.ErrNonMonotonic, "metric %s: %s <= %s", m.name, s.Time, m.lastTime)
	}
	m.lastTime = s.Time

	m.buffer = append(m.buffer, s)
	for _, l := range m.levels {
		l.add(s)
	}
	return nil
}

// Flush writes buffered samples and closed aggregation intervals to new
// segment files. A flush with nothing buffered writes nothing.
func (m *Metric) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *Metric) flushLocked() error {
	wrote := false
	var seq uint64

	if len(m.buffer) > 0 {
		seq = m.nextSeq()
		wrote = true
		path := filepath.Join(m.dir, rawDirName, segmentFileName(seq))
		if err := writeSampleSegment(path, m.buffer); err != nil {
			return err
		}
		m.buffer = m.buffer[:0]
	}

	for _, l := range m.levels {
		aggs := l.drain()
		if len(aggs) == 0 {
			continue
		}
		if !wrote {
			seq = m.nextSeq()
			wrote = true
		}
		path := filepath.Join(m.dir, levelDirName(l), segmentFileName(seq))
		if err := writeAggregateSegment(path, aggs); err != nil {
			return err
		}
	}
	return nil
}

// Close seals open aggregation intervals, flushes, and invalidates the
// handle. Partial trailing intervals are written out; on a later re-import
// they simply gain a sibling segment.
func (m *Metric) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	for _, l := range m.levels {
		l.seal()
	}
	if err := m.flushLocked(); err != nil {
		return err
	}
	m.closed = true
	return nil
}

// Name returns the metric name.
func (m *Metric) Name() string {
	return m.name
}

// Path returns the metric's directory on disk.
func (m *Metric) Path() string {
	return m.dir
}

// BufferedSamples returns the number of samples awaiting flush.
func (m *Metric) BufferedSamples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffer)
}

func (m *Metric) nextSeq() uint64 {
	m.seq++
	return m.seq
}

func levelDirName(l *level) string {
	return "agg-" + l.duration().String()
}

func segmentFileName(seq uint64) string {
	return fmt.Sprintf("%08d.parquet", seq)
}

// scanSegmentSeq finds the highest existing segment number under the
// metric directory so that re-imports append instead of overwriting.
func scanSegmentSeq(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scan metric directory: %w", err)
	}

	var max uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			return 0, fmt.Errorf("scan segment directory: %w", err)
		}
		for _, f := range files {
			name, ok := strings.CutSuffix(f.Name(), ".parquet")
			if !ok {
				continue
			}
			n, err := strconv.ParseUint(name, 10, 64)
			if err != nil {
				continue
			}
			if n > max {
				max = n
			}
		}
	}
	return max, nil
}

// validateMetricName rejects names that would escape the data directory.
// Slashes are allowed (metrics like foo/bar_baz exist) and map to
// subdirectories.
func validateMetricName(name string) error {
	if name == "" {
		return errors.Wrap(errors.ErrInvalidMetric, "empty metric name")
	}
	if strings.HasPrefix(name, "/") {
		return errors.Wrapf(errors.ErrInvalidMetric, "metric %q is absolute", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return errors.Wrapf(errors.ErrInvalidMetric, "metric %q has invalid path element", name)
		}
	}
	return nil
}
