package loader

import (
	"time"

	"github.com/metricq/metricq-import/internal/errors"
)

// =============================================================================
// Config Types
// =============================================================================

// Config is the top-level configuration file structure.
//
// The file is parsed as YAML; since YAML is a superset of JSON, the legacy
// config.json files of the original dataheap importer load unchanged.
type Config struct {
	// Path is the destination data directory for imported metrics.
	Path string `yaml:"path"`

	// Import holds the source database connection parameters.
	Import ImportConfig `yaml:"import"`

	// Metrics holds per-metric destination configurations.
	Metrics []MetricConfig `yaml:"metrics"`
}

// ImportConfig holds source database connection parameters.
type ImportConfig struct {
	// Driver selects the database/sql driver: "mysql" (default) or "duckdb".
	Driver string `yaml:"driver"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	// QueryTimeoutSec bounds individual queries. 0 disables the timeout;
	// chunk queries on large tables can legitimately run for minutes.
	QueryTimeoutSec int `yaml:"query_timeout_sec"`
}

// QueryTimeout returns the query timeout as a duration.
func (c *ImportConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

// MetricConfig configures one destination metric.
//
// Interval values are nanoseconds, matching the destination store's native
// time resolution. Aggregation levels form a geometric ladder:
// interval_min, interval_min*interval_factor, ... up to interval_max.
type MetricConfig struct {
	Name string `yaml:"name"`

	// Mode is "RW" (default) or "RO". Read-only metrics reject inserts.
	Mode string `yaml:"mode"`

	// SamplingRate is the expected source sampling rate in Hz. Used to
	// derive interval defaults and by the preflight plausibility checks.
	SamplingRate float64 `yaml:"sampling_rate"`

	IntervalMin    int64 `yaml:"interval_min"`
	IntervalMax    int64 `yaml:"interval_max"`
	IntervalFactor int64 `yaml:"interval_factor"`

	// Percentiles enables p50/p90/p99 tracking per aggregation interval.
	Percentiles bool `yaml:"percentiles"`
}

// intervalMaxCeiling is the ladder cutoff: one interval of roughly a month
// (2.592e15 ns = 30 days) is the coarsest useful aggregation level.
const intervalMaxCeiling = int64(2.592e15)

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Import: ImportConfig{
			Driver: "mysql",
			Host:   "127.0.0.1",
			Port:   3306,
		},
	}
}

// ApplyDefaults fills in derived and default values.
func (c *Config) ApplyDefaults() {
	if c.Import.Driver == "" {
		c.Import.Driver = "mysql"
	}
	if c.Import.Port == 0 && c.Import.Driver == "mysql" {
		c.Import.Port = 3306
	}
	for i := range c.Metrics {
		c.Metrics[i].applyDefaults()
	}
}

func (m *MetricConfig) applyDefaults() {
	if m.Mode == "" {
		m.Mode = "RW"
	}
	if m.SamplingRate == 0 {
		m.SamplingRate = 1
	}
	if m.IntervalFactor == 0 {
		m.IntervalFactor = 10
	}
	if m.IntervalMin == 0 {
		m.IntervalMin = int64(m.SamplingRate * 40 * 1e9)
	}
	if m.IntervalMax == 0 {
		m.IntervalMax = defaultIntervalMax(m.IntervalMin, m.IntervalFactor)
	}
}

// defaultIntervalMax climbs the ladder from min until the next step would
// reach the ceiling, and returns the last interval below it.
func defaultIntervalMax(min, factor int64) int64 {
	i := min
	for {
		if i*factor >= intervalMaxCeiling {
			return i
		}
		i *= factor
	}
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.NewMissingField("path")
	}
	switch c.Import.Driver {
	case "mysql", "duckdb":
	default:
		return errors.NewInvalidValue("import.driver", c.Import.Driver, "must be mysql or duckdb")
	}
	if c.Import.Database == "" {
		return errors.NewMissingField("import.database")
	}
	for i := range c.Metrics {
		if err := c.Metrics[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m *MetricConfig) validate() error {
	if m.Name == "" {
		return errors.NewMissingField("metrics[].name")
	}
	if m.Mode != "RW" && m.Mode != "RO" {
		return errors.NewInvalidValue("mode", m.Mode, "must be RW or RO")
	}
	if m.IntervalMin <= 0 {
		return errors.NewInvalidValue("interval_min", m.IntervalMin, "must be positive")
	}
	if m.IntervalFactor < 2 {
		return errors.NewInvalidValue("interval_factor", m.IntervalFactor, "must be at least 2")
	}
	if m.IntervalMax < m.IntervalMin {
		return errors.NewInvalidValue("interval_max", m.IntervalMax, "must be >= interval_min")
	}
	return nil
}

// MetricConfigFor returns the configuration for the named metric, or a
// defaulted configuration when the metric is not listed. Unknown metrics
// are implicitly created on first reference.
func (c *Config) MetricConfigFor(name string) MetricConfig {
	for _, m := range c.Metrics {
		if m.Name == name {
			return m
		}
	}
	m := MetricConfig{Name: name}
	m.applyDefaults()
	return m
}
