package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/metricq/metricq-import/internal/errors"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds source database connection parameters.
type Config struct {
	// Driver is the database/sql driver name: "mysql" or "duckdb".
	Driver string

	Host     string
	Port     int
	User     string
	Password string

	// Database is the schema name for mysql, or the database file path
	// for duckdb snapshots.
	Database string

	// QueryTimeout bounds individual queries. 0 disables the timeout.
	QueryTimeout time.Duration
}

// DSN builds the driver-specific data source name.
func (c *Config) DSN() string {
	switch c.Driver {
	case "duckdb":
		return c.Database
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", c.User, c.Password, c.Host, c.Port, c.Database)
	}
}

// =============================================================================
// SQL Source
// =============================================================================

// SQLStore implements Source on top of database/sql.
//
// The connection is owned exclusively by one import run; pooling beyond a
// single connection buys nothing for a sequential batch job.
type SQLStore struct {
	db     *sql.DB
	config Config
}

var _ Source = (*SQLStore)(nil)

// Open opens and verifies a connection to the source database.
func Open(cfg Config) (*SQLStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "mysql"
	}

	db, err := sql.Open(driver, cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open source database")
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping source database")
	}

	return &SQLStore{db: db, config: cfg}, nil
}

// Close closes the underlying connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.QueryTimeout > 0 {
		return context.WithTimeout(ctx, s.config.QueryTimeout)
	}
	return ctx, func() {}
}

// Stats runs the aggregate probe query for one metric.
func (s *SQLStore) Stats(ctx context.Context, metric string) (Stats, error) {
	table, err := quoteIdent(s.config.Driver, metric)
	if err != nil {
		return Stats{}, err
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT COUNT(timestamp), MIN(timestamp), MAX(timestamp) FROM %s", table)

	var count uint64
	var min, max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query).Scan(&count, &min, &max); err != nil {
		return Stats{}, errors.Wrapf(errors.ErrSourceQuery, "stats query for %s: %v", metric, err)
	}

	if count == 0 || !min.Valid || !max.Valid {
		return Stats{}, errors.Wrapf(errors.ErrMetricEmpty, "metric %s", metric)
	}

	return Stats{
		Count:        count,
		MinTimestamp: uint64(min.Int64),
		MaxTimestamp: uint64(max.Int64),
	}, nil
}

// Range returns rows with lower <= timestamp < upper, ascending by
// timestamp, truncated at limit rows.
func (s *SQLStore) Range(ctx context.Context, metric string, lower, upper, limit uint64) ([]Row, error) {
	table, err := quoteIdent(s.config.Driver, metric)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT timestamp, value FROM %s WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp ASC LIMIT ?", table)

	rows, err := s.db.QueryContext(ctx, query, lower, upper, limit)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrSourceQuery, "range query for %s [%d, %d): %v", metric, lower, upper, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.TimestampMs, &r.Value); err != nil {
			return nil, errors.Wrapf(errors.ErrSourceQuery, "scan row for %s: %v", metric, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrSourceQuery, "range query for %s: %v", metric, err)
	}

	return out, nil
}

// ValueRange returns the minimum and maximum value of the metric.
func (s *SQLStore) ValueRange(ctx context.Context, metric string) (float64, float64, error) {
	table, err := quoteIdent(s.config.Driver, metric)
	if err != nil {
		return 0, 0, err
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT MIN(value), MAX(value) FROM %s", table)

	var min, max sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, query).Scan(&min, &max); err != nil {
		return 0, 0, errors.Wrapf(errors.ErrSourceQuery, "value range query for %s: %v", metric, err)
	}
	if !min.Valid || !max.Valid {
		return 0, 0, errors.Wrapf(errors.ErrMetricEmpty, "metric %s", metric)
	}

	return min.Float64, max.Float64, nil
}

// =============================================================================
// Identifier handling
// =============================================================================

// quoteIdent validates a metric table name and quotes it for the driver.
// Metric names become table names verbatim, so they must be restricted to
// identifier characters; anything else would allow SQL injection through
// the command line.
func quoteIdent(driver, name string) (string, error) {
	if name == "" {
		return "", errors.Wrap(errors.ErrInvalidMetric, "empty metric name")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '$':
		default:
			return "", errors.Wrapf(errors.ErrInvalidMetric, "metric %q contains %q", name, r)
		}
	}
	if driver == "duckdb" {
		return `"` + name + `"`, nil
	}
	return "`" + name + "`", nil
}
