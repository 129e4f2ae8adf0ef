// hta-import migrates time-ordered samples for one metric from a
// relational dataheap database into the hierarchically-aggregated
// time-series store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/metricq/metricq-import/internal/errors"
	"github.com/metricq/metricq-import/internal/hta"
	"github.com/metricq/metricq-import/internal/importer"
	"github.com/metricq/metricq-import/internal/loader"
	"github.com/metricq/metricq-import/internal/logging"
	"github.com/metricq/metricq-import/internal/source"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.json", "config file path")
	metric := flag.String("metric", "", "name of metric")
	importMetric := flag.String("import-metric", "", "source name of metric (default: metric with '.' replaced by '_')")
	chunkSize := flag.Uint64("chunk-size", importer.DefaultMaxRowsPerQuery, "maximum rows per chunk query")
	minTimestamp := flag.Uint64("min-timestamp", 0, "minimal timestamp for import, in unix-ms (0 = unbounded)")
	maxTimestamp := flag.Uint64("max-timestamp", 0, "maximal timestamp for import, in unix-ms (0 = unbounded)")
	dryRun := flag.Bool("dry-run", false, "probe metrics and run plausibility checks without importing")
	checkValues := flag.Bool("check-values", false, "also probe value ranges during dry-run")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Init(level, *logJSON)
	log := logging.Component("main")
	log.Debug("hta-import starting", "version", Version)

	// Reject a missing -metric before prompting for a password or touching
	// the source.
	if missingMetricArg(*dryRun, *metric) {
		fmt.Fprintln(os.Stderr, "Error: Missing argument for import metric")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	if cfg.Import.Password == "" {
		cfg.Import.Password = promptPassword()
	}

	src, err := source.Open(source.Config{
		Driver:       cfg.Import.Driver,
		Host:         cfg.Import.Host,
		Port:         cfg.Import.Port,
		User:         cfg.Import.User,
		Password:     cfg.Import.Password,
		Database:     cfg.Import.Database,
		QueryTimeout: cfg.Import.QueryTimeout(),
	})
	if err != nil {
		log.Error("connect to source", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *dryRun {
		if err := runPreflight(ctx, src, cfg, *metric, *importMetric, *checkValues); err != nil {
			log.Error("dry-run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	outName := *metric
	inName := *importMetric
	if inName == "" {
		inName = strings.ReplaceAll(outName, ".", "_")
	}
	// Never derive the other direction: metrics like foo/bar_baz exist,
	// and replacing '_' with '.' would mangle them.

	dir, err := hta.NewDirectory(cfg.Path, metricOptions(cfg))
	if err != nil {
		log.Error("open destination directory", "error", err)
		os.Exit(1)
	}

	dest, err := dir.OpenOrCreate(outName)
	if err != nil {
		log.Error("open destination metric", "error", err)
		os.Exit(1)
	}

	res, err := importer.Run(ctx, src, dest, importer.Options{
		SourceMetric:      inName,
		DestinationMetric: outName,
		MinTimestamp:      *minTimestamp,
		MaxTimestamp:      *maxTimestamp,
		MaxRowsPerQuery:   *chunkSize,
	})
	if err != nil {
		dir.Close()
		if errors.Is(err, context.Canceled) {
			log.Warn("import interrupted", "rows", res.Rows, "elapsed", res.Elapsed)
		} else {
			log.Error("import failed", "error", err)
		}
		os.Exit(1)
	}

	if err := dir.Close(); err != nil {
		log.Error("close destination", "error", err)
		os.Exit(1)
	}

	log.Info("import finished",
		"metric", outName,
		"rows", res.Rows,
		"dropped", res.Dropped,
		"chunks", res.Chunks,
		"elapsed", res.Elapsed)
}

// runPreflight probes without importing. With -metric set only that
// metric is probed; otherwise every configured metric is.
func runPreflight(ctx context.Context, src source.Source, cfg *loader.Config, metric, importMetric string, checkValues bool) error {
	var metrics []importer.PreflightMetric

	add := func(m loader.MetricConfig, sourceName string) {
		var expected time.Duration
		if m.SamplingRate > 0 {
			expected = time.Duration(float64(time.Second) / m.SamplingRate)
		}
		metrics = append(metrics, importer.PreflightMetric{
			Name:             sourceName,
			ExpectedInterval: expected,
		})
	}

	if metric != "" {
		inName := importMetric
		if inName == "" {
			inName = strings.ReplaceAll(metric, ".", "_")
		}
		add(cfg.MetricConfigFor(metric), inName)
	} else {
		for _, m := range cfg.Metrics {
			add(m, strings.ReplaceAll(m.Name, ".", "_"))
		}
	}
	if len(metrics) == 0 {
		return fmt.Errorf("no metrics to probe: %w", errors.ErrInvalidConfig)
	}

	reports, err := importer.Preflight(ctx, src, metrics, importer.PreflightOptions{
		MaxAge:      8 * time.Hour,
		CheckValues: checkValues,
	})
	if err != nil {
		return err
	}

	log := logging.Component("preflight")
	suspicious := 0
	for _, r := range reports {
		for _, w := range r.Warnings {
			log.Warn(w, "metric", r.Metric)
			suspicious++
		}
	}
	if suspicious > 0 {
		return fmt.Errorf("%d plausibility warnings: %w", suspicious, errors.ErrSuspiciousData)
	}
	return nil
}

// missingMetricArg reports whether the command line lacks the required
// -metric argument. Dry-run alone may omit it: without -metric it probes
// every configured metric.
func missingMetricArg(dryRun bool, metric string) bool {
	return !dryRun && metric == ""
}

// metricOptions converts loader metric configs to store options.
func metricOptions(cfg *loader.Config) map[string]hta.MetricOptions {
	opts := make(map[string]hta.MetricOptions, len(cfg.Metrics))
	for _, m := range cfg.Metrics {
		mode, err := hta.ParseMode(m.Mode)
		if err != nil {
			mode = hta.ModeReadWrite
		}
		opts[m.Name] = hta.MetricOptions{
			Mode:           mode,
			IntervalMin:    m.IntervalMin,
			IntervalMax:    m.IntervalMax,
			IntervalFactor: m.IntervalFactor,
			Percentiles:    m.Percentiles,
		}
	}
	return opts
}

// promptPassword reads the source password interactively when the config
// leaves it empty and stdin is a terminal.
func promptPassword() string {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ""
	}
	fmt.Fprint(os.Stderr, "import password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(pw)
}
