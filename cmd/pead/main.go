package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"pead-drift/internal/attemptlog"
	"pead-drift/internal/logger"
	"pead-drift/internal/metrics"
	"pead-drift/internal/report"
	"pead-drift/internal/report/reportobs"
	"pead-drift/internal/research/pead"
	"pead-drift/internal/research/pead/peadobs"
)

var version = "dev"

type runOptions struct {
	configPath     string
	configExplicit bool
	phase          string
	asOf           string
	writeCSV       bool
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	phase := flag.String("phase", "", "force the capture phase: pre, post or auto (default from config)")
	asOf := flag.String("as-of", "", "reference time in RFC3339 (default now)")
	writeCSV := flag.Bool("csv", false, "also write a CSV summary next to the JSON report")
	flag.Parse()

	opts := runOptions{
		configPath: *configPath,
		phase:      *phase,
		asOf:       *asOf,
		writeCSV:   *writeCSV,
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			opts.configExplicit = true
		}
	})

	if err := initializeSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, opts)
	stop()
	shutdownTracer()

	if err != nil {
		logger.ErrorWithErr(context.Background(), "PEAD run failed", err)
		os.Exit(1)
	}
}

// run executes one capture-and-score pass. Only run-level faults are
// returned; per-ticker provider failures end up in the report.
func run(ctx context.Context, opts runOptions) error {
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if opts.asOf != "" {
		now, err = time.Parse(time.RFC3339, opts.asOf)
		if err != nil {
			return fmt.Errorf("invalid -as-of %q: %w", opts.asOf, err)
		}
		now = now.UTC()
	}
	phase := cfg.ResolvePhase(now)

	runID := uuid.NewString()
	journal := attemptlog.New(cfg.AttemptLog.Dir,
		attemptlog.WithRunID(runID),
		attemptlog.WithClock(func() time.Time { return now }),
	)
	defer journal.Close()
	compressOldJournals(ctx, journal, cfg.AttemptLog.RetentionDays)

	rows, err := loadTickers(ctx, cfg, now)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		logger.Warn(ctx, "No tickers to process", "tickers_file", cfg.TickersFile)
	}

	store, closeStore, err := initializeSnapshotStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	recorder := metrics.New()
	fetcher := initializeFetcher(ctx, cfg, now)

	analyzer := peadobs.Wrap(pead.NewAnalyzer(
		cfg.PEADConfig(phase),
		fetcher,
		pead.WithSnapshotStore(store),
		pead.WithAttemptSink(journal),
		pead.WithAttemptSink(recorder),
		pead.WithRunID(func() string { return runID }),
	))

	logger.Info(ctx, "PEAD run starting",
		"version", version,
		"run_id", runID,
		"phase", phase,
		"as_of", now.Format(time.RFC3339),
		"data_source", cfg.DataSource,
		"tickers", len(rows),
	)

	rep, err := analyzer.Analyze(ctx, rows, now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("interrupted: %w", err)
		}
		return err
	}

	writer := reportobs.Wrap(report.NewWriter(cfg.OutputDir))
	path, err := writer.WriteJSON(rep)
	if err != nil {
		return err
	}
	fmt.Println(path)

	if opts.writeCSV {
		csvPath, err := writer.WriteCSV(rep)
		if err != nil {
			return err
		}
		fmt.Println(csvPath)
	}

	recorder.ObserveReport(rep)
	if p := cfg.Metrics.TextfilePath; p != "" {
		if err := recorder.WriteTextfile(p); err != nil {
			logger.Warn(ctx, "Failed to write metrics textfile", "path", p, "error", err)
		}
	}

	return nil
}
