package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"

	"pead-drift/internal/api"
	"pead-drift/internal/attemptlog"
	"pead-drift/internal/calendar"
	"pead-drift/internal/logger"
	"pead-drift/internal/provider/yahoo"
	"pead-drift/internal/research/pead"
	"pead-drift/internal/snapshot"
	"pead-drift/internal/store"
	"pead-drift/internal/tickers"
	"pead-drift/internal/trace"
)

// initializeSystem loads .env and sets up the logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(version); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func shutdownTracer() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trace.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush traces: %v\n", err)
	}
}

// loadConfig loads the config file. A missing default config.yaml falls back
// to built-in defaults; a missing explicit -config is an error.
func loadConfig(ctx context.Context, opts runOptions) (*store.Config, error) {
	cfg, err := store.LoadConfig(opts.configPath)
	if err != nil && errors.Is(err, fs.ErrNotExist) && !opts.configExplicit {
		logger.Info(ctx, "No config file, using defaults", "path", opts.configPath)
		cfg, err = store.LoadConfig("")
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	switch opts.phase {
	case "":
	case store.PhaseAuto, string(pead.PhasePre), string(pead.PhasePost):
		cfg.Phase = opts.phase
	default:
		return nil, fmt.Errorf("invalid -phase %q: must be pre, post or auto", opts.phase)
	}
	return cfg, nil
}

// compressOldJournals gzips attempt journals past retention
func compressOldJournals(ctx context.Context, journal *attemptlog.Journal, retentionDays int) {
	n, err := journal.CompressOlder(time.Now(), retentionDays)
	if err != nil {
		logger.Warn(ctx, "Failed to compress old attempt journals", "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "Compressed old attempt journals", "files", n)
	}
}

// loadTickers reads the ticker file and appends calendar rows for today and
// tomorrow; tomorrow's BMO reporters are captured pre in today's post run.
// Calendar failures only warn.
func loadTickers(ctx context.Context, cfg *store.Config, now time.Time) ([]pead.TickerRow, error) {
	rows, err := tickers.Load(cfg.TickersFile)
	if err != nil {
		return nil, err
	}

	if !cfg.Calendar.Enabled {
		return rows, nil
	}

	scraper := calendar.NewScraper(cfg.Calendar.URL, cfg.Calendar.Timeout, cfg.Calendar.Symbols)
	for _, day := range []time.Time{now, now.AddDate(0, 0, 1)} {
		extra, err := scraper.Fetch(ctx, day)
		if err != nil {
			logger.Warn(ctx, "Earnings calendar unavailable", "day", day.Format("2006-01-02"), "error", err)
			continue
		}
		rows = tickers.Merge(rows, extra)
	}
	return rows, nil
}

// initializeFetcher returns the mock or Yahoo market data fetcher. The mock
// lays out its expiries relative to the run's reference time.
func initializeFetcher(ctx context.Context, cfg *store.Config, now time.Time) pead.MarketDataFetcher {
	if cfg.DataSource == store.DataSourceMock {
		logger.Info(ctx, "Using MOCK market data")
		return pead.NewMockMarketDataFetcher(func() time.Time { return now })
	}

	client := api.NewClient(
		api.WithTimeout(cfg.Yahoo.Timeout),
		api.WithRateLimit(cfg.Yahoo.RequestsPerSecond),
		api.WithRetry(&api.RetryConfig{
			MaxAttempts: cfg.Yahoo.MaxRetries + 1,
			InitialWait: time.Second,
			MaxWait:     5 * time.Second,
		}),
		api.WithLogging(true),
	)
	return yahoo.New(client, cfg.YahooOptions()...)
}

// initializeSnapshotStore opens the configured snapshot backend. The returned
// func releases it.
func initializeSnapshotStore(ctx context.Context, cfg *store.Config) (pead.SnapshotStore, func(), error) {
	switch cfg.Snapshot.Backend {
	case "redis":
		r := cfg.Snapshot.Redis
		rs, err := snapshot.NewRedisStore(ctx, snapshot.RedisConfig{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Prefix:   r.Prefix,
			TTL:      r.TTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot store: %w", err)
		}
		return rs, func() { _ = rs.Close() }, nil
	default:
		fileStore, err := snapshot.NewFileStore(cfg.Snapshot.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot store: %w", err)
		}
		return fileStore, func() {}, nil
	}
}
