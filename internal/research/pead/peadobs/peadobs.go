package peadobs

import (
	"context"
	"time"

	"pead-drift/internal/interfaces"
	"pead-drift/internal/logger"
	"pead-drift/internal/research/pead"
	"pead-drift/internal/trace"
)

// observableAnalyzer wraps PEADAnalyzer with logging and tracing
type observableAnalyzer struct {
	inner interfaces.PEADAnalyzer
}

var _ interfaces.PEADAnalyzer = (*observableAnalyzer)(nil)

// Wrap wraps a PEADAnalyzer with observability middleware
func Wrap(analyzer interfaces.PEADAnalyzer) interfaces.PEADAnalyzer {
	return &observableAnalyzer{inner: analyzer}
}

// Analyze wraps the Analyze method with logging and tracing
func (o *observableAnalyzer) Analyze(ctx context.Context, rows []pead.TickerRow, asOf time.Time) (*pead.Report, error) {
	ctx, span := trace.StartSpan(ctx, "pead.Analyze")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting PEAD run",
		"ticker_count", len(rows),
		"as_of", asOf.UTC().Format(time.RFC3339),
	)
	start := time.Now()

	report, err := o.inner.Analyze(ctx, rows, asOf)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "PEAD run failed", err, "duration_ms", durationMs)
		return nil, err
	}

	scored, continuation := 0, 0
	for _, c := range report.Companies {
		if c.IV30.CrushPct != nil || c.Realized.D0.CLV != nil {
			scored++
		}
		if c.ContinuationFriendly != nil && *c.ContinuationFriendly {
			continuation++
		}
	}

	logger.InfoSkip(ctx, 1, "PEAD run completed",
		"run_id", report.RunID,
		"phase", report.Phase,
		"companies", len(report.Companies),
		"with_signals", scored,
		"continuation_friendly", continuation,
		"duration_ms", durationMs,
	)

	return report, nil
}

// AnalyzeTicker logs failures and timing of a direct single-ticker call.
// The span and per-ticker debug log come from the analyzer itself, so they
// also cover tickers processed through Analyze.
func (o *observableAnalyzer) AnalyzeTicker(ctx context.Context, row pead.TickerRow, asOf time.Time) (*pead.CompanyReport, error) {
	start := time.Now()

	company, err := o.inner.AnalyzeTicker(ctx, row, asOf)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Ticker analysis failed", err,
			"ticker", row.Ticker,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Ticker analysis completed",
		"ticker", row.Ticker,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return company, nil
}
