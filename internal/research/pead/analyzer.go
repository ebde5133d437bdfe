package pead

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pead-drift/internal/logger"
	"pead-drift/internal/trace"
)

const (
	reportBasis       = "vs D-1 close"
	guidanceLabel     = "Maintain (Data-Lite)"
	guidanceRationale = "Free mode (no IR/8-K parse)"
)

// Analyzer runs the per-ticker capture, snapshot and scoring flow
type Analyzer struct {
	config    PEADConfig
	fetcher   MarketDataFetcher
	store     SnapshotStore
	sinks     []AttemptSink
	estimator *IV30Estimator
	scorer    *DriftScorer
	newRunID  func() string
}

// AnalyzerOption configures an Analyzer
type AnalyzerOption func(*Analyzer)

// WithSnapshotStore enables IV snapshot saving and reuse
func WithSnapshotStore(store SnapshotStore) AnalyzerOption {
	return func(a *Analyzer) {
		a.store = store
	}
}

// WithAttemptSink adds a receiver for provider attempts
func WithAttemptSink(sink AttemptSink) AnalyzerOption {
	return func(a *Analyzer) {
		a.sinks = append(a.sinks, sink)
	}
}

// WithRunID overrides run id generation
func WithRunID(fn func() string) AnalyzerOption {
	return func(a *Analyzer) {
		a.newRunID = fn
	}
}

// NewAnalyzer creates a new PEAD analyzer
func NewAnalyzer(config PEADConfig, fetcher MarketDataFetcher, opts ...AnalyzerOption) *Analyzer {
	defaults := GetDefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.BarLookback <= 0 {
		config.BarLookback = defaults.BarLookback
	}
	if config.Phase == "" {
		config.Phase = defaults.Phase
	}
	if config.SourceName == "" {
		config.SourceName = fetcher.Source()
	}
	if config.ModeLabel == "" {
		config.ModeLabel = defaults.ModeLabel
	}

	a := &Analyzer{
		config:    config,
		fetcher:   fetcher,
		estimator: NewIV30Estimator(),
		scorer:    NewDriftScorer(),
		newRunID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze processes every row as of asOf and returns the run report.
// Companies keep the order of rows. Provider failures are recorded per
// company and never fail the run; only context cancellation does.
func (a *Analyzer) Analyze(ctx context.Context, rows []TickerRow, asOf time.Time) (*Report, error) {
	companies := make([]CompanyReport, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Concurrency)
	for i, row := range rows {
		g.Go(func() error {
			company, err := a.AnalyzeTicker(gctx, row, asOf)
			if err != nil {
				return err
			}
			companies[i] = *company
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis interrupted: %w", err)
	}

	return &Report{
		ExecutionTimestamp: asOf.UTC(),
		RunID:              a.newRunID(),
		Basis:              reportBasis,
		Mode:               a.config.ModeLabel,
		Phase:              a.config.Phase,
		Companies:          companies,
	}, nil
}

// AnalyzeTicker captures IV and realized stats for one row and scores it.
// Each call runs under its own span, whether reached from Analyze or called
// directly.
func (a *Analyzer) AnalyzeTicker(ctx context.Context, row TickerRow, asOf time.Time) (*CompanyReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := trace.StartSpan(ctx, "pead.AnalyzeTicker")
	defer span.End()

	today := dateOf(asOf)
	reportDay := dateOf(row.ReportDate)
	capturePre, capturePost := CaptureWindows(a.config.Phase, row.Class, reportDay, today)

	preKey := SnapshotKey(row.Ticker, reportDay, PhasePre)
	postKey := SnapshotKey(row.Ticker, today, PhasePost)

	attempts := make([]Attempt, 0, 3)
	record := func(at Attempt) {
		attempts = append(attempts, at)
		logger.Attempt(ctx, row.Ticker, at.When, at.Source, at.OK, at.Reason)
		for _, sink := range a.sinks {
			sink.RecordAttempt(ctx, row.Ticker, at)
		}
	}

	var ivPre, ivPost *float64
	if capturePre {
		ivPre = a.captureIV(ctx, row.Ticker, PhasePre, preKey, asOf, record)
	}
	if capturePost {
		ivPost = a.captureIV(ctx, row.Ticker, PhasePost, postKey, asOf, record)
	}
	if ivPre == nil {
		ivPre = a.loadSnapshot(ctx, preKey)
	}
	if ivPost == nil {
		ivPost = a.loadSnapshot(ctx, postKey)
	}

	var stats DailyStats
	if capturePost {
		stats = a.realized(ctx, row.Ticker, today, record)
	}

	crush := IVCrushPct(ivPre, ivPost)
	drift := a.scorer.Score(DriftInputs{
		CLV:        stats.CLV,
		GapFillPct: stats.GapFillPct,
		IVCrushPct: crush,
	})

	logger.Debug(ctx, "Ticker analyzed",
		"ticker", row.Ticker,
		"capture_pre", capturePre,
		"capture_post", capturePost,
		"pead_pct", drift.PeadPct,
		"confidence", drift.Confidence,
		"attempts", len(attempts),
	)

	return &CompanyReport{
		Ticker:       row.Ticker,
		ReportDate:   reportDay.Format("2006-01-02"),
		Class:        row.Class,
		TimestampUTC: asOf.UTC(),
		IV30: IVSection{
			Pre:      ivPre,
			Post:     ivPost,
			CrushPct: crush,
			Source:   a.config.SourceName,
			Attempts: attempts,
		},
		Realized: Realized{D0: stats},
		GuidancePattern: GuidancePattern{
			Label:     guidanceLabel,
			Rationale: guidanceRationale,
		},
		DriftResult: drift,
	}, nil
}

// captureIV fetches a chain, estimates IV30 and saves a snapshot on success
func (a *Analyzer) captureIV(ctx context.Context, ticker string, phase Phase, key string, asOf time.Time, record func(Attempt)) *float64 {
	at := Attempt{When: string(phase), Source: a.config.SourceName}

	chain, err := a.fetcher.FetchChain(ctx, ticker)
	if err != nil {
		at.Reason = err.Error()
		record(at)
		return nil
	}

	res := a.estimator.Estimate(ctx, chain, asOf)
	at.OK = res.Available()
	at.Reason = res.Reason()
	record(at)

	iv, ok := res.Get()
	if !ok {
		return nil
	}

	if a.store != nil {
		if err := a.store.Save(ctx, key, IVSnapshot{IV30: iv, Timestamp: asOf.UTC()}); err != nil {
			logger.Warn(ctx, "Failed to save IV snapshot", "ticker", ticker, "key", key, "error", err)
		}
	}
	return &iv
}

// loadSnapshot returns a cached IV30 or nil
func (a *Analyzer) loadSnapshot(ctx context.Context, key string) *float64 {
	if a.store == nil {
		return nil
	}
	snap, err := a.store.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSnapshotNotFound) {
			logger.Warn(ctx, "Failed to load IV snapshot", "key", key, "error", err)
		}
		return nil
	}
	if !(snap.IV30 > 0) {
		return nil
	}
	return &snap.IV30
}

// realized fetches D0 and the previous trading day's bar and computes the
// gap-fill and CLV stats. Any failure leaves both nil.
func (a *Analyzer) realized(ctx context.Context, ticker string, today time.Time, record func(Attempt)) DailyStats {
	fail := func(err error) DailyStats {
		record(Attempt{When: "bars", Source: a.config.SourceName, Reason: err.Error()})
		return DailyStats{}
	}

	d0, err := a.fetcher.FetchDailyBar(ctx, ticker, today)
	if err != nil {
		return fail(fmt.Errorf("D0 bar: %w", err))
	}

	prev, err := a.previousBar(ctx, ticker, today)
	if err != nil {
		return fail(fmt.Errorf("D-1 bar: %w", err))
	}

	gapFill, clv := ComputeDailyStats(prev.Close, *d0)
	return DailyStats{GapFillPct: &gapFill, CLV: &clv}
}

// previousBar walks back from day until it finds a trading day
func (a *Analyzer) previousBar(ctx context.Context, ticker string, day time.Time) (*OHLCBar, error) {
	var lastErr error
	for i := 1; i <= a.config.BarLookback; i++ {
		bar, err := a.fetcher.FetchDailyBar(ctx, ticker, day.AddDate(0, 0, -i))
		if err == nil {
			return bar, nil
		}
		if !errors.Is(err, ErrNoData) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("none in the %d days before %s: %w", a.config.BarLookback, day.Format("2006-01-02"), lastErr)
}

// CaptureWindows decides which IV captures a row needs in this phase.
// AMC reporters are captured pre on the report day; BMO reporters are
// captured pre in the post run of the day before. Everyone reporting today
// is captured post.
func CaptureWindows(phase Phase, class ReportClass, reportDay, today time.Time) (capturePre, capturePost bool) {
	capturePre = (phase == PhasePre && class == ClassAMC && reportDay.Equal(today)) ||
		(phase == PhasePost && class == ClassBMO && reportDay.Equal(today.AddDate(0, 0, 1)))
	capturePost = phase == PhasePost && reportDay.Equal(today)
	return capturePre, capturePost
}

// DetectPhase returns pre when now (UTC) falls on the preWindow minute
// ("HH:MM"), otherwise post
func DetectPhase(now time.Time, preWindow string) Phase {
	if now.UTC().Format("15:04") == preWindow {
		return PhasePre
	}
	return PhasePost
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
