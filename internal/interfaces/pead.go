package interfaces

import (
	"context"
	"time"

	"pead-drift/internal/research/pead"
)

// PEADAnalyzer defines the interface for PEAD (Post-Earnings Announcement Drift) analysis
type PEADAnalyzer interface {
	// Analyze runs every ticker row as of asOf and returns the run report
	Analyze(ctx context.Context, rows []pead.TickerRow, asOf time.Time) (*pead.Report, error)

	// AnalyzeTicker captures and scores a single row
	AnalyzeTicker(ctx context.Context, row pead.TickerRow, asOf time.Time) (*pead.CompanyReport, error)
}
