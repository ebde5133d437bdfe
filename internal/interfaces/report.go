package interfaces

import "pead-drift/internal/research/pead"

// ReportWriter persists a run report
type ReportWriter interface {
	// WriteJSON writes the full report and returns the file path
	WriteJSON(report *pead.Report) (path string, err error)

	// WriteCSV writes a one-row-per-company summary and returns the file path
	WriteCSV(report *pead.Report) (path string, err error)
}
