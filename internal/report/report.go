package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"

	"pead-drift/internal/interfaces"
	"pead-drift/internal/research/pead"
)

// Writer stores run reports under outputDir
type Writer struct {
	outputDir string
}

var _ interfaces.ReportWriter = (*Writer)(nil)

// NewWriter creates a report writer
func NewWriter(outputDir string) *Writer {
	if outputDir == "" {
		outputDir = "reports"
	}
	return &Writer{outputDir: outputDir}
}

// summaryRow is one CSV line per company. Absent values are empty cells.
type summaryRow struct {
	Ticker               string `csv:"ticker"`
	ReportDate           string `csv:"report_date"`
	Class                string `csv:"class"`
	IVPre                string `csv:"iv30_pre"`
	IVPost               string `csv:"iv30_post"`
	IVCrushPct           string `csv:"iv30_crush_pct"`
	GapFillPct           string `csv:"gap_fill_pct"`
	CLV                  string `csv:"clv"`
	PeadPct              string `csv:"pead_pct"`
	RangeLow             int    `csv:"range_low"`
	RangeHigh            int    `csv:"range_high"`
	Confidence           string `csv:"confidence"`
	ContinuationFriendly string `csv:"continuation_friendly"`
}

// Path returns the report path for a run: pead_{date}_{phase}.{ext}
func (w *Writer) Path(report *pead.Report, ext string) string {
	day := report.ExecutionTimestamp.UTC().Format("2006-01-02")
	return filepath.Join(w.outputDir, fmt.Sprintf("pead_%s_%s.%s", day, report.Phase, ext))
}

// WriteJSON writes the indented report
func (w *Writer) WriteJSON(report *pead.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	path := w.Path(report, "json")
	if err := w.write(path, append(data, '\n')); err != nil {
		return "", err
	}
	return path, nil
}

// WriteCSV writes one summary row per company in report order
func (w *Writer) WriteCSV(report *pead.Report) (string, error) {
	rows := make([]*summaryRow, 0, len(report.Companies))
	for _, c := range report.Companies {
		rows = append(rows, &summaryRow{
			Ticker:               c.Ticker,
			ReportDate:           c.ReportDate,
			Class:                string(c.Class),
			IVPre:                formatFloat(c.IV30.Pre, 6),
			IVPost:               formatFloat(c.IV30.Post, 6),
			IVCrushPct:           formatFloat(c.IV30.CrushPct, 2),
			GapFillPct:           formatFloat(c.Realized.D0.GapFillPct, 2),
			CLV:                  formatFloat(c.Realized.D0.CLV, 3),
			PeadPct:              strconv.FormatFloat(c.PeadPct, 'f', 2, 64),
			RangeLow:             c.RangePct[0],
			RangeHigh:            c.RangePct[1],
			Confidence:           strconv.FormatFloat(c.Confidence, 'f', 2, 64),
			ContinuationFriendly: formatBool(c.ContinuationFriendly),
		})
	}

	data, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return "", fmt.Errorf("encode csv summary: %w", err)
	}
	path := w.Path(report, "csv")
	if err := w.write(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func (w *Writer) write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func formatBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
