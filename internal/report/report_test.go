package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pead-drift/internal/research/pead"
)

func f(v float64) *float64 { return &v }
func b(v bool) *bool       { return &v }

func sampleReport() *pead.Report {
	asOf := time.Date(2024, 5, 3, 21, 0, 0, 0, time.UTC)
	return &pead.Report{
		ExecutionTimestamp: asOf,
		RunID:              "run-1",
		Basis:              "vs D-1 close",
		Mode:               "Yahoo-first (free)",
		Phase:              pead.PhasePost,
		Companies: []pead.CompanyReport{
			{
				Ticker:       "AAPL",
				ReportDate:   "2024-05-03",
				Class:        pead.ClassBMO,
				TimestampUTC: asOf,
				IV30: pead.IVSection{
					Pre: f(0.4), Post: f(0.28), CrushPct: f(-30), Source: "yahoo",
					Attempts: []pead.Attempt{{When: "post", Source: "yahoo", OK: true}},
				},
				Realized: pead.Realized{D0: pead.DailyStats{GapFillPct: f(10), CLV: f(0.6)}},
				DriftResult: pead.DriftResult{
					PeadPct: 6, RangePct: [2]int{3, 9}, Confidence: 0.65, ContinuationFriendly: b(true),
				},
			},
			{
				Ticker:       "MSFT",
				ReportDate:   "2024-05-03",
				Class:        pead.ClassAMC,
				TimestampUTC: asOf,
				IV30:         pead.IVSection{Source: "yahoo", Attempts: []pead.Attempt{}},
				DriftResult:  pead.DriftResult{PeadPct: 0, RangePct: [2]int{-3, 3}, Confidence: 0.35},
			},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "out"))

	path, err := w.WriteJSON(sampleReport())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "pead_2024-05-03_post.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "run-1", doc["runId"])
	assert.Equal(t, "vs D-1 close", doc["basis"])
	assert.Equal(t, "post", doc["phase"])

	companies := doc["companies"].([]any)
	require.Len(t, companies, 2)

	aapl := companies[0].(map[string]any)
	assert.Equal(t, "AAPL", aapl["ticker"])
	assert.Equal(t, 6.0, aapl["peadPct"])
	assert.Equal(t, []any{3.0, 9.0}, aapl["rangePct"])
	assert.Equal(t, true, aapl["continuationFriendly"])
	assert.Equal(t, -30.0, aapl["iv30"].(map[string]any)["iv30CrushPct"])

	msft := companies[1].(map[string]any)
	iv := msft["iv30"].(map[string]any)
	assert.Nil(t, iv["pre"])
	assert.Nil(t, iv["iv30CrushPct"])
	assert.Equal(t, []any{}, iv["attempts"])
	assert.Nil(t, msft["realized"].(map[string]any)["d0"].(map[string]any)["clv"])
	assert.Contains(t, msft, "continuationFriendly")
	assert.Nil(t, msft["continuationFriendly"])
}

func TestWriteCSV(t *testing.T) {
	w := NewWriter(t.TempDir())

	path, err := w.WriteCSV(sampleReport())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "pead_2024-05-03_post.csv"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "ticker,report_date,class,iv30_pre,iv30_post,iv30_crush_pct,gap_fill_pct,clv,pead_pct,range_low,range_high,confidence,continuation_friendly", lines[0])
	assert.Equal(t, "AAPL,2024-05-03,BMO,0.400000,0.280000,-30.00,10.00,0.600,6.00,3,9,0.65,true", lines[1])
	assert.Equal(t, "MSFT,2024-05-03,AMC,,,,,,0.00,-3,3,0.35,", lines[2])
}

func TestWriteJSONUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := NewWriter(filepath.Join(blocker, "sub")).WriteJSON(sampleReport())
	assert.Error(t, err)
}
