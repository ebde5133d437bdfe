package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestRunMockPostPhase(t *testing.T) {
	dir := t.TempDir()
	tickersFile := filepath.Join(dir, "tickers.csv")
	writeFile(t, tickersFile, "ticker,report_date,class\nAAPL,2024-05-02,AMC\nMSFT,2024-05-03,BMO\nNVDA,2024-05-22,AMC\n")

	configFile := filepath.Join(dir, "config.yaml")
	writeFile(t, configFile, fmt.Sprintf(`
data_source: MOCK
tickers_file: %s
output_dir: %s
phase: auto
snapshot:
  dir: %s
attempt_log:
  dir: %s
metrics:
  textfile_path: %s
`, tickersFile, filepath.Join(dir, "reports"), filepath.Join(dir, "snap"), filepath.Join(dir, "logs"), filepath.Join(dir, "pead.prom")))

	err := run(context.Background(), runOptions{
		configPath:     configFile,
		configExplicit: true,
		asOf:           "2024-05-02T21:00:00Z",
		writeCSV:       true,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "reports", "pead_2024-05-02_post.json"))
	require.NoError(t, err)

	var rep struct {
		Phase     string `json:"phase"`
		Mode      string `json:"mode"`
		Companies []struct {
			Ticker string `json:"ticker"`
			IV30   struct {
				Pre      *float64 `json:"pre"`
				Post     *float64 `json:"post"`
				Attempts []struct {
					When string `json:"when"`
				} `json:"attempts"`
			} `json:"iv30"`
			Realized struct {
				D0 struct {
					CLV *float64 `json:"clv"`
				} `json:"d0"`
			} `json:"realized"`
		} `json:"companies"`
	}
	require.NoError(t, json.Unmarshal(data, &rep))

	assert.Equal(t, "post", rep.Phase)
	assert.Equal(t, "Mock", rep.Mode)
	require.Len(t, rep.Companies, 3)

	aapl := rep.Companies[0]
	assert.Equal(t, "AAPL", aapl.Ticker)
	assert.NotNil(t, aapl.IV30.Post, "reporting today is captured post")
	assert.NotNil(t, aapl.Realized.D0.CLV)

	msft := rep.Companies[1]
	assert.NotNil(t, msft.IV30.Pre, "tomorrow's BMO reporter is captured pre")
	assert.Nil(t, msft.IV30.Post)
	require.Len(t, msft.IV30.Attempts, 1)
	assert.Equal(t, "pre", msft.IV30.Attempts[0].When)

	nvda := rep.Companies[2]
	assert.Empty(t, nvda.IV30.Attempts)

	assert.FileExists(t, filepath.Join(dir, "reports", "pead_2024-05-02_post.csv"))
	assert.FileExists(t, filepath.Join(dir, "snap", "AAPL_2024-05-02_post.json"))
	assert.FileExists(t, filepath.Join(dir, "snap", "MSFT_2024-05-03_pre.json"))

	// the journal follows the run's reference day, not the wall clock
	journal, err := os.ReadFile(filepath.Join(dir, "logs", "attempts", "2024-05-02.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(journal)), "\n")
	require.Len(t, lines, 2)
	tickers := map[string]bool{}
	for _, line := range lines {
		var entry struct {
			Time   string `json:"time"`
			Ticker string `json:"ticker"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.True(t, strings.HasPrefix(entry.Time, "2024-05-02T21:00:00"), "entry time %s", entry.Time)
		tickers[entry.Ticker] = true
	}
	assert.Equal(t, map[string]bool{"AAPL": true, "MSFT": true}, tickers)
	assert.FileExists(t, filepath.Join(dir, "pead.prom"))
}

func TestRunRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	err := run(context.Background(), runOptions{configPath: filepath.Join(dir, "missing.yaml"), configExplicit: true})
	assert.Error(t, err, "explicit config must exist")

	configFile := filepath.Join(dir, "config.yaml")
	writeFile(t, configFile, fmt.Sprintf("data_source: MOCK\ntickers_file: %s\n", filepath.Join(dir, "none.csv")))

	err = run(context.Background(), runOptions{configPath: configFile, configExplicit: true, asOf: "yesterday"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid -as-of")

	err = run(context.Background(), runOptions{configPath: configFile, configExplicit: true, phase: "noon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid -phase")

	err = run(context.Background(), runOptions{configPath: configFile, configExplicit: true})
	assert.Error(t, err, "unreadable tickers file")
}
