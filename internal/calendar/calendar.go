package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"pead-drift/internal/api"
	"pead-drift/internal/logger"
	"pead-drift/internal/research/pead"
)

// Scraper reads an HTML earnings calendar for one day. The URL may contain
// "{date}", replaced with YYYY-MM-DD.
type Scraper struct {
	url     string
	timeout time.Duration
	symbols map[string]bool
}

// NewScraper creates a calendar scraper. With no symbols every row is kept.
func NewScraper(url string, timeout time.Duration, symbols []string) *Scraper {
	s := &Scraper{
		url:     url,
		timeout: timeout,
		symbols: make(map[string]bool, len(symbols)),
	}
	for _, sym := range symbols {
		s.symbols[strings.ToUpper(strings.TrimSpace(sym))] = true
	}
	return s
}

// Fetch returns the calendar rows for day, filtered to the configured symbols
func (s *Scraper) Fetch(ctx context.Context, day time.Time) (rows []pead.TickerRow, err error) {
	target := strings.ReplaceAll(s.url, "{date}", day.Format("2006-01-02"))

	op := logger.StartOperation(ctx, "calendar.Fetch", "url", target)
	defer func() {
		if err != nil {
			op.EndWithError(err)
			return
		}
		op.End("rows", len(rows))
	}()
	ctx = op.GetContext()

	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.Async(false),
		colly.StdlibContext(ctx),
	)
	if s.timeout > 0 {
		c.SetRequestTimeout(s.timeout)
	}

	c.OnRequest(func(r *colly.Request) {
		for k, v := range api.BrowserHeaders() {
			r.Headers.Set(k, v)
		}
	})

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	if err := c.Visit(target); err != nil {
		return nil, fmt.Errorf("visit calendar %s: %w", target, err)
	}
	c.Wait()

	rows, err = Parse(bytes.NewReader(body), day)
	if err != nil {
		return nil, err
	}
	rows = s.filter(rows)

	logger.Info(ctx, "Earnings calendar loaded", "url", target, "rows", len(rows))
	return rows, nil
}

func (s *Scraper) filter(rows []pead.TickerRow) []pead.TickerRow {
	if len(s.symbols) == 0 {
		return rows
	}
	kept := rows[:0]
	for _, r := range rows {
		if s.symbols[r.Ticker] {
			kept = append(kept, r)
		}
	}
	return kept
}

// Parse reads the first table whose header has a symbol column and a time
// column. Rows with an unrecognized report time are skipped.
func Parse(r io.Reader, day time.Time) ([]pead.TickerRow, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar html: %w", err)
	}

	reportDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	var rows []pead.TickerRow
	found := false
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		symCol, timeCol := columns(table)
		if symCol < 0 || timeCol < 0 {
			return true
		}
		found = true

		table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
			cells := tr.Find("td")
			if cells.Length() <= symCol || cells.Length() <= timeCol {
				return
			}
			ticker := strings.ToUpper(strings.TrimSpace(cells.Eq(symCol).Text()))
			class, ok := classify(cells.Eq(timeCol).Text())
			if ticker == "" || !ok {
				return
			}
			rows = append(rows, pead.TickerRow{Ticker: ticker, ReportDate: reportDay, Class: class})
		})
		return false
	})

	if !found {
		return nil, fmt.Errorf("no earnings table found: %w", pead.ErrNoData)
	}
	return rows, nil
}

// columns locates the symbol and time columns from the header row
func columns(table *goquery.Selection) (symCol, timeCol int) {
	symCol, timeCol = -1, -1
	table.Find("tr").Has("th").First().Find("th").Each(func(i int, th *goquery.Selection) {
		h := strings.ToLower(strings.TrimSpace(th.Text()))
		switch {
		case symCol < 0 && (h == "symbol" || h == "ticker"):
			symCol = i
		case timeCol < 0 && strings.Contains(h, "time"):
			timeCol = i
		}
	})
	return symCol, timeCol
}

func classify(text string) (pead.ReportClass, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case t == "bmo" || strings.Contains(t, "before market open") || strings.Contains(t, "pre-market"):
		return pead.ClassBMO, true
	case t == "amc" || strings.Contains(t, "after market close") || strings.Contains(t, "after-hours"):
		return pead.ClassAMC, true
	}
	return "", false
}
