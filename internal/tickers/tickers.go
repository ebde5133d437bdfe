package tickers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gocarina/gocsv"

	"pead-drift/internal/research/pead"
)

const dateLayout = "2006-01-02"

var validate = newValidator()

// newValidator reports fields by their csv column name
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("csv")
	})
	return v
}

// csvRow is one line of the tickers file: ticker,report_date,class
type csvRow struct {
	Ticker     string `csv:"ticker" validate:"required,max=12"`
	ReportDate string `csv:"report_date" validate:"required"`
	Class      string `csv:"class" validate:"required,oneof=BMO AMC"`
}

// Load reads the tickers CSV at path
func Load(path string) ([]pead.TickerRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tickers file: %w", err)
	}
	defer f.Close()

	rows, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// Parse decodes ticker rows from CSV with a header line. Any invalid row
// fails the whole parse with its line number.
func Parse(r io.Reader) ([]pead.TickerRow, error) {
	var raw []*csvRow
	if err := gocsv.Unmarshal(r, &raw); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse tickers csv: %w", err)
	}

	rows := make([]pead.TickerRow, 0, len(raw))
	for i, rr := range raw {
		line := i + 2 // header is line 1
		row, err := normalize(rr)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func normalize(rr *csvRow) (pead.TickerRow, error) {
	rr.Ticker = strings.ToUpper(strings.TrimSpace(rr.Ticker))
	rr.ReportDate = strings.TrimSpace(rr.ReportDate)
	rr.Class = strings.ToUpper(strings.TrimSpace(rr.Class))

	if err := validate.Struct(rr); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return pead.TickerRow{}, fmt.Errorf("invalid %s %q (%s)", verrs[0].Field(), verrs[0].Value(), verrs[0].Tag())
		}
		return pead.TickerRow{}, err
	}

	day, err := time.Parse(dateLayout, rr.ReportDate)
	if err != nil {
		return pead.TickerRow{}, fmt.Errorf("invalid report_date %q: want YYYY-MM-DD", rr.ReportDate)
	}

	return pead.TickerRow{
		Ticker:     rr.Ticker,
		ReportDate: day,
		Class:      pead.ReportClass(rr.Class),
	}, nil
}

// Merge appends the rows in extra whose ticker is not already in rows
func Merge(rows, extra []pead.TickerRow) []pead.TickerRow {
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		seen[r.Ticker] = true
	}
	for _, r := range extra {
		if seen[r.Ticker] {
			continue
		}
		seen[r.Ticker] = true
		rows = append(rows, r)
	}
	return rows
}
