package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pead-drift/internal/api"
	"pead-drift/internal/research/pead"
)

const (
	// DefaultOptionsURL is the v7 options endpoint
	DefaultOptionsURL = "https://query2.finance.yahoo.com/v7/finance/options"
	// DefaultChartURL is the v8 chart endpoint
	DefaultChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"

	sourceName = "yahoo"
)

// ErrNotFound is returned when Yahoo does not know the symbol
var ErrNotFound = errors.New("symbol not found")

// Provider fetches options chains and daily bars from Yahoo Finance
type Provider struct {
	client     *api.Client
	optionsURL string
	chartURL   string
}

var _ pead.MarketDataFetcher = (*Provider)(nil)

// Option configures the Provider
type Option func(*Provider)

// WithOptionsURL overrides the options endpoint
func WithOptionsURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.optionsURL = strings.TrimRight(u, "/")
		}
	}
}

// WithChartURL overrides the chart endpoint
func WithChartURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.chartURL = strings.TrimRight(u, "/")
		}
	}
}

// New creates a Yahoo provider on top of client
func New(client *api.Client, opts ...Option) *Provider {
	p := &Provider{
		client:     client,
		optionsURL: DefaultOptionsURL,
		chartURL:   DefaultChartURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Source implements pead.MarketDataFetcher
func (p *Provider) Source() string { return sourceName }

// FetchChain returns spot and expiries; per-expiry rows load lazily
func (p *Provider) FetchChain(ctx context.Context, symbol string) (*pead.ChainSnapshot, error) {
	res, err := p.options(ctx, symbol, nil)
	if err != nil {
		return nil, err
	}

	snap := &pead.ChainSnapshot{
		Symbol:   symbol,
		Expiries: make([]time.Time, 0, len(res.ExpirationDates)),
	}
	if res.Quote.RegularMarketPrice != nil {
		snap.Spot = *res.Quote.RegularMarketPrice
	}
	for _, ts := range res.ExpirationDates {
		snap.Expiries = append(snap.Expiries, time.Unix(ts, 0).UTC())
	}

	quoted := res.Quote.Symbol
	if quoted == "" {
		quoted = symbol
	}
	snap.Buckets = pead.BucketLoaderFunc(func(ctx context.Context, expiration time.Time) (*pead.ExpiryBucket, error) {
		return p.bucket(ctx, quoted, expiration)
	})

	return snap, nil
}

// bucket fetches the rows for one expiry
func (p *Provider) bucket(ctx context.Context, symbol string, expiration time.Time) (*pead.ExpiryBucket, error) {
	unix := expiration.Unix()
	res, err := p.options(ctx, symbol, &unix)
	if err != nil {
		return nil, err
	}
	if len(res.Options) == 0 {
		return nil, fmt.Errorf("%s expiry %d: empty options block: %w", symbol, unix, pead.ErrNoData)
	}

	opt := res.Options[0]
	return &pead.ExpiryBucket{
		Expiration: expiration,
		Calls:      toQuotes(opt.Calls),
		Puts:       toQuotes(opt.Puts),
	}, nil
}

func (p *Provider) options(ctx context.Context, symbol string, date *int64) (*optionsResult, error) {
	u := fmt.Sprintf("%s/%s", p.optionsURL, url.PathEscape(symbol))
	if date != nil {
		u += fmt.Sprintf("?date=%d", *date)
	}

	resp, err := p.client.GET(ctx, u, api.YahooFinanceHeaders())
	if err != nil {
		return nil, fmt.Errorf("yahoo options %s: %w", symbol, notFound(err))
	}

	var payload optionsResponse
	if err := resp.ParseJSON(&payload); err != nil {
		return nil, fmt.Errorf("yahoo options %s: %w", symbol, err)
	}
	if e := payload.OptionChain.Error; e != nil {
		return nil, fmt.Errorf("yahoo options %s: %w", symbol, e)
	}
	if len(payload.OptionChain.Result) == 0 {
		return nil, fmt.Errorf("yahoo options %s: empty result: %w", symbol, pead.ErrNoData)
	}
	return &payload.OptionChain.Result[0], nil
}

// toQuotes drops rows without a strike; a null IV becomes 0 (unusable)
func toQuotes(rows []optionRow) []pead.OptionQuote {
	quotes := make([]pead.OptionQuote, 0, len(rows))
	for _, r := range rows {
		if r.Strike == nil {
			continue
		}
		q := pead.OptionQuote{Strike: *r.Strike}
		if r.ImpliedVolatility != nil {
			q.ImpliedVolatility = *r.ImpliedVolatility
		}
		quotes = append(quotes, q)
	}
	return quotes
}

// FetchDailyBar returns the 1d bar for the UTC calendar day. Days without a
// session return an error wrapping pead.ErrNoData.
func (p *Provider) FetchDailyBar(ctx context.Context, symbol string, day time.Time) (*pead.OHLCBar, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	q.Set("interval", "1d")
	u := fmt.Sprintf("%s/%s?%s", p.chartURL, url.PathEscape(symbol), q.Encode())

	resp, err := p.client.GET(ctx, u, api.YahooFinanceHeaders())
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, notFound(err))
	}

	var payload chartResponse
	if err := resp.ParseJSON(&payload); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	if e := payload.Chart.Error; e != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, e)
	}

	day0 := start.Format("2006-01-02")
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo chart %s %s: %w", symbol, day0, pead.ErrNoData)
	}

	qt := payload.Chart.Result[0].Indicators.Quote[0]
	open, okO := first(qt.Open)
	high, okH := first(qt.High)
	low, okL := first(qt.Low)
	closePx, okC := first(qt.Close)
	if !okO || !okH || !okL || !okC {
		return nil, fmt.Errorf("yahoo chart %s %s: %w", symbol, day0, pead.ErrNoData)
	}

	bar := &pead.OHLCBar{
		Date:  start,
		Open:  open,
		High:  high,
		Low:   low,
		Close: closePx,
	}
	if len(qt.Volume) > 0 && qt.Volume[0] != nil {
		bar.Volume = *qt.Volume[0]
	}
	return bar, nil
}

func first(vals []*float64) (float64, bool) {
	if len(vals) == 0 || vals[0] == nil {
		return 0, false
	}
	return *vals[0], true
}

// notFound marks 404 responses with ErrNotFound
func notFound(err error) error {
	var se *api.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
