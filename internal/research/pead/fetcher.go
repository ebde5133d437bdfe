package pead

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrNoData is returned by fetchers when the provider has nothing for the
// request (no bar on a non-trading day, an empty chain, null fields).
var ErrNoData = errors.New("no data")

// ErrSnapshotNotFound is returned by a SnapshotStore on a cache miss
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ChainFetcher returns the current options chain for a symbol
type ChainFetcher interface {
	FetchChain(ctx context.Context, symbol string) (*ChainSnapshot, error)
}

// BarFetcher returns the daily bar for a symbol on a calendar day
type BarFetcher interface {
	FetchDailyBar(ctx context.Context, symbol string, day time.Time) (*OHLCBar, error)
}

// MarketDataFetcher is everything the analyzer needs from a quote provider
type MarketDataFetcher interface {
	ChainFetcher
	BarFetcher
	// Source names the provider in attempt records
	Source() string
}

// SnapshotStore caches IV30 values between runs
type SnapshotStore interface {
	Load(ctx context.Context, key string) (*IVSnapshot, error)
	Save(ctx context.Context, key string, snap IVSnapshot) error
}

// AttemptSink receives every provider attempt as it happens
type AttemptSink interface {
	RecordAttempt(ctx context.Context, ticker string, attempt Attempt)
}

// SnapshotKey builds the cache key for a ticker, day and phase,
// e.g. "AAPL_2024-05-02_pre"
func SnapshotKey(ticker string, day time.Time, phase Phase) string {
	return fmt.Sprintf("%s_%s_%s", ticker, day.Format("2006-01-02"), phase)
}

// MockMarketDataFetcher produces deterministic synthetic chains and bars for
// testing and offline runs. Values depend only on the symbol and the day.
type MockMarketDataFetcher struct {
	now func() time.Time
}

// NewMockMarketDataFetcher creates a mock fetcher whose expiries are laid out
// relative to now()
func NewMockMarketDataFetcher(now func() time.Time) *MockMarketDataFetcher {
	if now == nil {
		now = time.Now
	}
	return &MockMarketDataFetcher{now: now}
}

// Source implements MarketDataFetcher
func (m *MockMarketDataFetcher) Source() string { return "mock" }

// FetchChain generates a chain with weekly expiries out to nine weeks
func (m *MockMarketDataFetcher) FetchChain(ctx context.Context, symbol string) (*ChainSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := rand.New(rand.NewSource(symbolSeed(symbol)))
	spot := 20.0 + r.Float64()*480.0
	baseIV := 0.20 + r.Float64()*0.60

	// expiries at 16:00 New York (20:00 UTC) on Fridays
	now := m.now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 20, 0, 0, 0, time.UTC)
	for day.Weekday() != time.Friday {
		day = day.AddDate(0, 0, 1)
	}
	expiries := make([]time.Time, 0, 9)
	for i := 0; i < 9; i++ {
		expiries = append(expiries, day.AddDate(0, 0, 7*i))
	}

	loader := BucketLoaderFunc(func(ctx context.Context, expiration time.Time) (*ExpiryBucket, error) {
		return m.bucket(symbol, spot, baseIV, expiration), nil
	})

	return &ChainSnapshot{
		Symbol:   symbol,
		Spot:     spot,
		Expiries: expiries,
		Buckets:  loader,
	}, nil
}

// bucket lays out strikes around spot with a mild term structure and smile
func (m *MockMarketDataFetcher) bucket(symbol string, spot, baseIV float64, expiration time.Time) *ExpiryBucket {
	weeks := math.Max(0, expiration.Sub(m.now()).Hours()/(24*7))
	atm := baseIV * (1 + 0.3*math.Exp(-weeks/2))

	step := math.Max(0.5, math.Round(spot*0.025))
	center := math.Round(spot/step) * step

	b := &ExpiryBucket{Expiration: expiration}
	for i := -5; i <= 5; i++ {
		strike := center + float64(i)*step
		if strike <= 0 {
			continue
		}
		moneyness := (strike - spot) / spot
		iv := atm * (1 + 0.8*moneyness*moneyness)
		b.Calls = append(b.Calls, OptionQuote{Strike: strike, ImpliedVolatility: iv})
		b.Puts = append(b.Puts, OptionQuote{Strike: strike, ImpliedVolatility: iv * 1.02})
	}
	return b
}

// FetchDailyBar generates a bar; weekends have no data
func (m *MockMarketDataFetcher) FetchDailyBar(ctx context.Context, symbol string, day time.Time) (*OHLCBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, fmt.Errorf("%s %s: %w", symbol, day.Format("2006-01-02"), ErrNoData)
	}

	r := rand.New(rand.NewSource(symbolSeed(symbol) + day.Unix()/86400))
	prev := 20.0 + rand.New(rand.NewSource(symbolSeed(symbol))).Float64()*480.0

	open := prev * (1 + (r.Float64()-0.5)*0.08)
	high := open * (1 + r.Float64()*0.04)
	low := open * (1 - r.Float64()*0.04)
	closePx := low + (high-low)*r.Float64()

	return &OHLCBar{
		Date:   time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: 100000 + r.Int63n(5000000),
	}, nil
}

func symbolSeed(symbol string) int64 {
	seed := int64(0)
	for _, c := range symbol {
		seed = seed*31 + int64(c)
	}
	return seed
}
