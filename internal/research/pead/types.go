package pead

import (
	"context"
	"encoding/json"
	"time"
)

// OptionQuote is a single call or put row from an options chain.
// ImpliedVolatility of 0 means the provider had no value for the row.
type OptionQuote struct {
	Strike            float64 `json:"strike"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
}

// ExpiryBucket holds the call and put rows for one expiration
type ExpiryBucket struct {
	Expiration time.Time     `json:"expiration"`
	Calls      []OptionQuote `json:"calls"`
	Puts       []OptionQuote `json:"puts"`
}

// BucketLoader fetches the rows for a single expiry on demand.
// Implementations talk to the quote provider; the estimator only asks for
// the (at most two) expiries it selects.
type BucketLoader interface {
	LoadBucket(ctx context.Context, expiration time.Time) (*ExpiryBucket, error)
}

// BucketLoaderFunc adapts a function to BucketLoader
type BucketLoaderFunc func(ctx context.Context, expiration time.Time) (*ExpiryBucket, error)

// LoadBucket calls f
func (f BucketLoaderFunc) LoadBucket(ctx context.Context, expiration time.Time) (*ExpiryBucket, error) {
	return f(ctx, expiration)
}

// ChainSnapshot is an options chain as seen at one moment: the underlying
// spot, the list of listed expiries, and a loader for per-expiry rows.
// A Spot <= 0 is treated as missing.
type ChainSnapshot struct {
	Symbol   string
	Spot     float64
	Expiries []time.Time
	Buckets  BucketLoader
}

// IV30Result is either an annualized 30-day ATM implied volatility or an
// explicit unavailable marker with a reason. The zero value is unavailable.
type IV30Result struct {
	value     float64
	available bool
	reason    string
}

// IVValue builds an available result
func IVValue(v float64) IV30Result {
	return IV30Result{value: v, available: true}
}

// IVUnavailable builds an unavailable result carrying the reason
func IVUnavailable(reason string) IV30Result {
	return IV30Result{reason: reason}
}

// Get returns the volatility and whether it is available
func (r IV30Result) Get() (float64, bool) {
	return r.value, r.available
}

// Available reports whether the estimate exists
func (r IV30Result) Available() bool { return r.available }

// Reason explains why the estimate is unavailable. Empty when available.
func (r IV30Result) Reason() string { return r.reason }

// Ptr returns a pointer to the value, or nil when unavailable
func (r IV30Result) Ptr() *float64 {
	if !r.available {
		return nil
	}
	v := r.value
	return &v
}

// MarshalJSON encodes an unavailable result as null
func (r IV30Result) MarshalJSON() ([]byte, error) {
	if !r.available {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

// OHLCBar is one trading day of prices
type OHLCBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// DriftInputs are the realized and implied signals fed to the scorer.
// Nil means the signal is missing and contributes nothing.
type DriftInputs struct {
	CLV        *float64 `json:"clv"`
	GapFillPct *float64 `json:"gapFillPct"`
	IVCrushPct *float64 `json:"ivCrushPct"`
}

// DriftResult is the heuristic post-earnings drift estimate
type DriftResult struct {
	PeadPct              float64 `json:"peadPct"`
	RangePct             [2]int  `json:"rangePct"`
	Confidence           float64 `json:"confidence"`
	ContinuationFriendly *bool   `json:"continuationFriendly"`
}

// Phase is the capture window a run belongs to
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// ReportClass says when a company reports relative to the session
type ReportClass string

const (
	ClassBMO ReportClass = "BMO" // before market open
	ClassAMC ReportClass = "AMC" // after market close
)

// TickerRow is one line of the input ticker list
type TickerRow struct {
	Ticker     string      `json:"ticker"`
	ReportDate time.Time   `json:"reportDate"`
	Class      ReportClass `json:"class"`
}

// Attempt records one try at fetching provider data for a company
type Attempt struct {
	When   string `json:"when"` // "pre", "post" or "bars"
	Source string `json:"source"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// IVSection is the implied-volatility block of a company report
type IVSection struct {
	Pre      *float64  `json:"pre"`
	Post     *float64  `json:"post"`
	CrushPct *float64  `json:"iv30CrushPct"`
	Source   string    `json:"source"`
	Attempts []Attempt `json:"attempts"`
}

// DailyStats is the realized D0 price action
type DailyStats struct {
	GapFillPct *float64 `json:"gapFillPct"`
	CLV        *float64 `json:"clv"`
}

// Realized groups realized-price metrics
type Realized struct {
	D0 DailyStats `json:"d0"`
}

// GuidancePattern is a fixed label; guidance parsing is out of scope
type GuidancePattern struct {
	Label     string `json:"label"`
	Rationale string `json:"rationale"`
}

// CompanyReport is the per-ticker output
type CompanyReport struct {
	Ticker          string          `json:"ticker"`
	ReportDate      string          `json:"reportDate"`
	Class           ReportClass     `json:"class"`
	TimestampUTC    time.Time       `json:"timestampUtc"`
	IV30            IVSection       `json:"iv30"`
	Realized        Realized        `json:"realized"`
	GuidancePattern GuidancePattern `json:"guidancePattern"`
	DriftResult
}

// Report is the output of a single run
type Report struct {
	ExecutionTimestamp time.Time       `json:"executionTimestamp"`
	RunID              string          `json:"runId"`
	Basis              string          `json:"basis"`
	Mode               string          `json:"mode"`
	Phase              Phase           `json:"phase"`
	Companies          []CompanyReport `json:"companies"`
}

// IVSnapshot is a cached IV30 value for one ticker/date/phase
type IVSnapshot struct {
	IV30      float64   `json:"iv30"`
	Timestamp time.Time `json:"ts"`
}

// PEADConfig holds the analyzer settings
type PEADConfig struct {
	DataSource  string // LIVE or MOCK
	Phase       Phase
	Concurrency int
	BarLookback int // calendar days walked back to find D-1
	SourceName  string
	ModeLabel   string
}

// GetDefaultConfig returns the settings used when nothing is configured
func GetDefaultConfig() PEADConfig {
	return PEADConfig{
		DataSource:  "LIVE",
		Phase:       PhasePost,
		Concurrency: 4,
		BarLookback: 5,
		SourceName:  "yahoo",
		ModeLabel:   "Yahoo-first (free)",
	}
}
