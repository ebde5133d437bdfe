package pead

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

var ivRef = time.Date(2024, 5, 2, 21, 0, 0, 0, time.UTC)

func daysOut(d float64) time.Time {
	return ivRef.Add(time.Duration(d * 24 * float64(time.Hour)))
}

// flatLoader serves one ATM call/put pair per expiry with the given IV
func flatLoader(spot float64, ivs map[time.Time]float64) (BucketLoaderFunc, *int) {
	calls := 0
	return func(ctx context.Context, expiration time.Time) (*ExpiryBucket, error) {
		calls++
		iv := ivs[expiration]
		return &ExpiryBucket{
			Expiration: expiration,
			Calls:      []OptionQuote{{Strike: spot - 10, ImpliedVolatility: 0.9}, {Strike: spot, ImpliedVolatility: iv}},
			Puts:       []OptionQuote{{Strike: spot, ImpliedVolatility: iv}, {Strike: spot + 10, ImpliedVolatility: 0.9}},
		}, nil
	}, &calls
}

func TestEstimateInterpolates(t *testing.T) {
	e1, e2 := daysOut(20), daysOut(41)
	loader, _ := flatLoader(100, map[time.Time]float64{e1: 0.30, e2: 0.40})
	chain := &ChainSnapshot{Symbol: "AAPL", Spot: 100, Expiries: []time.Time{daysOut(6), e2, e1, daysOut(70)}, Buckets: loader}

	res := NewIV30Estimator().Estimate(context.Background(), chain, ivRef)
	got, ok := res.Get()
	if !ok {
		t.Fatalf("Expected an estimate, got unavailable: %s", res.Reason())
	}

	want := InterpolateIV30(0.30, YearFraction(ivRef, e1), 0.40, YearFraction(ivRef, e2))
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if got <= 0.30 || got >= 0.40 {
		t.Errorf("Expected estimate between the bracketing IVs, got %v", got)
	}
	if res.Reason() != "" {
		t.Errorf("Expected empty reason, got %q", res.Reason())
	}
}

func TestEstimateCombinesCallAndPut(t *testing.T) {
	e1 := daysOut(30)
	loader := BucketLoaderFunc(func(ctx context.Context, expiration time.Time) (*ExpiryBucket, error) {
		return &ExpiryBucket{
			Calls: []OptionQuote{{Strike: 100, ImpliedVolatility: 0.30}},
			Puts:  []OptionQuote{{Strike: 100, ImpliedVolatility: 0.34}},
		}, nil
	})
	chain := &ChainSnapshot{Spot: 100, Expiries: []time.Time{e1}, Buckets: loader}

	got, ok := NewIV30Estimator().Estimate(context.Background(), chain, ivRef).Get()
	if !ok {
		t.Fatal("Expected an estimate")
	}
	if math.Abs(got-0.32) > 1e-9 {
		t.Errorf("Expected 0.32 at exactly 30 days, got %v", got)
	}
}

func TestEstimateOneSidedReturnsRawIV(t *testing.T) {
	e1, e2 := daysOut(20), daysOut(41)
	loader := BucketLoaderFunc(func(ctx context.Context, expiration time.Time) (*ExpiryBucket, error) {
		if expiration.Equal(e1) {
			return &ExpiryBucket{Calls: []OptionQuote{{Strike: 100, ImpliedVolatility: 0}}}, nil
		}
		return &ExpiryBucket{Puts: []OptionQuote{{Strike: 101, ImpliedVolatility: 0.437}}}, nil
	})
	chain := &ChainSnapshot{Spot: 100, Expiries: []time.Time{e1, e2}, Buckets: loader}

	got, ok := NewIV30Estimator().Estimate(context.Background(), chain, ivRef).Get()
	if !ok {
		t.Fatal("Expected an estimate")
	}
	if got != 0.437 {
		t.Errorf("Expected the usable side unmodified (0.437), got %v", got)
	}
}

func TestEstimateBothBeyondTarget(t *testing.T) {
	e1 := daysOut(45)
	loader, calls := flatLoader(50, map[time.Time]float64{e1: 0.25})
	chain := &ChainSnapshot{Spot: 50, Expiries: []time.Time{daysOut(60), e1}, Buckets: loader}

	got, ok := NewIV30Estimator().Estimate(context.Background(), chain, ivRef).Get()
	if !ok {
		t.Fatal("Expected an estimate")
	}
	want := 0.25 * math.Sqrt(45.0/30.0)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if *calls != 1 {
		t.Errorf("Expected the shared expiry to load once, got %d loads", *calls)
	}
}

func TestEstimateUnavailable(t *testing.T) {
	loader, _ := flatLoader(100, nil)
	emptyLoader := BucketLoaderFunc(func(ctx context.Context, expiration time.Time) (*ExpiryBucket, error) {
		return &ExpiryBucket{Calls: []OptionQuote{{Strike: 100, ImpliedVolatility: math.NaN()}}}, nil
	})

	tests := []struct {
		name   string
		chain  *ChainSnapshot
		reason string
	}{
		{"nil chain", nil, ReasonNoChain},
		{"no spot", &ChainSnapshot{Expiries: []time.Time{daysOut(30)}, Buckets: loader}, ReasonNoSpot},
		{"negative spot", &ChainSnapshot{Spot: -1, Expiries: []time.Time{daysOut(30)}, Buckets: loader}, ReasonNoSpot},
		{"no expiries", &ChainSnapshot{Spot: 100, Buckets: loader}, ReasonNoExpiry},
		{"only near expiries", &ChainSnapshot{Spot: 100, Expiries: []time.Time{daysOut(-3), ivRef.Add(24 * time.Hour)}, Buckets: loader}, ReasonNoExpiry},
		{"no loader", &ChainSnapshot{Spot: 100, Expiries: []time.Time{daysOut(30)}}, ReasonNoLoader},
		{"no usable quotes", &ChainSnapshot{Spot: 100, Expiries: []time.Time{daysOut(20), daysOut(40)}, Buckets: emptyLoader}, ReasonNoQuotes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewIV30Estimator().Estimate(context.Background(), tt.chain, ivRef)
			if res.Available() {
				v, _ := res.Get()
				t.Fatalf("Expected unavailable, got %v", v)
			}
			if res.Reason() != tt.reason {
				t.Errorf("Expected reason %q, got %q", tt.reason, res.Reason())
			}
			if res.Ptr() != nil {
				t.Error("Expected nil pointer for unavailable result")
			}
		})
	}
}

func TestEstimateLoaderError(t *testing.T) {
	loader := BucketLoaderFunc(func(ctx context.Context, expiration time.Time) (*ExpiryBucket, error) {
		return nil, errors.New("HTTP 500")
	})
	chain := &ChainSnapshot{Spot: 100, Expiries: []time.Time{daysOut(20), daysOut(40)}, Buckets: loader}

	res := NewIV30Estimator().Estimate(context.Background(), chain, ivRef)
	if res.Available() {
		t.Fatal("Expected unavailable")
	}
	if !strings.HasPrefix(res.Reason(), "load expiry 2024-05-22") || !strings.Contains(res.Reason(), "HTTP 500") {
		t.Errorf("Expected load error reason, got %q", res.Reason())
	}
	if got := ReasonClass(res.Reason()); got != "load_error" {
		t.Errorf("Expected class load_error, got %s", got)
	}
}

func TestEstimateRecoversFromPanic(t *testing.T) {
	loader := BucketLoaderFunc(func(ctx context.Context, expiration time.Time) (*ExpiryBucket, error) {
		panic("malformed payload")
	})
	chain := &ChainSnapshot{Spot: 100, Expiries: []time.Time{daysOut(30)}, Buckets: loader}

	res := NewIV30Estimator().Estimate(context.Background(), chain, ivRef)
	if res.Available() {
		t.Fatal("Expected unavailable")
	}
	if !strings.Contains(res.Reason(), "malformed payload") {
		t.Errorf("Expected panic value in reason, got %q", res.Reason())
	}
	if got := ReasonClass(res.Reason()); got != "fault" {
		t.Errorf("Expected class fault, got %s", got)
	}
}

func TestSelectExpiries(t *testing.T) {
	tests := []struct {
		name     string
		expiries []time.Time
		want1    time.Time
		want2    time.Time
		ok       bool
	}{
		{"bracketing", []time.Time{daysOut(41), daysOut(6), daysOut(27), daysOut(13)}, daysOut(27), daysOut(41), true},
		{"exact target", []time.Time{daysOut(20), daysOut(30), daysOut(40)}, daysOut(30), daysOut(30), true},
		{"all below", []time.Time{daysOut(5), daysOut(12)}, daysOut(12), daysOut(12), true},
		{"all above", []time.Time{daysOut(60), daysOut(45)}, daysOut(45), daysOut(45), true},
		{"skips expiries within a day", []time.Time{ivRef.Add(23 * time.Hour), daysOut(35)}, daysOut(35), daysOut(35), true},
		{"nothing usable", []time.Time{ivRef.Add(-time.Hour), ivRef.Add(24 * time.Hour)}, time.Time{}, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e1, e2, ok := SelectExpiries(tt.expiries, ivRef)
			if ok != tt.ok {
				t.Fatalf("Expected ok %v, got %v", tt.ok, ok)
			}
			if !e1.Equal(tt.want1) || !e2.Equal(tt.want2) {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tt.want1, tt.want2, e1, e2)
			}
		})
	}
}

func TestNearestATMIV(t *testing.T) {
	tests := []struct {
		name   string
		quotes []OptionQuote
		spot   float64
		want   float64
		ok     bool
	}{
		{"closest strike", []OptionQuote{{90, 0.5}, {101, 0.3}, {110, 0.4}}, 100, 0.3, true},
		{"tie keeps first row", []OptionQuote{{105, 0.41}, {95, 0.39}}, 100, 0.41, true},
		{"skips missing iv", []OptionQuote{{100, 0}, {102, 0.33}}, 100, 0.33, true},
		{"skips nan iv", []OptionQuote{{100, math.NaN()}, {98, 0.28}}, 100, 0.28, true},
		{"nothing usable", []OptionQuote{{100, 0}, {101, -0.2}}, 100, 0, false},
		{"empty", nil, 100, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NearestATMIV(tt.quotes, tt.spot)
			if ok != tt.ok {
				t.Fatalf("Expected ok %v, got %v", tt.ok, ok)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestInterpolateIV30(t *testing.T) {
	target := TargetDays / daysPerYear

	if got := InterpolateIV30(0.3, target, 0.5, 2*target); math.Abs(got-0.3) > 1e-12 {
		t.Errorf("Expected iv1 when t1 is the target, got %v", got)
	}
	if got := InterpolateIV30(0.3, target/2, 0.5, target); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Expected iv2 when t2 is the target, got %v", got)
	}

	// coincident maturities average the variances
	t1 := 10 / daysPerYear
	got := InterpolateIV30(0.3, t1, 0.5, t1)
	want := math.Sqrt((0.09*t1 + 0.25*t1) / 2 / target)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected %v for coincident maturities, got %v", want, got)
	}

	// extrapolating into negative variance hits the floor
	got = InterpolateIV30(0.9, 20/daysPerYear, 0.1, 25/daysPerYear)
	if want := math.Sqrt(minVariance); got != want {
		t.Errorf("Expected floored value %v, got %v", want, got)
	}
}

func TestYearFraction(t *testing.T) {
	if got := YearFraction(ivRef, ivRef.Add(-time.Hour)); got != minYearFrac {
		t.Errorf("Expected floor %v for past expiry, got %v", minYearFrac, got)
	}
	if got := YearFraction(ivRef, ivRef.Add(time.Duration(daysPerYear*24)*time.Hour)); math.Abs(got-1) > 1e-12 {
		t.Errorf("Expected 1 year, got %v", got)
	}
}

func TestReasonClass(t *testing.T) {
	tests := map[string]string{
		"":                             "none",
		ReasonNoChain:                  "no_chain",
		ReasonNoLoader:                 "no_chain",
		ReasonNoSpot:                   "no_spot",
		ReasonNoExpiry:                 "no_expiry",
		ReasonNoQuotes:                 "no_quotes",
		ReasonNonFinite:                "fault",
		"estimator fault: boom":        "fault",
		"load expiry 2024-05-22: x":    "load_error",
		"yahoo options AAPL: HTTP 429": "fetch_error",
	}
	for reason, want := range tests {
		if got := ReasonClass(reason); got != want {
			t.Errorf("ReasonClass(%q): Expected %s, got %s", reason, want, got)
		}
	}
}
