package pead

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

const (
	// TargetDays is the constant-maturity horizon of the estimate
	TargetDays = 30.0

	daysPerYear    = 365.25
	secondsPerYear = daysPerYear * 86400
	minYearFrac    = 1e-6
	minVariance    = 1e-10
	sameMaturity   = 1e-9
	minHorizon     = 24 * time.Hour
)

// Unavailable reasons returned by Estimate
const (
	ReasonNoChain   = "no chain"
	ReasonNoSpot    = "missing spot price"
	ReasonNoExpiry  = "no expiry more than one day out"
	ReasonNoLoader  = "no bucket loader"
	ReasonNoQuotes  = "no usable ATM quotes"
	ReasonNonFinite = "non-finite interpolation"

	reasonLoadPrefix  = "load expiry"
	reasonFaultPrefix = "estimator fault"
)

// ReasonClass maps an attempt reason onto a small fixed label set for
// metrics. Reasons not produced by Estimate are provider fetch errors.
func ReasonClass(reason string) string {
	switch {
	case reason == "":
		return "none"
	case reason == ReasonNoChain, reason == ReasonNoLoader:
		return "no_chain"
	case reason == ReasonNoSpot:
		return "no_spot"
	case reason == ReasonNoExpiry:
		return "no_expiry"
	case reason == ReasonNoQuotes:
		return "no_quotes"
	case reason == ReasonNonFinite, strings.HasPrefix(reason, reasonFaultPrefix):
		return "fault"
	case strings.HasPrefix(reason, reasonLoadPrefix):
		return "load_error"
	default:
		return "fetch_error"
	}
}

// IV30Estimator turns an options chain into a 30-day at-the-money implied
// volatility by interpolating total variance between the two expiries that
// straddle the 30-day target.
type IV30Estimator struct{}

// NewIV30Estimator creates an estimator
func NewIV30Estimator() *IV30Estimator {
	return &IV30Estimator{}
}

// Estimate computes IV30 for the chain as of ref. It never panics and never
// returns an error: provider faults and missing data come back as an
// unavailable result with a reason.
func (e *IV30Estimator) Estimate(ctx context.Context, chain *ChainSnapshot, ref time.Time) (res IV30Result) {
	defer func() {
		if r := recover(); r != nil {
			res = IVUnavailable(fmt.Sprintf("%s: %v", reasonFaultPrefix, r))
		}
	}()

	if chain == nil {
		return IVUnavailable(ReasonNoChain)
	}
	if !(chain.Spot > 0) {
		return IVUnavailable(ReasonNoSpot)
	}

	e1, e2, ok := SelectExpiries(chain.Expiries, ref)
	if !ok {
		return IVUnavailable(ReasonNoExpiry)
	}
	if chain.Buckets == nil {
		return IVUnavailable(ReasonNoLoader)
	}

	iv1, ok1, err := e.expiryIV(ctx, chain, e1)
	if err != nil {
		return IVUnavailable(fmt.Sprintf("%s %s: %v", reasonLoadPrefix, e1.UTC().Format("2006-01-02"), err))
	}

	iv2, ok2 := iv1, ok1
	if !e2.Equal(e1) {
		iv2, ok2, err = e.expiryIV(ctx, chain, e2)
		if err != nil {
			return IVUnavailable(fmt.Sprintf("%s %s: %v", reasonLoadPrefix, e2.UTC().Format("2006-01-02"), err))
		}
	}

	switch {
	case !ok1 && !ok2:
		return IVUnavailable(ReasonNoQuotes)
	case !ok1:
		return IVValue(iv2)
	case !ok2:
		return IVValue(iv1)
	}

	v := InterpolateIV30(iv1, YearFraction(ref, e1), iv2, YearFraction(ref, e2))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return IVUnavailable(ReasonNonFinite)
	}
	return IVValue(v)
}

// expiryIV loads one bucket and returns its combined ATM call/put IV
func (e *IV30Estimator) expiryIV(ctx context.Context, chain *ChainSnapshot, expiration time.Time) (float64, bool, error) {
	bucket, err := chain.Buckets.LoadBucket(ctx, expiration)
	if err != nil {
		return 0, false, err
	}
	if bucket == nil {
		return 0, false, nil
	}

	call, okCall := NearestATMIV(bucket.Calls, chain.Spot)
	put, okPut := NearestATMIV(bucket.Puts, chain.Spot)
	switch {
	case okCall && okPut:
		return (call + put) / 2, true, nil
	case okCall:
		return call, true, nil
	case okPut:
		return put, true, nil
	}
	return 0, false, nil
}

// SelectExpiries picks the expiries bracketing the 30-day target among those
// more than one day after ref. e1 is the latest expiry at or under 30 days
// and e2 the earliest at or over 30 days; when one side is empty both fall
// back to the nearest expiry on the other side.
func SelectExpiries(expiries []time.Time, ref time.Time) (e1, e2 time.Time, ok bool) {
	cutoff := ref.Add(minHorizon)
	future := make([]time.Time, 0, len(expiries))
	for _, exp := range expiries {
		if exp.After(cutoff) {
			future = append(future, exp)
		}
	}
	if len(future) == 0 {
		return time.Time{}, time.Time{}, false
	}
	sort.Slice(future, func(i, j int) bool { return future[i].Before(future[j]) })

	var below, above []time.Time
	for _, exp := range future {
		days := exp.Sub(ref).Hours() / 24
		if days <= TargetDays {
			below = append(below, exp)
		}
		if days >= TargetDays {
			above = append(above, exp)
		}
	}

	if len(below) > 0 {
		e1 = below[len(below)-1]
	} else {
		e1 = above[0]
	}
	if len(above) > 0 {
		e2 = above[0]
	} else {
		e2 = below[len(below)-1]
	}
	return e1, e2, true
}

// NearestATMIV returns the implied volatility of the row whose strike is
// closest to spot. Rows without a positive IV are skipped; on equal distance
// the first row wins.
func NearestATMIV(quotes []OptionQuote, spot float64) (float64, bool) {
	bestDiff := math.Inf(1)
	bestIV := 0.0
	found := false
	for _, q := range quotes {
		if !(q.ImpliedVolatility > 0) || math.IsNaN(q.Strike) {
			continue
		}
		d := math.Abs(q.Strike - spot)
		if d < bestDiff {
			bestDiff = d
			bestIV = q.ImpliedVolatility
			found = true
		}
	}
	return bestIV, found
}

// YearFraction is the time from ref to expiration in 365.25-day years,
// floored at a small positive value
func YearFraction(ref, expiration time.Time) float64 {
	return math.Max(minYearFrac, expiration.Sub(ref).Seconds()/secondsPerYear)
}

// InterpolateIV30 interpolates linearly in total variance (iv²·T) between
// two maturities and converts back to an annualized volatility at 30 days.
// Coincident maturities use the midpoint.
func InterpolateIV30(iv1, t1, iv2, t2 float64) float64 {
	target := TargetDays / daysPerYear
	var1 := iv1 * iv1 * t1
	var2 := iv2 * iv2 * t2

	alpha := 0.5
	if math.Abs(t2-t1) > sameMaturity {
		alpha = (target - t1) / (t2 - t1)
	}
	varT := var1 + (var2-var1)*alpha
	return math.Sqrt(math.Max(minVariance, varT/target))
}
