package pead

import "math"

const (
	maxGapFillPct = 150.0
	minGap        = 1e-9
)

// ComputeDailyStats measures how much of the opening gap versus prevClose was
// retraced intraday (gapFillPct, capped at 150) and where the close sits in
// the day's range (clv, -1 at the low to +1 at the high). A zero gap yields a
// gap fill of 0 and a zero-width range yields a CLV of 0. Results are rounded
// to 2 and 3 decimals.
func ComputeDailyStats(prevClose float64, bar OHLCBar) (gapFillPct, clv float64) {
	gap := math.Abs(bar.Open - prevClose)

	var retracement float64
	if bar.Open >= prevClose {
		retracement = bar.Open - bar.Low
	} else {
		retracement = bar.High - bar.Open
	}

	if gap > minGap {
		// malformed bars (open outside high/low) would otherwise go negative
		gapFillPct = clamp(100*retracement/gap, 0, maxGapFillPct)
	}

	if bar.High > bar.Low {
		clv = (2*bar.Close - bar.High - bar.Low) / (bar.High - bar.Low)
	}

	return roundTo(gapFillPct, 2), roundTo(clv, 3)
}
