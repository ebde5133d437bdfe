package pead

const (
	continuationMaxGapFill = 33.0

	peadFloor = -8.0
	peadCap   = 12.0
	peadScale = 2.0
	rangeHalf = 3.0

	confidenceBase  = 0.35
	confidenceSlope = 0.1
	confidenceFloor = 0.1
	confidenceCap   = 0.8

	crushBandLow  = -40.0
	crushBandHigh = -5.0
	crushCollapse = -50.0
)

// DriftScorer turns realized price action and IV crush into a bounded drift
// estimate. It holds no state.
type DriftScorer struct{}

// NewDriftScorer creates a scorer
func NewDriftScorer() *DriftScorer {
	return &DriftScorer{}
}

// Score computes the drift estimate. Missing inputs add nothing.
func (s *DriftScorer) Score(in DriftInputs) DriftResult {
	score := s.rawScore(in)

	pead := roundTo(clamp(peadScale*score, peadFloor, peadCap), 2)
	result := DriftResult{
		PeadPct: pead,
		// int() truncates toward zero
		RangePct:   [2]int{int(pead - rangeHalf), int(pead + rangeHalf)},
		Confidence: roundTo(clamp(confidenceBase+confidenceSlope*score, confidenceFloor, confidenceCap), 2),
	}

	if in.CLV != nil && in.GapFillPct != nil {
		result.ContinuationFriendly = ptr(*in.CLV >= 0 && *in.GapFillPct <= continuationMaxGapFill)
	}

	return result
}

// rawScore is the additive heuristic before scaling
func (s *DriftScorer) rawScore(in DriftInputs) float64 {
	score := 0.0

	if in.CLV != nil {
		if *in.CLV >= 0 {
			score += 1.0
		} else {
			score -= 0.5
		}
	}

	if in.GapFillPct != nil {
		if *in.GapFillPct <= continuationMaxGapFill {
			score += 1.0
		} else {
			score -= 0.5
		}
	}

	// (-50, -40) and above -5 intentionally score zero
	if in.IVCrushPct != nil {
		crush := *in.IVCrushPct
		switch {
		case crush >= crushBandLow && crush <= crushBandHigh:
			score += 1.0
		case crush < crushCollapse:
			score -= 0.5
		}
	}

	return score
}

// IVCrushPct is the change from pre to post IV as a percentage of pre,
// rounded to 2 decimals. It is nil unless both are present and pre > 0.
func IVCrushPct(pre, post *float64) *float64 {
	if pre == nil || post == nil || !(*pre > 0) || !(*post > 0) {
		return nil
	}
	return ptr(roundTo((*post-*pre) / *pre * 100, 2))
}
