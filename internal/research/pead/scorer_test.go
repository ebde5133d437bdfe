package pead

import (
	"testing"
)

func f64(v float64) *float64 { return &v }

func TestScoreNoInputs(t *testing.T) {
	res := NewDriftScorer().Score(DriftInputs{})

	if res.PeadPct != 0 {
		t.Errorf("Expected peadPct 0, got %v", res.PeadPct)
	}
	if res.RangePct != [2]int{-3, 3} {
		t.Errorf("Expected rangePct [-3 3], got %v", res.RangePct)
	}
	if res.Confidence != 0.35 {
		t.Errorf("Expected confidence 0.35, got %v", res.Confidence)
	}
	if res.ContinuationFriendly != nil {
		t.Errorf("Expected continuationFriendly to be absent, got %v", *res.ContinuationFriendly)
	}
}

func TestScoreScenarios(t *testing.T) {
	tests := []struct {
		name         string
		in           DriftInputs
		wantPead     float64
		wantRange    [2]int
		wantConf     float64
		wantContinue *bool
	}{
		{
			name:         "all supportive",
			in:           DriftInputs{CLV: f64(0.5), GapFillPct: f64(20), IVCrushPct: f64(-20)},
			wantPead:     6,
			wantRange:    [2]int{3, 9},
			wantConf:     0.65,
			wantContinue: ptr(true),
		},
		{
			name:         "all adverse",
			in:           DriftInputs{CLV: f64(-0.2), GapFillPct: f64(80), IVCrushPct: f64(-60)},
			wantPead:     -3,
			wantRange:    [2]int{-6, 0},
			wantConf:     0.2,
			wantContinue: ptr(false),
		},
		{
			name:      "crush only",
			in:        DriftInputs{IVCrushPct: f64(-30)},
			wantPead:  2,
			wantRange: [2]int{-1, 5},
			wantConf:  0.45,
		},
		{
			name:      "clv only negative",
			in:        DriftInputs{CLV: f64(-0.9)},
			wantPead:  -1,
			wantRange: [2]int{-4, 2},
			wantConf:  0.3,
		},
		{
			name:         "gap fill boundary is supportive",
			in:           DriftInputs{CLV: f64(0), GapFillPct: f64(33)},
			wantPead:     4,
			wantRange:    [2]int{1, 7},
			wantConf:     0.55,
			wantContinue: ptr(true),
		},
		{
			name:         "mixed",
			in:           DriftInputs{CLV: f64(0.6), GapFillPct: f64(80)},
			wantPead:     1,
			wantRange:    [2]int{-2, 4},
			wantConf:     0.4,
			wantContinue: ptr(false),
		},
	}

	scorer := NewDriftScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := scorer.Score(tt.in)
			if res.PeadPct != tt.wantPead {
				t.Errorf("Expected peadPct %v, got %v", tt.wantPead, res.PeadPct)
			}
			if res.RangePct != tt.wantRange {
				t.Errorf("Expected rangePct %v, got %v", tt.wantRange, res.RangePct)
			}
			if res.Confidence != tt.wantConf {
				t.Errorf("Expected confidence %v, got %v", tt.wantConf, res.Confidence)
			}
			switch {
			case tt.wantContinue == nil && res.ContinuationFriendly != nil:
				t.Errorf("Expected continuationFriendly absent, got %v", *res.ContinuationFriendly)
			case tt.wantContinue != nil && res.ContinuationFriendly == nil:
				t.Errorf("Expected continuationFriendly %v, got absent", *tt.wantContinue)
			case tt.wantContinue != nil && *res.ContinuationFriendly != *tt.wantContinue:
				t.Errorf("Expected continuationFriendly %v, got %v", *tt.wantContinue, *res.ContinuationFriendly)
			}
		})
	}
}

func TestScoreCrushBands(t *testing.T) {
	tests := []struct {
		crush float64
		want  float64
	}{
		{-5, 1},
		{-40, 1},
		{-20, 1},
		{-4.9, 0},
		{10, 0},
		{-45, 0},
		{-50, 0},
		{-50.1, -0.5},
		{-90, -0.5},
	}

	scorer := NewDriftScorer()
	for _, tt := range tests {
		got := scorer.rawScore(DriftInputs{IVCrushPct: f64(tt.crush)})
		if got != tt.want {
			t.Errorf("crush %v: Expected score %v, got %v", tt.crush, tt.want, got)
		}
	}
}

func TestContinuationNeedsBothInputs(t *testing.T) {
	scorer := NewDriftScorer()

	if res := scorer.Score(DriftInputs{CLV: f64(0.9)}); res.ContinuationFriendly != nil {
		t.Error("Expected continuationFriendly absent with only CLV")
	}
	if res := scorer.Score(DriftInputs{GapFillPct: f64(5), IVCrushPct: f64(-10)}); res.ContinuationFriendly != nil {
		t.Error("Expected continuationFriendly absent without CLV")
	}
}

func TestIVCrushPct(t *testing.T) {
	if got := IVCrushPct(f64(0.5), f64(0.4)); got == nil || *got != -20 {
		t.Errorf("Expected -20, got %v", got)
	}
	if got := IVCrushPct(f64(0.3), f64(0.2)); got == nil || *got != -33.33 {
		t.Errorf("Expected -33.33, got %v", got)
	}
	if got := IVCrushPct(nil, f64(0.4)); got != nil {
		t.Errorf("Expected nil without pre, got %v", *got)
	}
	if got := IVCrushPct(f64(0.5), nil); got != nil {
		t.Errorf("Expected nil without post, got %v", *got)
	}
	if got := IVCrushPct(f64(0), f64(0.4)); got != nil {
		t.Errorf("Expected nil for zero pre, got %v", *got)
	}
}
