package metadata

import "strings"

// Scorer turns a model-reported confidence plus provenance into the stored
// confidence. Kept pluggable because the right calculation is an open
// modelling question; callers always receive a value clamped to [0,1].
type Scorer interface {
	Score(reported float64, value, context string) float64
}

// ModelScorer trusts the model-reported confidence, clamped.
type ModelScorer struct{}

func (ModelScorer) Score(reported float64, _, _ string) float64 {
	return Clamp(reported)
}

// HeuristicScorer ignores the reported number and scores on whether the
// extracted value is literally present in its provenance context. Useful for
// offline runs and as a sanity baseline.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(_ float64, value, context string) float64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}
	if context != "" && strings.Contains(strings.ToLower(context), strings.ToLower(v)) {
		return 0.9
	}
	return 0.6
}

// Clamp bounds a confidence to [0,1].
func Clamp(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
