package stats

import (
	"math"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// FutilityFraction and FutilityPValue define the futility stop: past half of the
// planned sample a p-value this high is unlikely to ever become significant.
const (
	FutilityFraction = 0.5
	FutilityPValue   = 0.8
)

// InformationFraction is observed/planned, capped at 1. A non-positive plan
// counts as fully observed.
func InformationFraction(observed, planned int64) float64 {
	if planned <= 0 {
		return 1
	}
	f := float64(observed) / float64(planned)
	return math.Max(0, math.Min(1, f))
}

// AdjustedAlpha spends baseAlpha in proportion to √fraction, so early looks
// need much stronger evidence and the full alpha is only available at the end.
func AdjustedAlpha(baseAlpha, fraction float64) float64 {
	if fraction <= 0 {
		return 0
	}
	return baseAlpha * math.Sqrt(math.Min(1, fraction))
}

// Sequential evaluates the interim stopping rule. pValue is the smallest
// treatment p-value observed so far; nil means no test could be run yet.
func Sequential(observed, planned int64, baseAlpha float64, pValue *float64) domain.SequentialBound {
	fraction := InformationFraction(observed, planned)
	b := domain.SequentialBound{
		PlannedSampleSize: planned,
		ObservedUsers:     observed,
		Fraction:          fraction,
		BaseAlpha:         baseAlpha,
		AdjustedAlpha:     AdjustedAlpha(baseAlpha, fraction),
	}
	if pValue == nil {
		return b
	}
	b.StopForEfficacy = *pValue < b.AdjustedAlpha
	b.StopForFutility = !b.StopForEfficacy && fraction > FutilityFraction && *pValue > FutilityPValue
	return b
}
