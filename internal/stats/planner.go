package stats

import (
	"fmt"
	"math"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// Adjustment is a multiple-comparison correction.
type Adjustment string

const (
	AdjustmentNone       Adjustment = "none"
	AdjustmentBonferroni Adjustment = "bonferroni"
)

// ParseAdjustment accepts "", "none" and "bonferroni".
func ParseAdjustment(s string) (Adjustment, error) {
	switch Adjustment(s) {
	case "", AdjustmentNone:
		return AdjustmentNone, nil
	case AdjustmentBonferroni:
		return AdjustmentBonferroni, nil
	}
	return "", domain.NewValidationError("adjustment", fmt.Sprintf("unknown adjustment %q", s))
}

// SampleSizeInput describes a planned comparison. Zero values take the
// conventional defaults: alpha 0.05, power 0.8, two tails, one comparison.
type SampleSizeInput struct {
	BaselineRate            float64
	MinimumDetectableEffect float64
	Alpha                   float64
	Power                   float64
	Tails                   int
	MultipleComparisons     int
	Adjustment              Adjustment
}

// SampleSizePlan is the result of a power analysis.
type SampleSizePlan struct {
	PerArm        int64
	Total         int64
	AdjustedAlpha float64
	ZAlpha        float64
	ZBeta         float64
	BaselineRate  float64
	TargetRate    float64
}

// ForArms scales the per-arm requirement to k arms.
func (p SampleSizePlan) ForArms(k int) int64 {
	return p.PerArm * int64(k)
}

// SampleSize computes the per-arm sample size needed to detect a relative
// change of MinimumDetectableEffect over BaselineRate.
func SampleSize(in SampleSizeInput) (SampleSizePlan, error) {
	if in.Alpha == 0 {
		in.Alpha = 0.05
	}
	if in.Power == 0 {
		in.Power = 0.8
	}
	if in.Tails == 0 {
		in.Tails = 2
	}
	if in.MultipleComparisons == 0 {
		in.MultipleComparisons = 1
	}

	if in.BaselineRate <= 0 || in.BaselineRate >= 1 {
		return SampleSizePlan{}, domain.NewValidationError("baseline_rate", "must be between 0 and 1 (exclusive)")
	}
	if in.MinimumDetectableEffect == 0 {
		return SampleSizePlan{}, domain.NewValidationError("minimum_detectable_effect", "must not be zero")
	}
	if in.Alpha <= 0 || in.Alpha >= 1 {
		return SampleSizePlan{}, domain.NewValidationError("alpha", "must be between 0 and 1 (exclusive)")
	}
	if in.Power <= 0 || in.Power >= 1 {
		return SampleSizePlan{}, domain.NewValidationError("power", "must be between 0 and 1 (exclusive)")
	}
	if in.Tails != 1 && in.Tails != 2 {
		return SampleSizePlan{}, domain.NewValidationError("tails", "must be 1 or 2")
	}
	if in.MultipleComparisons < 1 {
		return SampleSizePlan{}, domain.NewValidationError("multiple_comparisons", "must be at least 1")
	}

	p1 := in.BaselineRate
	p2 := in.BaselineRate * (1 + in.MinimumDetectableEffect)
	if p2 <= 0 || p2 > 1 {
		return SampleSizePlan{}, domain.NewValidationError("minimum_detectable_effect", fmt.Sprintf("target rate %.4f falls outside (0,1]", p2))
	}

	adjustedAlpha := in.Alpha
	if in.Adjustment == AdjustmentBonferroni && in.MultipleComparisons > 1 {
		adjustedAlpha = in.Alpha / float64(in.MultipleComparisons)
	}

	var zAlpha float64
	if in.Tails == 2 {
		zAlpha = InverseNormalCDF(1 - adjustedAlpha/2)
	} else {
		zAlpha = InverseNormalCDF(1 - adjustedAlpha)
	}
	zBeta := InverseNormalCDF(in.Power)

	pooled := (p1 + p2) / 2
	n := math.Ceil(math.Pow(zAlpha+zBeta, 2) * 2 * pooled * (1 - pooled) / math.Pow(p2-p1, 2))
	perArm := int64(n)
	if perArm < 1 {
		perArm = 1
	}

	return SampleSizePlan{
		PerArm:        perArm,
		Total:         2 * perArm,
		AdjustedAlpha: adjustedAlpha,
		ZAlpha:        zAlpha,
		ZBeta:         zBeta,
		BaselineRate:  p1,
		TargetRate:    p2,
	}, nil
}
