package stats

import (
	"fmt"
	"math"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// Tail selects the alternative hypothesis of a proportion test.
type Tail int

const (
	// TwoSided tests p2 != p1.
	TwoSided Tail = iota
	// Greater tests p2 > p1.
	Greater
	// Less tests p2 < p1.
	Less
)

// ParseTail converts "two-sided", "greater" or "less".
func ParseTail(s string) (Tail, error) {
	switch s {
	case "", "two-sided", "two_sided", "two":
		return TwoSided, nil
	case "greater":
		return Greater, nil
	case "less":
		return Less, nil
	}
	return TwoSided, domain.NewValidationError("tail", fmt.Sprintf("unknown tail %q", s))
}

// ProportionTest is the outcome of a two-proportion z-test.
type ProportionTest struct {
	Z          float64
	PValue     float64
	PooledRate float64
	// Difference is rate2 - rate1.
	Difference float64
}

// TwoProportionTest compares x1/n1 (baseline) with x2/n2 using the pooled
// standard error. Either arm being empty yields ErrInsufficientData.
func TwoProportionTest(n1, x1, n2, x2 int64, tail Tail) (ProportionTest, error) {
	if n1 <= 0 || n2 <= 0 {
		return ProportionTest{}, domain.ErrInsufficientData
	}
	if x1 < 0 || x2 < 0 || x1 > n1 || x2 > n2 {
		return ProportionTest{}, domain.NewValidationError("conversions", "must be within 0..n")
	}

	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)
	pooled := float64(x1+x2) / float64(n1+n2)
	res := ProportionTest{PooledRate: pooled, Difference: p2 - p1, PValue: 1}

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		// Both arms all-converted or none converted: nothing to distinguish.
		return res, nil
	}

	res.Z = res.Difference / se
	switch tail {
	case Greater:
		res.PValue = NormalSurvival(res.Z)
	case Less:
		res.PValue = NormalCDF(res.Z)
	default:
		res.PValue = math.Min(1, 2*NormalSurvival(math.Abs(res.Z)))
	}
	return res, nil
}

// Interval is a closed range of rates.
type Interval struct {
	Lower float64
	Upper float64
}

// ConfidenceInterval returns the Wald interval of conversions/n clamped to [0,1].
func ConfidenceInterval(conversions, n int64, confidence float64) (Interval, error) {
	if n <= 0 {
		return Interval{}, domain.ErrInsufficientData
	}
	if confidence <= 0 || confidence >= 1 {
		return Interval{}, domain.NewValidationError("confidence", "must be between 0 and 1 (exclusive)")
	}
	rate := float64(conversions) / float64(n)
	z := InverseNormalCDF(1 - (1-confidence)/2)
	margin := z * math.Sqrt(rate*(1-rate)/float64(n))
	return Interval{
		Lower: clamp01(rate - margin),
		Upper: clamp01(rate + margin),
	}, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
