// Package stats holds the pure numeric kernels of the experimentation engine:
// normal quantiles, proportion tests, Bayesian posterior comparison, power
// analysis, the sequential stopping bound and adaptive allocation.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Coefficients of Acklam's rational approximation to the normal quantile.
var (
	acklamA = [6]float64{
		-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00,
	}
	acklamB = [5]float64{
		-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01,
	}
	acklamC = [6]float64{
		-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00,
	}
	acklamD = [4]float64{
		7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00,
	}
)

const acklamLow = 0.02425

// InverseNormalCDF returns z such that Φ(z) = p for the standard normal.
// It returns -Inf at 0, +Inf at 1 and NaN outside [0,1].
func InverseNormalCDF(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0 || p > 1:
		return math.NaN()
	case p == 0:
		return math.Inf(-1)
	case p == 1:
		return math.Inf(1)
	case p > 0.5:
		// Evaluate on the lower half so the result is odd around 0.5.
		return -InverseNormalCDF(1 - p)
	}

	var x float64
	if p < acklamLow {
		q := math.Sqrt(-2 * math.Log(p))
		x = (((((acklamC[0]*q+acklamC[1])*q+acklamC[2])*q+acklamC[3])*q+acklamC[4])*q + acklamC[5]) /
			((((acklamD[0]*q+acklamD[1])*q+acklamD[2])*q+acklamD[3])*q + 1)
	} else {
		q := p - 0.5
		r := q * q
		x = (((((acklamA[0]*r+acklamA[1])*r+acklamA[2])*r+acklamA[3])*r+acklamA[4])*r + acklamA[5]) * q /
			(((((acklamB[0]*r+acklamB[1])*r+acklamB[2])*r+acklamB[3])*r+acklamB[4])*r + 1)
	}

	// One Halley step brings the approximation to full double precision.
	e := 0.5*math.Erfc(-x/math.Sqrt2) - p
	u := e * math.Sqrt(2*math.Pi) * math.Exp(x*x/2)
	return x - u/(1+x*u/2)
}

// NormalCDF is the standard normal cumulative distribution function.
func NormalCDF(z float64) float64 {
	return distuv.UnitNormal.CDF(z)
}

// NormalSurvival is 1 - Φ(z), computed without cancellation in the upper tail.
func NormalSurvival(z float64) float64 {
	return distuv.UnitNormal.Survival(z)
}
