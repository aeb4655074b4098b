package stats

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// DefaultDraws is the Monte Carlo sample count used by PosteriorCompare.
const DefaultDraws = 20000

// Arm is the observed outcome of one variant.
type Arm struct {
	Name        string
	Conversions int64
	Trials      int64
}

// Posterior summarizes one arm's Beta posterior relative to the others.
type Posterior struct {
	Name            string
	Alpha           float64
	Beta            float64
	Mean            float64
	ProbabilityBest float64
	ExpectedLoss    float64
	Credible        Interval
}

// PosteriorOptions tunes PosteriorCompare.
type PosteriorOptions struct {
	Draws         int
	CredibleLevel float64
}

func (o PosteriorOptions) withDefaults() PosteriorOptions {
	if o.Draws <= 0 {
		o.Draws = DefaultDraws
	}
	if o.CredibleLevel <= 0 || o.CredibleLevel >= 1 {
		o.CredibleLevel = 0.95
	}
	return o
}

// PosteriorCompare models each arm as Beta(conversions+1, trials-conversions+1)
// and estimates, by sampling, the probability that each arm has the highest
// rate and the expected loss of choosing it over the best arm.
// Arms with no trials keep the uniform prior.
func PosteriorCompare(arms []Arm, opts PosteriorOptions) ([]Posterior, error) {
	opts = opts.withDefaults()
	if len(arms) == 0 {
		return nil, nil
	}

	dists := make([]distuv.Beta, len(arms))
	out := make([]Posterior, len(arms))
	for i, a := range arms {
		if a.Trials < 0 || a.Conversions < 0 || a.Conversions > a.Trials {
			return nil, domain.NewValidationError("arms", fmt.Sprintf("arm %q has %d conversions out of %d", a.Name, a.Conversions, a.Trials))
		}
		alpha := float64(a.Conversions) + 1
		beta := float64(a.Trials-a.Conversions) + 1
		dists[i] = distuv.Beta{Alpha: alpha, Beta: beta}
		tail := (1 - opts.CredibleLevel) / 2
		out[i] = Posterior{
			Name:  a.Name,
			Alpha: alpha,
			Beta:  beta,
			Mean:  dists[i].Mean(),
			Credible: Interval{
				Lower: dists[i].Quantile(tail),
				Upper: dists[i].Quantile(1 - tail),
			},
		}
	}

	if len(arms) == 1 {
		out[0].ProbabilityBest = 1
		return out, nil
	}

	wins := make([]int, len(arms))
	loss := make([]float64, len(arms))
	sample := make([]float64, len(arms))
	for d := 0; d < opts.Draws; d++ {
		best := 0
		for i := range dists {
			sample[i] = dists[i].Rand()
			if sample[i] > sample[best] {
				best = i
			}
		}
		wins[best]++
		for i := range sample {
			loss[i] += sample[best] - sample[i]
		}
	}

	for i := range out {
		out[i].ProbabilityBest = float64(wins[i]) / float64(opts.Draws)
		out[i].ExpectedLoss = loss[i] / float64(opts.Draws)
	}
	return out, nil
}
