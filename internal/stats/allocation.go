package stats

import (
	"math"
	"sort"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// Allocation bounds keep every arm receiving some traffic.
const (
	MinAllocation = 10
	MaxAllocation = 90
)

// Allocate distributes 100 percentage points across variants in proportion to
// their conversion rates, with each arm held within [minPct, maxPct]. Equal
// rates (including all zero) produce an even split.
func Allocate(rates map[string]float64, minPct, maxPct int) domain.TrafficSplit {
	names := make([]string, 0, len(rates))
	for name := range rates {
		names = append(names, name)
	}
	sort.Strings(names)

	switch len(names) {
	case 0:
		return domain.TrafficSplit{}
	case 1:
		return domain.TrafficSplit{names[0]: 100}
	}

	if allEqual(names, rates) {
		return domain.EvenSplit(names)
	}

	lo, hi := float64(minPct), float64(maxPct)
	if lo*float64(len(names)) > 100 {
		lo = 100 / float64(len(names))
	}
	if hi*float64(len(names)) < 100 {
		hi = 100 / float64(len(names))
	}

	shares := make(map[string]float64, len(names))
	fixed := make(map[string]bool, len(names))
	for {
		var free []string
		budget := 100.0
		for _, n := range names {
			if fixed[n] {
				budget -= shares[n]
			} else {
				free = append(free, n)
			}
		}
		if len(free) == 0 {
			break
		}

		rateSum := 0.0
		for _, n := range free {
			rateSum += rates[n]
		}
		for _, n := range free {
			if rateSum == 0 {
				shares[n] = budget / float64(len(free))
			} else {
				shares[n] = budget * rates[n] / rateSum
			}
		}

		// Pin the lower violators first; pinning both sides at once can overshoot.
		var pinned bool
		for _, n := range free {
			if shares[n] < lo {
				shares[n], fixed[n], pinned = lo, true, true
			}
		}
		if !pinned {
			for _, n := range free {
				if shares[n] > hi {
					shares[n], fixed[n], pinned = hi, true, true
				}
			}
		}
		if !pinned {
			break
		}
	}

	return roundLargestRemainder(names, shares)
}

func allEqual(names []string, rates map[string]float64) bool {
	first := rates[names[0]]
	for _, n := range names[1:] {
		if math.Abs(rates[n]-first) > 1e-12 {
			return false
		}
	}
	return true
}

// roundLargestRemainder converts shares to integers summing to 100.
func roundLargestRemainder(names []string, shares map[string]float64) domain.TrafficSplit {
	split := make(domain.TrafficSplit, len(names))
	total := 0
	order := make([]string, len(names))
	copy(order, names)
	for _, n := range names {
		split[n] = int(math.Floor(shares[n] + 1e-9))
		total += split[n]
	}
	sort.SliceStable(order, func(i, j int) bool {
		ri := shares[order[i]] - math.Floor(shares[order[i]]+1e-9)
		rj := shares[order[j]] - math.Floor(shares[order[j]]+1e-9)
		return ri > rj
	})
	for i := 0; total < 100; i = (i + 1) % len(order) {
		split[order[i]]++
		total++
	}
	for i := len(order) - 1; total > 100; i = (i - 1 + len(order)) % len(order) {
		if split[order[i]] > 0 {
			split[order[i]]--
			total--
		}
	}
	return split
}
