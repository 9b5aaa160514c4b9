package estimator

import (
	"math"
	"sort"
)

// SampleSet collects the raw numeric samples gathered for one event
// across temperature settings, keyed by outcome key. It lives only for
// the duration of one aggregation and is never persisted.
type SampleSet map[string][]float64

// Add appends one sample vector (one value per outcome key).
func (s SampleSet) Add(vec map[string]float64) {
	for k, v := range vec {
		s[k] = append(s[k], v)
	}
}

// Count reports the number of samples recorded for key.
func (s SampleSet) Count(key string) int { return len(s[key]) }

// Agg is the robust per-outcome aggregate of a sample set.
type Agg struct {
	Value float64 // median of surviving samples
	Low   float64
	High  float64
	N     int
}

// median returns the upper-middle element for even counts: for a fixed
// sample multiset the result is deterministic. vals must be non-empty.
func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

// aggregateProbs folds probability samples into medians with observed
// low/high bands. A lone sample gets a synthetic ±30% band capped at
// the clamp ceiling.
func aggregateProbs(s SampleSet) map[string]Agg {
	out := make(map[string]Agg, len(s))
	for k, vals := range s {
		if len(vals) == 0 {
			continue
		}
		if len(vals) == 1 {
			v := vals[0]
			out[k] = Agg{
				Value: v,
				Low:   round4(v * 0.7),
				High:  round4(math.Min(v*1.3, probCeil)),
				N:     1,
			}
			continue
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		out[k] = Agg{
			Value: sorted[len(sorted)/2],
			Low:   round4(sorted[0]),
			High:  round4(sorted[len(sorted)-1]),
			N:     len(sorted),
		}
	}
	return out
}

// aggregateImpacts folds impact samples into medians with observed
// low/high bands. A lone sample gets a band of max(30% of magnitude, 1pt).
func aggregateImpacts(s SampleSet) map[string]Agg {
	out := make(map[string]Agg, len(s))
	for k, vals := range s {
		if len(vals) == 0 {
			continue
		}
		if len(vals) == 1 {
			v := vals[0]
			d := math.Max(math.Abs(v)*0.3, 1.0)
			out[k] = Agg{Value: round2(v), Low: round2(v - d), High: round2(v + d), N: 1}
			continue
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		out[k] = Agg{
			Value: round2(sorted[len(sorted)/2]),
			Low:   round2(sorted[0]),
			High:  round2(sorted[len(sorted)-1]),
			N:     len(sorted),
		}
	}
	return out
}

// normalizeAggs rescales aggregated probabilities proportionally when
// their sum drifts outside [1-tolerance, 1+tolerance].
func normalizeAggs(aggs map[string]Agg, tolerance float64) {
	total := 0.0
	for _, a := range aggs {
		total += a.Value
	}
	if total <= 0 || math.Abs(total-1.0) <= tolerance {
		return
	}
	for k, a := range aggs {
		a.Value = round4(a.Value / total)
		aggs[k] = a
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
