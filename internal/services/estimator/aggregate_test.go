package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedianUpperMiddle(t *testing.T) {
	assert.Equal(t, 0.5, median([]float64{0.5}))
	assert.Equal(t, 0.6, median([]float64{0.4, 0.6}), "even count takes the upper middle")
	assert.Equal(t, 0.5, median([]float64{0.6, 0.4, 0.5}))
	assert.Equal(t, 0.5, median([]float64{0.9, 0.4, 0.5, 0.1}))
}

func TestMedianDeterministic(t *testing.T) {
	vals := []float64{0.31, 0.29, 0.35}
	first := median(vals)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, median(vals))
	}
}

func TestAggregateProbsBands(t *testing.T) {
	s := SampleSet{}
	s.Add(map[string]float64{"A": 0.5, "B": 0.5})
	s.Add(map[string]float64{"A": 0.6, "B": 0.4})
	s.Add(map[string]float64{"A": 0.55, "B": 0.45})

	aggs := aggregateProbs(s)
	assert.Equal(t, 0.55, aggs["A"].Value)
	assert.Equal(t, 0.5, aggs["A"].Low)
	assert.Equal(t, 0.6, aggs["A"].High)
	assert.Equal(t, 3, aggs["A"].N)
}

func TestAggregateProbsSingleSampleSyntheticBand(t *testing.T) {
	s := SampleSet{}
	s.Add(map[string]float64{"A": 0.5})

	aggs := aggregateProbs(s)
	assert.Equal(t, 0.5, aggs["A"].Value)
	assert.InDelta(t, 0.35, aggs["A"].Low, 1e-9)
	assert.InDelta(t, 0.65, aggs["A"].High, 1e-9)
	assert.Equal(t, 1, aggs["A"].N)
}

func TestAggregateImpactsSingleSampleBand(t *testing.T) {
	s := SampleSet{}
	s.Add(map[string]float64{"A": 1.0})

	aggs := aggregateImpacts(s)
	// band floor is one percentage point
	assert.Equal(t, 0.0, aggs["A"].Low)
	assert.Equal(t, 2.0, aggs["A"].High)
}

func TestNormalizeAggsWithinToleranceUntouched(t *testing.T) {
	aggs := map[string]Agg{
		"A": {Value: 0.6}, "B": {Value: 0.25}, "C": {Value: 0.155},
	}
	normalizeAggs(aggs, 0.01)
	assert.Equal(t, 0.6, aggs["A"].Value, "sum 1.005 is inside the tolerance band")
}

func TestNormalizeAggsRescales(t *testing.T) {
	aggs := map[string]Agg{
		"A": {Value: 0.6}, "B": {Value: 0.3}, "C": {Value: 0.3},
	}
	normalizeAggs(aggs, 0.01)
	total := aggs["A"].Value + aggs["B"].Value + aggs["C"].Value
	assert.InDelta(t, 1.0, total, 0.001)
	assert.InDelta(t, 0.5, aggs["A"].Value, 0.001)
}
