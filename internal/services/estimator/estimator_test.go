package estimator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoScanner/internal/domain/models"
	"CryptoScanner/internal/service/inference"
	"CryptoScanner/internal/services/outcomes"
)

// fakeAI answers probability and impact prompts from separate scripts;
// once a script runs out its last entry repeats. An entry of "FAIL"
// simulates an exhausted provider, "GARBAGE" an unparseable response.
type fakeAI struct {
	probScript []string
	impScript  []string
	probCalls  int
	impCalls   int
}

func (f *fakeAI) Infer(_ context.Context, req inference.Request) (string, error) {
	var script []string
	var idx int
	if strings.Contains(req.Prompt, "price impact") {
		script = f.impScript
		idx = f.impCalls
		f.impCalls++
	} else {
		script = f.probScript
		idx = f.probCalls
		f.probCalls++
	}
	if len(script) == 0 {
		return "", &inference.Error{Kind: inference.KindNoProviders, Provider: "none"}
	}
	if idx >= len(script) {
		idx = len(script) - 1
	}
	switch script[idx] {
	case "FAIL":
		return "", &inference.Error{Kind: inference.KindExhausted, Provider: "all"}
	case "GARBAGE":
		return "no json in sight", nil
	default:
		return script[idx], nil
	}
}

func listingEvent() *models.Event {
	return &models.Event{
		ID:         models.EventID("XYZ", models.EventListing, "XYZ listing on major exchange"),
		Symbol:     "XYZ",
		Title:      "XYZ listing on major exchange",
		Type:       models.EventListing,
		Importance: models.ImportanceHigh,
	}
}

func listingSkeleton(t *testing.T, ev *models.Event) []models.Outcome {
	t.Helper()
	tpl := outcomes.Templates[models.EventListing]
	return tpl.Instantiate(ev)
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestEstimateHappyPath(t *testing.T) {
	ai := &fakeAI{
		probScript: []string{`{"A":0.55,"B":0.25,"C":0.12,"D":0.08}`},
		impScript:  []string{`{"A":8.0,"B":0.5,"C":-4.0,"D":-6.0}`},
	}
	ev := listingEvent()
	e := NewEstimator(ai)

	filled := e.Estimate(context.Background(), ev, listingSkeleton(t, ev))
	require.Len(t, filled, 4)

	sum := 0.0
	for _, o := range filled {
		require.Equal(t, models.OutcomeEstimated, o.Status)
		require.NotNil(t, o.Probability)
		require.NotNil(t, o.ImpactPct)
		sum += *o.Probability
	}
	assert.InDelta(t, 1.0, sum, 0.01, "probabilities must sum to 1 within tolerance")
	assert.Equal(t, models.ConfidenceHigh, filled[0].Confidence,
		"identical samples have zero spread")
	assert.Equal(t, 3, ai.probCalls, "one sample per temperature")
	assert.Equal(t, 3, ai.impCalls)
}

func TestEstimateAllNegativeImpactFallsBackToTemplate(t *testing.T) {
	// every sample and the re-sample pass insist on an all-negative vector
	ai := &fakeAI{
		probScript: []string{`{"A":0.4,"B":0.3,"C":0.2,"D":0.1}`},
		impScript:  []string{`{"A":-2.0,"B":-1.0,"C":-4.0,"D":-6.0}`},
	}
	ev := listingEvent()
	e := NewEstimator(ai)

	filled := e.Estimate(context.Background(), ev, listingSkeleton(t, ev))
	require.Len(t, filled, 4)

	neg := 0
	for _, o := range filled {
		require.Equal(t, models.OutcomeEstimated, o.Status)
		if *o.ImpactPct < 0 {
			neg++
		}
	}
	assert.Less(t, neg, 4, "an all-negative vector must not survive")
	assert.GreaterOrEqual(t, *filled[0].ImpactPct, 0.0,
		"the template's positive outcome must have non-negative impact")
	assert.Greater(t, ai.impCalls, 3, "a re-sample pass must have run")
}

func TestEstimateReducedQuorumLowConfidence(t *testing.T) {
	// five failures, then one clean sample in the extra round
	ai := &fakeAI{
		probScript: append(repeat("GARBAGE", 5), `{"A":0.5,"B":0.2,"C":0.2,"D":0.1}`),
		impScript:  []string{`{"A":8.0,"B":0.0,"C":-4.0,"D":-6.0}`},
	}
	ev := listingEvent()
	e := NewEstimator(ai)

	filled := e.Estimate(context.Background(), ev, listingSkeleton(t, ev))
	for _, o := range filled {
		require.Equal(t, models.OutcomeEstimated, o.Status)
		assert.Equal(t, models.ConfidenceLow, o.Confidence,
			"reduced quorum must read as low confidence")
	}
	assert.Equal(t, 6, ai.probCalls, "extra retry round covers the missing samples")
}

func TestWithExtraRoundsBoundsRetries(t *testing.T) {
	ai := &fakeAI{
		probScript: []string{"GARBAGE"},
		impScript:  []string{"GARBAGE"},
	}
	ev := listingEvent()
	e := NewEstimator(ai, WithExtraRounds(2))

	filled := e.Estimate(context.Background(), ev, listingSkeleton(t, ev))
	for _, o := range filled {
		require.Equal(t, models.OutcomeUnresolved, o.Status)
	}
	assert.Equal(t, 9, ai.probCalls, "three temperatures per round across three rounds")
	assert.Equal(t, 9, ai.impCalls)
}

func TestEstimateExhaustedProvidersMarksUnresolved(t *testing.T) {
	ai := &fakeAI{
		probScript: []string{"FAIL"},
		impScript:  []string{"FAIL"},
	}
	ev := listingEvent()
	e := NewEstimator(ai)

	filled := e.Estimate(context.Background(), ev, listingSkeleton(t, ev))
	require.Len(t, filled, 4)
	for _, o := range filled {
		assert.Equal(t, models.OutcomeUnresolved, o.Status)
		assert.NotEmpty(t, o.FailReason)
		assert.Nil(t, o.Probability)
	}
}

func TestEstimateInvalidOutcomeCount(t *testing.T) {
	ev := listingEvent()
	e := NewEstimator(&fakeAI{})
	skel := listingSkeleton(t, ev)[:2]

	filled := e.Estimate(context.Background(), ev, skel)
	for _, o := range filled {
		assert.Equal(t, models.OutcomeUnresolved, o.Status)
	}
}

func TestViolatesSignLogic(t *testing.T) {
	ev := listingEvent()
	skel := listingSkeleton(t, ev)

	allNeg := map[string]Agg{
		"A": {Value: -1}, "B": {Value: -2}, "C": {Value: -3}, "D": {Value: -4},
	}
	assert.True(t, violatesSignLogic(skel, allNeg))

	allPos := map[string]Agg{
		"A": {Value: 1}, "B": {Value: 2}, "C": {Value: 3}, "D": {Value: 4},
	}
	assert.True(t, violatesSignLogic(skel, allPos))

	// positive-category outcome with negative impact
	mismatch := map[string]Agg{
		"A": {Value: -1}, "B": {Value: 0}, "C": {Value: -3}, "D": {Value: 4},
	}
	assert.True(t, violatesSignLogic(skel, mismatch))

	// neutral branch far from zero
	wideNeutral := map[string]Agg{
		"A": {Value: 5}, "B": {Value: 9}, "C": {Value: -3}, "D": {Value: -4},
	}
	assert.True(t, violatesSignLogic(skel, wideNeutral))

	healthy := map[string]Agg{
		"A": {Value: 8}, "B": {Value: 0.5}, "C": {Value: -4}, "D": {Value: -6},
	}
	assert.False(t, violatesSignLogic(skel, healthy))
}

func TestClampProbVectorNormalizes(t *testing.T) {
	vec := clampProbVector(map[string]float64{"A": 0.95, "B": 0.01, "C": 0.1})
	sum := 0.0
	for _, v := range vec {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 0.001)
	assert.Less(t, vec["A"], 0.95, "ceiling clamp applies before rescale")
}
