package outcomes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoScanner/internal/domain/models"
	"CryptoScanner/internal/service/inference"
)

type scriptedAI struct {
	responses []string
	err       error
	calls     int
	reqs      []inference.Request
}

func (s *scriptedAI) Infer(_ context.Context, req inference.Request) (string, error) {
	s.calls++
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return "", s.err
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

func testEvent(typ models.EventType) *models.Event {
	return &models.Event{
		ID:     models.EventID("ARB", typ, "ARB something happens"),
		Symbol: "ARB",
		Title:  "ARB something happens",
		Type:   typ,
	}
}

func TestGenerateTemplateTypesSkipInference(t *testing.T) {
	ai := &scriptedAI{err: errors.New("must not be called")}
	g := NewGenerator(ai, nil, nil)

	for _, typ := range []models.EventType{
		models.EventListing, models.EventLaunch, models.EventBurn,
		models.EventUnlock, models.EventFork, models.EventPartnership,
		models.EventAirdrop,
	} {
		out, err := g.Generate(context.Background(), testEvent(typ))
		require.NoError(t, err, "type %s", typ)
		require.NoError(t, ValidateSkeleton(out), "type %s", typ)
		for _, o := range out {
			assert.True(t, o.IsTemplate)
			assert.Nil(t, o.Probability)
			assert.Nil(t, o.ImpactPct)
		}
	}
	assert.Equal(t, 0, ai.calls)
}

func TestGenerateTemplateSubstitution(t *testing.T) {
	g := NewGenerator(&scriptedAI{}, nil, nil)
	ev := testEvent(models.EventListing)
	out, err := g.Generate(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, "A", out[0].Key)
	assert.Equal(t, models.CategoryPositive, out[0].Category)
	assert.Equal(t, models.CategoryCancelled, out[3].Category)
	for _, o := range out {
		assert.Equal(t, ev.ID, o.EventID)
	}
}

func TestGenerateAIPath(t *testing.T) {
	ai := &scriptedAI{responses: []string{
		`[{"key":"A","text":"Vote passes with high turnout","category":"positive"},
		  {"key":"B","text":"Vote passes narrowly","category":"neutral"},
		  {"key":"C","text":"Vote fails","category":"negative"}]`,
	}}
	g := NewGenerator(ai, nil, nil)

	out, err := g.Generate(context.Background(), testEvent(models.EventGovernance))
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 1, ai.calls)
	assert.False(t, out[0].IsTemplate)
	assert.NoError(t, ValidateSkeleton(out))
}

func TestGenerateAIRetriesThenGenericFallback(t *testing.T) {
	// all responses fail validation: duplicate keys
	ai := &scriptedAI{responses: []string{
		`[{"key":"A","text":"x","category":"positive"},
		  {"key":"A","text":"y","category":"neutral"},
		  {"key":"C","text":"z","category":"negative"}]`,
	}}
	g := NewGenerator(ai, nil, nil)

	out, err := g.Generate(context.Background(), testEvent(models.EventGovernance))
	require.NoError(t, err)
	assert.Equal(t, 3, ai.calls, "AI tier gets three attempts")
	require.Len(t, out, 4)
	assert.True(t, out[0].IsTemplate, "generic fallback is template-based")
	assert.NoError(t, ValidateSkeleton(out))
}

func TestGenerateRetriesAreFreshDraws(t *testing.T) {
	ai := &scriptedAI{responses: []string{
		"no json in sight",
		`[{"key":"A","text":"Deal confirmed","category":"positive"},
		  {"key":"B","text":"Deal delayed","category":"neutral"},
		  {"key":"C","text":"Deal cancelled","category":"cancelled"}]`,
	}}
	g := NewGenerator(ai, nil, nil)

	out, err := g.Generate(context.Background(), testEvent(models.EventGovernance))
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Len(t, ai.reqs, 2)

	assert.Greater(t, ai.reqs[1].Temperature, ai.reqs[0].Temperature,
		"a retry must not replay the failed draw")
	assert.NotEqual(t, ai.reqs[0].Prompt, ai.reqs[1].Prompt)
	assert.Contains(t, ai.reqs[1].Prompt, "ONLY the JSON array")
}

func TestGenerateInferenceErrorFallsBack(t *testing.T) {
	ai := &scriptedAI{err: &inference.Error{Kind: inference.KindExhausted, Provider: "all"}}
	g := NewGenerator(ai, nil, nil)

	out, err := g.Generate(context.Background(), testEvent(models.EventOther))
	require.NoError(t, err, "generator must never fail for a well-formed event")
	assert.NoError(t, ValidateSkeleton(out))
}

func TestGenerateMalformedEvent(t *testing.T) {
	g := NewGenerator(&scriptedAI{}, nil, nil)
	_, err := g.Generate(context.Background(), &models.Event{Type: models.EventOther})
	require.ErrorIs(t, err, ErrMalformedEvent)
}

func TestValidateSkeleton(t *testing.T) {
	mk := func(cats ...models.OutcomeCategory) []models.Outcome {
		out := make([]models.Outcome, len(cats))
		for i, c := range cats {
			out[i] = models.Outcome{Key: string(rune('A' + i)), Label: "x", Category: c}
		}
		return out
	}

	assert.NoError(t, ValidateSkeleton(mk(models.CategoryPositive, models.CategoryNeutral, models.CategoryNegative)))
	assert.NoError(t, ValidateSkeleton(mk(models.CategoryPositive, models.CategoryNeutral, models.CategoryNegative, models.CategoryCancelled)))
	assert.Error(t, ValidateSkeleton(mk(models.CategoryPositive, models.CategoryNegative)), "too few")
	assert.Error(t, ValidateSkeleton(mk(models.CategoryNeutral, models.CategoryNeutral, models.CategoryNegative)), "no positive")
	assert.Error(t, ValidateSkeleton(mk(models.CategoryPositive, models.CategoryNeutral, models.CategoryNeutral)), "no downside")
}

func TestDefaultImpactSigns(t *testing.T) {
	assert.Positive(t, DefaultImpact(models.CategoryPositive))
	assert.Zero(t, DefaultImpact(models.CategoryNeutral))
	assert.Negative(t, DefaultImpact(models.CategoryNegative))
	assert.Negative(t, DefaultImpact(models.CategoryCancelled))
}

func TestEventIDStable(t *testing.T) {
	a := models.EventID("arb", models.EventListing, " ARB lists on X ")
	b := models.EventID("ARB", models.EventListing, "arb lists on x")
	assert.Equal(t, a, b, "id must be case and whitespace insensitive")
	_ = time.Now
}
