package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoScanner/internal/domain/models"
)

func testParams() SignalParams {
	return SignalParams{
		Threshold:      3.0,
		MaxTokenReturn: 15.0,
		Similarity:     0.6,
		DateWindowDays: 3,
		WeightByTier:   true,
	}
}

func fp(v float64) *float64 { return &v }

func estimatedOutcome(eventID, key string, cat models.OutcomeCategory, p, imp float64) models.Outcome {
	return models.Outcome{
		EventID:     eventID,
		Key:         key,
		Category:    cat,
		Probability: fp(p),
		ImpactPct:   fp(imp),
		Status:      models.OutcomeEstimated,
	}
}

func testEvent(id, symbol, title string, typ models.EventType, imp models.Importance, at time.Time) models.Event {
	return models.Event{
		ID:          id,
		Symbol:      symbol,
		Title:       title,
		Type:        typ,
		Importance:  imp,
		ScheduledAt: &at,
	}
}

func TestComputeSingleEventLong(t *testing.T) {
	calc := NewSignalCalculator(testParams(), nil)

	at := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	ev := testEvent("ev1", "ARB", "Binance lists ARB perpetuals", models.EventListing, models.ImportanceHigh, at)
	in := []models.EventOutcomes{{
		Event: ev,
		Outcomes: []models.Outcome{
			estimatedOutcome("ev1", "confirmed", models.CategoryPositive, 0.60, 8.0),
			estimatedOutcome("ev1", "delayed", models.CategoryNeutral, 0.25, 0.0),
			estimatedOutcome("ev1", "cancelled", models.CategoryCancelled, 0.15, -5.0),
		},
	}}

	signals := calc.Compute(in)
	require.Len(t, signals, 1)

	s := signals[0]
	assert.Equal(t, "ARB", s.Symbol)
	assert.InDelta(t, 4.05, s.ExpectedReturn, 1e-9)
	assert.Equal(t, models.SignalLong, s.Class)
	assert.Equal(t, models.StrengthModerate, s.Strength)
	assert.False(t, s.Capped)
	require.Len(t, s.Events, 1)
	assert.Equal(t, "ev1", s.Events[0].EventID)
	assert.NotEmpty(t, s.RunID)
}

func TestComputeImportanceWeighting(t *testing.T) {
	calc := NewSignalCalculator(testParams(), nil)

	at := time.Now().UTC()
	in := []models.EventOutcomes{{
		Event: testEvent("ev1", "SOL", "Protocol burn scheduled", models.EventBurn, models.ImportanceLow, at),
		Outcomes: []models.Outcome{
			estimatedOutcome("ev1", "done", models.CategoryPositive, 1.0, 10.0),
		},
	}}

	signals := calc.Compute(in)
	require.Len(t, signals, 1)
	assert.InDelta(t, 5.0, signals[0].ExpectedReturn, 1e-9)
}

func TestComputeShortAndStrong(t *testing.T) {
	calc := NewSignalCalculator(testParams(), nil)

	at := time.Now().UTC()
	in := []models.EventOutcomes{{
		Event: testEvent("ev1", "APT", "300M token unlock", models.EventUnlock, models.ImportanceHigh, at),
		Outcomes: []models.Outcome{
			estimatedOutcome("ev1", "full", models.CategoryNegative, 0.8, -10.0),
			estimatedOutcome("ev1", "partial", models.CategoryNeutral, 0.2, -1.0),
		},
	}}

	signals := calc.Compute(in)
	require.Len(t, signals, 1)
	assert.Equal(t, models.SignalShort, signals[0].Class)
	assert.Equal(t, models.StrengthStrong, signals[0].Strength)
}

func TestComputeCapsTokenReturn(t *testing.T) {
	calc := NewSignalCalculator(testParams(), nil)

	at := time.Now().UTC()
	in := []models.EventOutcomes{
		{
			Event: testEvent("ev1", "DOGE", "Major exchange listing", models.EventListing, models.ImportanceHigh, at),
			Outcomes: []models.Outcome{
				estimatedOutcome("ev1", "yes", models.CategoryPositive, 0.9, 20.0),
				estimatedOutcome("ev1", "no", models.CategoryCancelled, 0.1, -2.0),
			},
		},
		{
			Event: testEvent("ev2", "DOGE", "Payments partnership announced", models.EventPartnership, models.ImportanceHigh, at),
			Outcomes: []models.Outcome{
				estimatedOutcome("ev2", "signed", models.CategoryPositive, 0.8, 12.0),
				estimatedOutcome("ev2", "dropped", models.CategoryCancelled, 0.2, -3.0),
			},
		},
	}

	signals := calc.Compute(in)
	require.Len(t, signals, 1)
	assert.True(t, signals[0].Capped)
	assert.InDelta(t, 15.0, signals[0].ExpectedReturn, 1e-9)
	assert.Len(t, signals[0].Events, 2)
}

func TestComputeSkipsUnestimatedEvents(t *testing.T) {
	calc := NewSignalCalculator(testParams(), nil)

	at := time.Now().UTC()
	pending := models.Outcome{EventID: "ev1", Key: "a", Status: models.OutcomePending}
	in := []models.EventOutcomes{
		{
			Event:    testEvent("ev1", "ETH", "Client fork window", models.EventFork, models.ImportanceHigh, at),
			Outcomes: []models.Outcome{pending},
		},
		{
			Event: testEvent("ev2", "ETH", "Mainnet launch of rollup", models.EventLaunch, models.ImportanceHigh, at),
			Outcomes: []models.Outcome{
				estimatedOutcome("ev2", "live", models.CategoryPositive, 1.0, 4.0),
			},
		},
	}

	signals := calc.Compute(in)
	require.Len(t, signals, 1)
	require.Len(t, signals[0].Events, 1)
	assert.Equal(t, "ev2", signals[0].Events[0].EventID)
	assert.InDelta(t, 4.0, signals[0].ExpectedReturn, 1e-9)
}

func TestComputeDedupCollapsesNearDuplicates(t *testing.T) {
	calc := NewSignalCalculator(testParams(), nil)

	at1 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	at2 := at1.Add(48 * time.Hour)
	in := []models.EventOutcomes{
		{
			Event: testEvent("ev1", "ARB", "Binance will list ARB on April 1", models.EventListing, models.ImportanceMedium, at1),
			Outcomes: []models.Outcome{
				estimatedOutcome("ev1", "yes", models.CategoryPositive, 1.0, 6.0),
			},
		},
		{
			Event: testEvent("ev2", "ARB", "Binance to list ARB April 1 2026", models.EventListing, models.ImportanceHigh, at2),
			Outcomes: []models.Outcome{
				estimatedOutcome("ev2", "yes", models.CategoryPositive, 1.0, 8.0),
			},
		},
	}

	signals := calc.Compute(in)
	require.Len(t, signals, 1)
	require.Len(t, signals[0].Events, 1)

	// the higher-importance variant represents the pair
	c := signals[0].Events[0]
	assert.Equal(t, "ev2", c.EventID)
	assert.Equal(t, []string{"ev1"}, c.MergedIDs)
	assert.InDelta(t, 8.0, signals[0].ExpectedReturn, 1e-9)
}

func TestComputeSortsByAbsoluteReturn(t *testing.T) {
	calc := NewSignalCalculator(testParams(), nil)

	at := time.Now().UTC()
	in := []models.EventOutcomes{
		{
			Event: testEvent("ev1", "BTC", "ETF inflow milestone", models.EventOther, models.ImportanceHigh, at),
			Outcomes: []models.Outcome{
				estimatedOutcome("ev1", "a", models.CategoryPositive, 1.0, 2.0),
			},
		},
		{
			Event: testEvent("ev2", "LUNA", "Exchange delisting notice", models.EventDelisting, models.ImportanceHigh, at),
			Outcomes: []models.Outcome{
				estimatedOutcome("ev2", "a", models.CategoryNegative, 1.0, -9.0),
			},
		},
	}

	signals := calc.Compute(in)
	require.Len(t, signals, 2)
	assert.Equal(t, "LUNA", signals[0].Symbol)
	assert.Equal(t, "BTC", signals[1].Symbol)
	assert.Equal(t, signals[0].RunID, signals[1].RunID)
}

func TestEventExpectedReturnBounds(t *testing.T) {
	out := models.Outcome{
		EventID:         "ev1",
		Key:             "a",
		Probability:     fp(0.5),
		ProbabilityLow:  fp(0.4),
		ProbabilityHigh: fp(0.6),
		ImpactPct:       fp(10.0),
		ImpactLow:       fp(6.0),
		ImpactHigh:      fp(14.0),
	}
	r, ok := eventExpectedReturn([]models.Outcome{out})
	require.True(t, ok)
	assert.InDelta(t, 5.0, r.eRet, 1e-9)
	assert.InDelta(t, 7.0, r.bull, 1e-9)
	assert.InDelta(t, 3.0, r.bear, 1e-9)
}
