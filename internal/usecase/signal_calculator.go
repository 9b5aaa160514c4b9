package usecase

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"CryptoScanner/internal/domain/models"
	domsvc "CryptoScanner/internal/domain/service"
	applogger "CryptoScanner/pkg/logger"
)

// SignalParams are the externally configured knobs of the calculator:
// nothing here is hardcoded policy.
type SignalParams struct {
	Threshold      float64 // minimum |E[return]| (pct) for a directional signal
	MaxTokenReturn float64 // cap on |E[return]| per token (pct)
	Similarity     float64 // title word-overlap ratio for dedup
	DateWindowDays int     // scheduled-date tolerance for dedup
	WeightByTier   bool    // weight contributions by importance tier
}

// SignalCalculator folds estimated events into per-token signals with
// dedup of overlapping events and a traceable breakdown.
type SignalCalculator struct {
	params SignalParams
	l      *applogger.Logger
}

func NewSignalCalculator(params SignalParams, l *applogger.Logger) *SignalCalculator {
	return &SignalCalculator{params: params, l: l}
}

type eventReturn struct {
	eRet      float64
	bull      float64
	bear      float64
	confDelta float64
}

// eventExpectedReturn computes Σ p·impact for one event, with bull and
// bear bounds from the impact ranges. Returns ok=false when any outcome
// lacks a usable estimate; such events stay out of the signal and
// surface as unresolved through reporting instead.
func eventExpectedReturn(outs []models.Outcome) (eventReturn, bool) {
	if len(outs) == 0 {
		return eventReturn{}, false
	}
	var r eventReturn
	for _, o := range outs {
		if o.Probability == nil || o.ImpactPct == nil {
			return eventReturn{}, false
		}
		p, imp := *o.Probability, *o.ImpactPct
		if p < 0 || p > 1 {
			return eventReturn{}, false
		}
		r.eRet += p * imp
		r.bull += p * orElse(o.ImpactHigh, imp)
		r.bear += p * orElse(o.ImpactLow, imp)
		r.confDelta += (orElse(o.ProbabilityHigh, p) - orElse(o.ProbabilityLow, p)) / 2
	}
	r.confDelta /= float64(len(outs))
	return r, true
}

// Compute produces one Signal per token from the deduplicated events,
// sorted by absolute expected return.
func (c *SignalCalculator) Compute(events []models.EventOutcomes) []models.Signal {
	deduped := dedupEvents(events, c.params.Similarity, c.params.DateWindowDays)

	type contribution struct {
		dedupedEvent
		ret eventReturn
	}
	byToken := make(map[string][]contribution)
	for _, de := range deduped {
		ret, ok := eventExpectedReturn(de.Rep.Outcomes)
		if !ok {
			if c.l != nil {
				c.l.Warn("event skipped, incomplete estimates",
					applogger.String("event_id", de.Rep.Event.ID),
					applogger.String("symbol", de.Rep.Event.Symbol))
			}
			continue
		}
		byToken[de.Rep.Event.Symbol] = append(byToken[de.Rep.Event.Symbol], contribution{de, ret})
	}

	runID := uuid.New().String()
	runAt := time.Now().UTC()

	signals := make([]models.Signal, 0, len(byToken))
	for token, contribs := range byToken {
		var total, bull, bear, confSum float64
		evs := make([]models.EventContribution, 0, len(contribs))
		for _, cb := range contribs {
			w := 1.0
			if c.params.WeightByTier {
				w = models.ImportanceWeight(cb.Rep.Event.Importance)
			}
			total += w * cb.ret.eRet
			bull += w * cb.ret.bull
			bear += w * cb.ret.bear
			confSum += cb.ret.confDelta
			evs = append(evs, models.EventContribution{
				EventID:        cb.Rep.Event.ID,
				Title:          cb.Rep.Event.Title,
				Type:           cb.Rep.Event.Type,
				Importance:     cb.Rep.Event.Importance,
				ExpectedReturn: round4(w * cb.ret.eRet),
				MergedIDs:      cb.MergedIDs,
			})
		}

		limit := c.params.MaxTokenReturn
		capped := false
		if limit > 0 && (math.Abs(total) > limit || math.Abs(bull) > limit || math.Abs(bear) > limit) {
			capped = true
			total = clamp(total, limit)
			bull = clamp(bull, limit)
			bear = clamp(bear, limit)
		}

		class, strength := classify(total, c.params.Threshold)
		signals = append(signals, models.Signal{
			RunID:          runID,
			RunAt:          runAt,
			Symbol:         token,
			ExpectedReturn: round4(total),
			BullReturn:     round4(bull),
			BearReturn:     round4(bear),
			Class:          class,
			Strength:       strength,
			Capped:         capped,
			AvgConfidence:  round4(confSum / float64(len(contribs))),
			Events:         evs,
		})
	}

	sort.Slice(signals, func(i, j int) bool {
		return math.Abs(signals[i].ExpectedReturn) > math.Abs(signals[j].ExpectedReturn)
	})
	return signals
}

func classify(total, threshold float64) (models.SignalClass, models.SignalStrength) {
	switch {
	case total > threshold:
		if total > threshold*2 {
			return models.SignalLong, models.StrengthStrong
		}
		return models.SignalLong, models.StrengthModerate
	case total < -threshold:
		if total < -threshold*2 {
			return models.SignalShort, models.StrengthStrong
		}
		return models.SignalShort, models.StrengthModerate
	default:
		return models.SignalNeutral, models.StrengthNone
	}
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

func orElse(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

var _ domsvc.SignalCalculator = (*SignalCalculator)(nil)
