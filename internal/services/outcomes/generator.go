package outcomes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"CryptoScanner/internal/domain/models"
	domrepo "CryptoScanner/internal/domain/repository"
	"CryptoScanner/internal/service/inference"
	"CryptoScanner/internal/services/parse"
	applogger "CryptoScanner/pkg/logger"
)

// ErrMalformedEvent marks events the generator cannot work with at all:
// missing symbol or title. Everything else ends in a usable skeleton.
var ErrMalformedEvent = errors.New("outcomes: malformed event")

const (
	aiAttempts  = 3
	aiMaxTokens = 500
)

// skeletonTemps holds the sampling temperature per attempt; retries
// sample hotter than the failed draw.
var skeletonTemps = [aiAttempts]float64{0.1, 0.4, 0.7}

const skeletonPrompt = `You design prediction-market style outcome sets for crypto token events.

Event:
- token: {coin_symbol}
- type: {event_type}
- title: {title}
- date: {date_event}

Write 3-4 mutually exclusive, collectively exhaustive outcomes for this event.
Rules:
- each outcome has "key" (single letter A-D, unique), "text" (short, under 100 chars), "category"
- category is exactly one of: positive, neutral, negative, cancelled
- at least one positive outcome and at least one negative or cancelled outcome
- outcomes must not overlap and together must cover every possible resolution

Respond with ONLY a JSON array, no prose:
[{"key":"A","text":"...","category":"positive"}, ...]`

type skeletonItem struct {
	Key      string `json:"key"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

// Generator builds MECE outcome skeletons: canonical templates for the
// known event types, an AI-authored skeleton for the rest, and the
// generic fallback when the AI path fails.
type Generator struct {
	ai      inference.Service
	l       *applogger.Logger
	metrics domrepo.Metrics
}

func NewGenerator(ai inference.Service, l *applogger.Logger, metrics domrepo.Metrics) *Generator {
	return &Generator{ai: ai, l: l, metrics: metrics}
}

// Generate returns the ordered outcome skeleton for an event. For a
// well-formed event it never fails: the generic template backstops
// every AI or parse failure.
func (g *Generator) Generate(ctx context.Context, ev *models.Event) ([]models.Outcome, error) {
	if ev == nil || ev.Symbol == "" || ev.Title == "" {
		return nil, fmt.Errorf("%w: symbol and title required", ErrMalformedEvent)
	}
	if tpl, ok := Templates[ev.Type]; ok {
		return tpl.Instantiate(ev), nil
	}
	return g.generateViaAI(ctx, ev), nil
}

func (g *Generator) generateViaAI(ctx context.Context, ev *models.Event) []models.Outcome {
	for attempt := 1; attempt <= aiAttempts; attempt++ {
		prompt := buildSkeletonPrompt(ev)
		if attempt > 1 {
			prompt += "\n\nYour previous answer was rejected. Respond with ONLY the JSON array, nothing else."
		}
		text, err := g.ai.Infer(ctx, inference.Request{
			Prompt:      prompt,
			Temperature: skeletonTemps[attempt-1],
			MaxTokens:   aiMaxTokens,
		})
		if err != nil {
			g.warn("outcome inference failed", ev,
				applogger.Int("attempt", attempt), applogger.Error(err))
			continue
		}

		var items []skeletonItem
		attempts, err := parse.List(text, "outcomes", &items)
		for _, a := range attempts {
			if g.l != nil {
				g.l.Debug("skeleton parse tier failed",
					applogger.String("tier", string(a.Tier)),
					applogger.String("reason", a.Reason))
			}
		}
		if err != nil {
			if g.metrics != nil {
				g.metrics.RecordParseFailure("skeleton")
			}
			g.warn("skeleton unparseable", ev, applogger.Int("attempt", attempt))
			continue
		}

		skel := itemsToOutcomes(ev, items)
		if err := ValidateSkeleton(skel); err != nil {
			g.warn("skeleton invalid", ev,
				applogger.Int("attempt", attempt), applogger.Error(err))
			continue
		}
		return skel
	}

	g.warn("AI skeleton failed, using generic fallback", ev)
	return Generic.Instantiate(ev)
}

func buildSkeletonPrompt(ev *models.Event) string {
	date := "unknown"
	if ev.ScheduledAt != nil {
		date = ev.ScheduledAt.Format("2006-01-02")
	}
	return strings.NewReplacer(
		"{coin_symbol}", ev.Symbol,
		"{event_type}", string(ev.Type),
		"{title}", ev.Title,
		"{date_event}", date,
	).Replace(skeletonPrompt)
}

func itemsToOutcomes(ev *models.Event, items []skeletonItem) []models.Outcome {
	out := make([]models.Outcome, 0, len(items))
	for _, it := range items {
		label := it.Text
		if len(label) > maxLabelLen {
			label = label[:maxLabelLen]
		}
		out = append(out, models.Outcome{
			EventID:  ev.ID,
			Key:      strings.TrimSpace(it.Key),
			Label:    label,
			Category: models.OutcomeCategory(it.Category),
			Status:   models.OutcomePending,
		})
	}
	return out
}

func (g *Generator) warn(msg string, ev *models.Event, fields ...applogger.Field) {
	if g.l == nil {
		return
	}
	fields = append([]applogger.Field{
		applogger.String("symbol", ev.Symbol),
		applogger.String("type", string(ev.Type)),
	}, fields...)
	g.l.Warn(msg, fields...)
}

// ValidateSkeleton enforces the MECE invariants on an outcome set:
// 3-4 outcomes, unique non-empty keys, known categories, at least one
// positive and at least one negative-or-cancelled branch.
func ValidateSkeleton(outcomes []models.Outcome) error {
	if len(outcomes) < 3 || len(outcomes) > 4 {
		return fmt.Errorf("outcome count %d, want 3-4", len(outcomes))
	}
	seen := make(map[string]bool, len(outcomes))
	hasPositive, hasDownside := false, false
	for _, o := range outcomes {
		if o.Key == "" || o.Label == "" {
			return errors.New("outcome key and label must be non-empty")
		}
		if seen[o.Key] {
			return fmt.Errorf("duplicate outcome key %q", o.Key)
		}
		seen[o.Key] = true
		if !models.ValidCategories[o.Category] {
			return fmt.Errorf("unknown category %q", o.Category)
		}
		switch o.Category {
		case models.CategoryPositive:
			hasPositive = true
		case models.CategoryNegative, models.CategoryCancelled:
			hasDownside = true
		}
	}
	if !hasPositive {
		return errors.New("no positive outcome")
	}
	if !hasDownside {
		return errors.New("no negative or cancelled outcome")
	}
	return nil
}
