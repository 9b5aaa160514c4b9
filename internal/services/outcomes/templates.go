package outcomes

import (
	"strings"

	"CryptoScanner/internal/domain/models"
)

// TemplateOutcome is one branch of a canonical outcome template. Labels
// may contain {coin} and {title} placeholders.
type TemplateOutcome struct {
	Key      string
	Label    string
	Category models.OutcomeCategory
}

// Template is a hand-authored MECE skeleton for one canonical event
// type. Probability and impact stay unset; the estimator fills them.
type Template struct {
	Question string
	Outcomes []TemplateOutcome
}

// Templates covers the canonical event types that never need an
// inference call.
var Templates = map[models.EventType]Template{
	models.EventListing: {
		Question: "How will the {coin} exchange listing go?",
		Outcomes: []TemplateOutcome{
			{"A", "Listing on schedule with high first-day volume", models.CategoryPositive},
			{"B", "Listing on schedule but weak volume and interest", models.CategoryNeutral},
			{"C", "Listing postponed or moved to another date", models.CategoryNegative},
			{"D", "Listing cancelled outright", models.CategoryCancelled},
		},
	},
	models.EventLaunch: {
		Question: "How will the launch of {title} go?",
		Outcomes: []TemplateOutcome{
			{"A", "Launch on schedule with strong demand", models.CategoryPositive},
			{"B", "Launch on schedule with moderate interest", models.CategoryNeutral},
			{"C", "Launch delayed", models.CategoryNegative},
			{"D", "Launch cancelled or product pulled", models.CategoryCancelled},
		},
	},
	models.EventBurn: {
		Question: "What will the {coin} token burn amount to?",
		Outcomes: []TemplateOutcome{
			{"A", "Burn above expectations (>120% of forecast)", models.CategoryPositive},
			{"B", "Burn within expectations (80-120%)", models.CategoryNeutral},
			{"C", "Burn below expectations (<80%)", models.CategoryNegative},
			{"D", "Burn postponed or did not happen", models.CategoryCancelled},
		},
	},
	models.EventUnlock: {
		Question: "What happens after the {coin} token unlock?",
		Outcomes: []TemplateOutcome{
			{"A", "Tokens held, no selling within 48h of the unlock", models.CategoryPositive},
			{"B", "Partial selling (<50% of the unlocked amount)", models.CategoryNeutral},
			{"C", "Mass selling (>50% of the unlocked amount)", models.CategoryNegative},
			{"D", "Unlock rescheduled or cancelled", models.CategoryCancelled},
		},
	},
	models.EventFork: {
		Question: "How will the {coin} network upgrade go?",
		Outcomes: []TemplateOutcome{
			{"A", "Clean upgrade with no issues", models.CategoryPositive},
			{"B", "Upgrade with minor bugs fixed within 24h", models.CategoryNeutral},
			{"C", "Serious problems, rollback or emergency patch", models.CategoryNegative},
			{"D", "Upgrade postponed", models.CategoryCancelled},
		},
	},
	models.EventPartnership: {
		Question: "What is the scale of the {coin} partnership?",
		Outcomes: []TemplateOutcome{
			{"A", "Strategic partnership with a real integration", models.CategoryPositive},
			{"B", "Limited-scope technical collaboration", models.CategoryNeutral},
			{"C", "MoU or letter of intent only, no commitments", models.CategoryNegative},
			{"D", "Partnership unconfirmed or turned out to be a rumor", models.CategoryCancelled},
		},
	},
	models.EventAirdrop: {
		Question: "What will the {coin} airdrop result in?",
		Outcomes: []TemplateOutcome{
			{"A", "Airdrop happened, most recipients hold (>50%)", models.CategoryPositive},
			{"B", "Airdrop happened, mass selling (>70% sell)", models.CategoryNegative},
			{"C", "Airdrop reduced or terms changed", models.CategoryNegative},
			{"D", "Airdrop postponed or cancelled", models.CategoryCancelled},
		},
	},
}

// Generic is the fallback skeleton that covers any event type when the
// AI path fails. It guarantees the generator never fails outright.
var Generic = Template{
	Question: "What will the event result be for {coin}?",
	Outcomes: []TemplateOutcome{
		{"A", "Event completed with a positive result", models.CategoryPositive},
		{"B", "Event completed with a neutral result", models.CategoryNeutral},
		{"C", "Event completed with a negative result", models.CategoryNegative},
		{"D", "Event cancelled or rescheduled", models.CategoryCancelled},
	},
}

// DefaultImpact is the category's fallback price-impact magnitude,
// used when impact estimation degenerates past recovery.
func DefaultImpact(cat models.OutcomeCategory) float64 {
	switch cat {
	case models.CategoryPositive:
		return 5.0
	case models.CategoryNegative:
		return -5.0
	case models.CategoryCancelled:
		return -3.0
	default:
		return 0.0
	}
}

const maxLabelLen = 100

// Instantiate expands a template for a concrete event.
func (t Template) Instantiate(ev *models.Event) []models.Outcome {
	coin := ev.Symbol
	if coin == "" {
		coin = "???"
	}
	r := strings.NewReplacer("{coin}", coin, "{title}", ev.Title)
	out := make([]models.Outcome, 0, len(t.Outcomes))
	for _, o := range t.Outcomes {
		label := r.Replace(o.Label)
		if len(label) > maxLabelLen {
			label = label[:maxLabelLen]
		}
		out = append(out, models.Outcome{
			EventID:    ev.ID,
			Key:        o.Key,
			Label:      label,
			Category:   o.Category,
			IsTemplate: true,
			Status:     models.OutcomePending,
		})
	}
	return out
}
