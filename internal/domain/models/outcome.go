package models

import "time"

// OutcomeCategory partitions an event's resolutions (MECE).
type OutcomeCategory string

const (
	CategoryPositive  OutcomeCategory = "positive"
	CategoryNeutral   OutcomeCategory = "neutral"
	CategoryNegative  OutcomeCategory = "negative"
	CategoryCancelled OutcomeCategory = "cancelled"
)

// ValidCategories is the closed category set for skeleton validation.
var ValidCategories = map[OutcomeCategory]bool{
	CategoryPositive: true, CategoryNeutral: true,
	CategoryNegative: true, CategoryCancelled: true,
}

// Confidence tags how tightly the estimation samples agreed.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// OutcomeStatus tracks per-outcome estimation progress.
type OutcomeStatus string

const (
	OutcomePending    OutcomeStatus = "pending"
	OutcomeEstimated  OutcomeStatus = "estimated"
	OutcomeUnresolved OutcomeStatus = "unresolved"
)

// Outcome is one MECE resolution branch of an event. The generator
// creates the skeleton (probability/impact nil), the estimator fills it.
type Outcome struct {
	EventID    string          `json:"event_id"`
	Key        string          `json:"key"`
	Label      string          `json:"label"`
	Category   OutcomeCategory `json:"category"`
	IsTemplate bool            `json:"is_template"`

	Probability     *float64 `json:"probability,omitempty"`
	ProbabilityLow  *float64 `json:"probability_low,omitempty"`
	ProbabilityHigh *float64 `json:"probability_high,omitempty"`
	ImpactPct       *float64 `json:"impact_pct,omitempty"`
	ImpactLow       *float64 `json:"impact_low,omitempty"`
	ImpactHigh      *float64 `json:"impact_high,omitempty"`

	Confidence Confidence    `json:"confidence,omitempty"`
	Status     OutcomeStatus `json:"status"`
	FailReason string        `json:"fail_reason,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Estimated reports whether both distributions have been filled.
func (o *Outcome) Estimated() bool {
	return o.Probability != nil && o.ImpactPct != nil
}
