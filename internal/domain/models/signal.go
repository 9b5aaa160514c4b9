package models

import "time"

// SignalClass is the per-token trade direction.
type SignalClass string

const (
	SignalLong    SignalClass = "LONG"
	SignalShort   SignalClass = "SHORT"
	SignalNeutral SignalClass = "NEUTRAL"
)

// SignalStrength qualifies how far past the threshold the score landed.
type SignalStrength string

const (
	StrengthStrong   SignalStrength = "strong"
	StrengthModerate SignalStrength = "moderate"
	StrengthNone     SignalStrength = "none"
)

// EventContribution records one deduplicated event's share of a token
// signal, kept so reporting can render the reasoning chain.
type EventContribution struct {
	EventID        string     `json:"event_id"`
	Title          string     `json:"title"`
	Type           EventType  `json:"type"`
	Importance     Importance `json:"importance"`
	ExpectedReturn float64    `json:"expected_return"`
	MergedIDs      []string   `json:"merged_ids,omitempty"` // ids of near-duplicate events folded into this one
}

// Signal is the per-token aggregate for one run. Immutable once
// produced; the next run supersedes it rather than mutating it.
type Signal struct {
	RunID          string              `json:"run_id"`
	RunAt          time.Time           `json:"run_at"`
	Symbol         string              `json:"symbol"`
	ExpectedReturn float64             `json:"expected_return"`
	BullReturn     float64             `json:"bull_return"`
	BearReturn     float64             `json:"bear_return"`
	Class          SignalClass         `json:"class"`
	Strength       SignalStrength      `json:"strength"`
	Capped         bool                `json:"capped"`
	AvgConfidence  float64             `json:"avg_confidence"`
	Events         []EventContribution `json:"events"`
}
