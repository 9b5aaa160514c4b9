package models

// EventOutcomes pairs an event with its outcome rows, the unit the
// estimator and the signal calculator operate on.
type EventOutcomes struct {
	Event    Event
	Outcomes []Outcome
}
