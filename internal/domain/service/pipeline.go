package service

import (
	"context"

	"CryptoScanner/internal/domain/models"
)

// OutcomeGenerator builds the MECE outcome skeleton for an event.
// Implementations must not fail for a well-formed event; the generic
// fallback covers every code path.
type OutcomeGenerator interface {
	Generate(ctx context.Context, ev *models.Event) ([]models.Outcome, error)
}

// Estimator fills probability and impact distributions for an event's
// outcome skeleton. Per-outcome failures are recorded on the outcome
// itself, never returned as an error for the whole event.
type Estimator interface {
	Estimate(ctx context.Context, ev *models.Event, outcomes []models.Outcome) []models.Outcome
}

// SignalCalculator folds estimated events into per-token signals.
type SignalCalculator interface {
	Compute(events []models.EventOutcomes) []models.Signal
}
