package repository

import (
	"context"
	"time"

	"CryptoScanner/internal/domain/models"
)

// EventStream delivers Event records pushed by the external collector
// over a persistent connection.
type EventStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Event, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// EventStore persists events and their outcome rows.
type EventStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	SaveEvent(ctx context.Context, ev *models.Event) error
	EventTitles(ctx context.Context, symbol string, typ models.EventType) ([]models.Event, error)
	UnprocessedEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkOutcomesGenerated(ctx context.Context, eventID string) error
	SaveOutcomes(ctx context.Context, eventID string, outcomes []models.Outcome) error
	UpdateOutcomes(ctx context.Context, eventID string, outcomes []models.Outcome) error
	OutcomesForEvent(ctx context.Context, eventID string) ([]models.Outcome, error)
	CompleteEvents(ctx context.Context, limit int) ([]models.EventOutcomes, error)
	RecentEvents(ctx context.Context, symbol string, typ string, since time.Time, limit int) ([]models.Event, error)
	Health(ctx context.Context) error
	Close() error
}

// SignalStore persists per-run token signals.
type SignalStore interface {
	SaveSignals(ctx context.Context, signals []models.Signal) error
	LatestSignals(ctx context.Context, limit int) ([]models.Signal, error)
	SignalForSymbol(ctx context.Context, symbol string) (*models.Signal, error)
}

// SignalPublisher announces a run's signals to downstream consumers.
type SignalPublisher interface {
	PublishSignals(ctx context.Context, signals []models.Signal) error
	Close() error
}

// Metrics abstracts pipeline instrumentation.
type Metrics interface {
	RecordInference(provider, status string)
	RecordParseFailure(stage string)
	RecordEventProcessed(status string)
	RecordSignal(class string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
