package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"CryptoScanner/internal/domain/models"
	drepo "CryptoScanner/internal/domain/repository"
	pkgcache "CryptoScanner/pkg/cache"
	applogger "CryptoScanner/pkg/logger"
)

const titlesMemoTTL = 30 * time.Second

// IntakeParams tune the duplicate detection applied at ingest.
type IntakeParams struct {
	Similarity     float64
	DateWindowDays int
}

// EventIntake validates, deduplicates and persists incoming events.
// Exact duplicates are caught by the content-hash id; near-duplicates
// by fuzzy title comparison against already stored events of the same
// token and type.
type EventIntake struct {
	store   drepo.EventStore
	metrics drepo.Metrics
	l       *applogger.Logger
	params  IntakeParams
	memo    pkgcache.Service // optional
}

func NewEventIntake(store drepo.EventStore, metrics drepo.Metrics, l *applogger.Logger, params IntakeParams) *EventIntake {
	if params.Similarity <= 0 {
		params.Similarity = 0.6
	}
	if params.DateWindowDays <= 0 {
		params.DateWindowDays = 3
	}
	return &EventIntake{store: store, metrics: metrics, l: l, params: params}
}

// WithTitlesMemo caches the per-symbol title lookups so bursty intake
// does not hit the store for every event.
func (in *EventIntake) WithTitlesMemo(c pkgcache.Service) *EventIntake {
	in.memo = c
	return in
}

// Ingest processes a single incoming event. Near-duplicates of stored
// events are dropped without error; malformed events are rejected.
func (in *EventIntake) Ingest(ctx context.Context, ev *models.Event) error {
	start := time.Now()
	if err := validateEvent(ev); err != nil {
		in.metrics.RecordError("intake_validate")
		return err
	}

	normalizeEvent(ev)

	existing, err := in.storedTitles(ctx, ev.Symbol, ev.Type)
	if err != nil {
		in.metrics.RecordError("intake_lookup")
		return fmt.Errorf("lookup stored events: %w", err)
	}
	for i := range existing {
		if sameOccurrence(&existing[i], ev, in.params.Similarity, in.params.DateWindowDays) {
			in.l.Debug("near-duplicate event dropped",
				applogger.String("event_id", ev.ID),
				applogger.String("kept", existing[i].ID),
				applogger.String("symbol", ev.Symbol))
			in.metrics.RecordEventProcessed("duplicate")
			return nil
		}
	}

	if err := in.store.SaveEvent(ctx, ev); err != nil {
		in.metrics.RecordError("intake_store")
		return fmt.Errorf("save event: %w", err)
	}
	if in.memo != nil {
		_ = in.memo.Delete(ctx, titlesMemoKey(ev.Symbol, ev.Type))
	}

	in.metrics.RecordEventProcessed("ingested")
	in.metrics.RecordLatency("intake", time.Since(start).Seconds())
	return nil
}

func (in *EventIntake) storedTitles(ctx context.Context, symbol string, typ models.EventType) ([]models.Event, error) {
	key := titlesMemoKey(symbol, typ)
	if in.memo != nil {
		var raw string
		if err := in.memo.Get(ctx, key, &raw); err == nil {
			var cached []models.Event
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
		}
	}

	existing, err := in.store.EventTitles(ctx, symbol, typ)
	if err != nil {
		return nil, err
	}
	if in.memo != nil {
		if b, err := json.Marshal(existing); err == nil {
			_ = in.memo.Set(ctx, key, string(b), titlesMemoTTL)
		}
	}
	return existing, nil
}

func titlesMemoKey(symbol string, typ models.EventType) string {
	return fmt.Sprintf("intake:titles:%s:%s", symbol, typ)
}

func validateEvent(ev *models.Event) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if strings.TrimSpace(ev.Symbol) == "" {
		return fmt.Errorf("symbol empty")
	}
	if strings.TrimSpace(ev.Title) == "" {
		return fmt.Errorf("title empty")
	}
	if !models.ValidEventTypes[ev.Type] {
		return fmt.Errorf("unknown event type: %q", ev.Type)
	}
	return nil
}

// normalizeEvent fills derived fields. Legacy producers ship integer
// row keys instead of content hashes; those ids are re-derived so both
// generations share one identity scheme.
func normalizeEvent(ev *models.Event) {
	ev.Symbol = strings.ToUpper(strings.TrimSpace(ev.Symbol))
	ev.Title = strings.TrimSpace(ev.Title)
	if ev.ID == "" || ev.SourceGen == models.SourceGenLegacy {
		ev.ID = models.EventID(ev.Symbol, ev.Type, ev.Title)
		ev.SourceGen = models.SourceGenCurrent
	}
	if ev.SourceGen == "" {
		ev.SourceGen = models.SourceGenCurrent
	}
	if ev.Importance == "" {
		ev.Importance = models.ImportanceMedium
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
}
