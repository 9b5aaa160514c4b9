package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CryptoScanner/internal/domain/models"
	domrepo "CryptoScanner/internal/domain/repository"
	pkgch "CryptoScanner/pkg/clickhouse"
	applogger "CryptoScanner/pkg/logger"
)

// CHEventStore implements EventStore backed by ClickHouse. Events and
// outcomes live in ReplacingMergeTree tables keyed by their natural
// ids; updates are modeled as versioned inserts and reads use FINAL.
type CHEventStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHEventStore(ch *pkgch.Client) *CHEventStore {
	return &CHEventStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHEventStore) SetLogger(l *applogger.Logger) { s.l = l }

var eventSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
        id                 String,
        symbol             String,
        title              String,
        type               String,
        scheduled_at       Nullable(DateTime),
        importance         String,
        source_name        String,
        source_url         String,
        source_gen         String,
        outcomes_generated UInt8,
        created_at         DateTime,
        updated_at         DateTime
    ) ENGINE = ReplacingMergeTree(updated_at)
    ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS event_outcomes (
        event_id         String,
        key              String,
        label            String,
        category         String,
        is_template      UInt8,
        probability      Nullable(Float64),
        probability_low  Nullable(Float64),
        probability_high Nullable(Float64),
        impact_pct       Nullable(Float64),
        impact_low       Nullable(Float64),
        impact_high      Nullable(Float64),
        confidence       String,
        status           String,
        fail_reason      String,
        created_at       DateTime,
        updated_at       DateTime
    ) ENGINE = ReplacingMergeTree(updated_at)
    ORDER BY (event_id, key)`,
}

func (s *CHEventStore) Init(ctx context.Context) error {
	for _, stmt := range eventSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init event schema: %w", err)
		}
	}
	return nil
}

func (s *CHEventStore) SaveEvent(ctx context.Context, ev *models.Event) error {
	const q = `INSERT INTO events
        (id, symbol, title, type, scheduled_at, importance, source_name, source_url, source_gen, outcomes_generated, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	created := ev.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := s.db.ExecContext(ctx, q,
		ev.ID, ev.Symbol, ev.Title, string(ev.Type), ev.ScheduledAt,
		string(ev.Importance), ev.SourceName, ev.SourceURL, string(ev.SourceGen),
		boolToUint8(ev.OutcomesGenerated), created, now,
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

const eventCols = `id, symbol, title, type, scheduled_at, importance, source_name, source_url, source_gen, outcomes_generated, created_at`

func (s *CHEventStore) scanEvents(rows *sql.Rows) ([]models.Event, error) {
	var out []models.Event
	for rows.Next() {
		var ev models.Event
		var typ, imp, gen string
		var scheduled sql.NullTime
		var generated uint8
		if err := rows.Scan(&ev.ID, &ev.Symbol, &ev.Title, &typ, &scheduled, &imp,
			&ev.SourceName, &ev.SourceURL, &gen, &generated, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = models.EventType(typ)
		ev.Importance = models.Importance(imp)
		ev.SourceGen = models.SourceGen(gen)
		ev.OutcomesGenerated = generated != 0
		if scheduled.Valid {
			at := scheduled.Time
			ev.ScheduledAt = &at
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *CHEventStore) EventTitles(ctx context.Context, symbol string, typ models.EventType) ([]models.Event, error) {
	q := fmt.Sprintf(`SELECT %s FROM events FINAL WHERE symbol = ? AND type = ? ORDER BY created_at DESC`, eventCols)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(typ))
	if err != nil {
		return nil, fmt.Errorf("event titles: %w", err)
	}
	defer rows.Close()
	return s.scanEvents(rows)
}

func (s *CHEventStore) UnprocessedEvents(ctx context.Context, limit int) ([]models.Event, error) {
	start := time.Now()
	q := fmt.Sprintf(`SELECT %s FROM events FINAL WHERE outcomes_generated = 0 ORDER BY created_at ASC LIMIT ?`, eventCols)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse unprocessed_events query error", applogger.Error(err))
		}
		return nil, fmt.Errorf("unprocessed events: %w", err)
	}
	defer rows.Close()
	events, err := s.scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if s.l != nil {
		s.l.Debug("clickhouse unprocessed_events ok",
			applogger.Int("rows", len(events)),
			applogger.Duration("duration", time.Since(start)))
	}
	return events, nil
}

// MarkOutcomesGenerated rewrites the event row with the flag set; the
// replacing engine collapses the old version on merge.
func (s *CHEventStore) MarkOutcomesGenerated(ctx context.Context, eventID string) error {
	q := fmt.Sprintf(`SELECT %s FROM events FINAL WHERE id = ?`, eventCols)
	rows, err := s.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return fmt.Errorf("load event %s: %w", eventID, err)
	}
	events, err := s.scanEvents(rows)
	rows.Close()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("event %s not found", eventID)
	}
	ev := events[0]
	ev.OutcomesGenerated = true
	return s.SaveEvent(ctx, &ev)
}

func (s *CHEventStore) SaveOutcomes(ctx context.Context, eventID string, outcomes []models.Outcome) error {
	return s.insertOutcomes(ctx, eventID, outcomes)
}

// UpdateOutcomes inserts newer versions of the outcome rows; FINAL
// reads see the estimates instead of the skeletons.
func (s *CHEventStore) UpdateOutcomes(ctx context.Context, eventID string, outcomes []models.Outcome) error {
	return s.insertOutcomes(ctx, eventID, outcomes)
}

func (s *CHEventStore) insertOutcomes(ctx context.Context, eventID string, outcomes []models.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	now := time.Now().UTC()
	values := make([]string, 0, len(outcomes))
	args := make([]interface{}, 0, len(outcomes)*16)
	for i := range outcomes {
		o := &outcomes[i]
		created := o.CreatedAt
		if created.IsZero() {
			created = now
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			eventID, o.Key, o.Label, string(o.Category), boolToUint8(o.IsTemplate),
			o.Probability, o.ProbabilityLow, o.ProbabilityHigh,
			o.ImpactPct, o.ImpactLow, o.ImpactHigh,
			string(o.Confidence), string(o.Status), o.FailReason, created, now,
		)
	}
	q := `INSERT INTO event_outcomes
        (event_id, key, label, category, is_template, probability, probability_low, probability_high,
         impact_pct, impact_low, impact_high, confidence, status, fail_reason, created_at, updated_at)
        VALUES ` + strings.Join(values, ",")
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert outcomes: %w", err)
	}
	return nil
}

func (s *CHEventStore) OutcomesForEvent(ctx context.Context, eventID string) ([]models.Outcome, error) {
	const q = `SELECT event_id, key, label, category, is_template,
        probability, probability_low, probability_high,
        impact_pct, impact_low, impact_high,
        confidence, status, fail_reason, created_at
        FROM event_outcomes FINAL WHERE event_id = ? ORDER BY key ASC`
	rows, err := s.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("outcomes for event: %w", err)
	}
	defer rows.Close()

	var out []models.Outcome
	for rows.Next() {
		var o models.Outcome
		var category, confidence, status string
		var isTemplate uint8
		var p, pl, ph, imp, il, ih sql.NullFloat64
		if err := rows.Scan(&o.EventID, &o.Key, &o.Label, &category, &isTemplate,
			&p, &pl, &ph, &imp, &il, &ih,
			&confidence, &status, &o.FailReason, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Category = models.OutcomeCategory(category)
		o.Confidence = models.Confidence(confidence)
		o.Status = models.OutcomeStatus(status)
		o.IsTemplate = isTemplate != 0
		o.Probability = nullFloat(p)
		o.ProbabilityLow = nullFloat(pl)
		o.ProbabilityHigh = nullFloat(ph)
		o.ImpactPct = nullFloat(imp)
		o.ImpactLow = nullFloat(il)
		o.ImpactHigh = nullFloat(ih)
		out = append(out, o)
	}
	return out, rows.Err()
}

// CompleteEvents returns events whose every outcome carries estimates,
// newest first, ready for signal aggregation.
func (s *CHEventStore) CompleteEvents(ctx context.Context, limit int) ([]models.EventOutcomes, error) {
	q := fmt.Sprintf(`SELECT %s FROM events FINAL WHERE outcomes_generated = 1 ORDER BY created_at DESC LIMIT ?`, eventCols)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("complete events: %w", err)
	}
	events, err := s.scanEvents(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	out := make([]models.EventOutcomes, 0, len(events))
	for i := range events {
		outcomes, err := s.OutcomesForEvent(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
		if len(outcomes) == 0 {
			continue
		}
		estimated := true
		for j := range outcomes {
			if !outcomes[j].Estimated() {
				estimated = false
				break
			}
		}
		if estimated {
			out = append(out, models.EventOutcomes{Event: events[i], Outcomes: outcomes})
		}
	}
	return out, nil
}

func (s *CHEventStore) RecentEvents(ctx context.Context, symbol string, typ string, since time.Time, limit int) ([]models.Event, error) {
	var (
		conds []string
		args  []interface{}
	)
	if symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, symbol)
	}
	if typ != "" {
		conds = append(conds, "type = ?")
		args = append(args, typ)
	}
	if !since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, since.UTC())
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)

	q := fmt.Sprintf(`SELECT %s FROM events FINAL%s ORDER BY created_at DESC LIMIT ?`, eventCols, where)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()
	return s.scanEvents(rows)
}

func (s *CHEventStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHEventStore) Close() error {
	return nil // pool managed by pkg client
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var _ domrepo.EventStore = (*CHEventStore)(nil)
