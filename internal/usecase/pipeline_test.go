package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoScanner/internal/domain/models"
	applogger "CryptoScanner/pkg/logger"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

// memStore is an in-memory EventStore plus SignalStore for pipeline tests.
type memStore struct {
	mu          sync.Mutex
	unprocessed []models.Event
	outcomes    map[string][]models.Outcome
	generated   map[string]bool
	saved       [][]models.Signal

	pullErr error
}

func newMemStore(events ...models.Event) *memStore {
	return &memStore{
		unprocessed: events,
		outcomes:    map[string][]models.Outcome{},
		generated:   map[string]bool{},
	}
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) SaveEvent(_ context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unprocessed = append(s.unprocessed, *ev)
	return nil
}

func (s *memStore) EventTitles(_ context.Context, symbol string, typ models.EventType) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, ev := range s.unprocessed {
		if ev.Symbol == symbol && ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memStore) UnprocessedEvents(_ context.Context, limit int) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pullErr != nil {
		return nil, s.pullErr
	}
	if limit > len(s.unprocessed) {
		limit = len(s.unprocessed)
	}
	out := make([]models.Event, limit)
	copy(out, s.unprocessed[:limit])
	return out, nil
}

func (s *memStore) MarkOutcomesGenerated(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generated[eventID] = true
	return nil
}

func (s *memStore) SaveOutcomes(_ context.Context, eventID string, outcomes []models.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[eventID] = append([]models.Outcome(nil), outcomes...)
	return nil
}

func (s *memStore) UpdateOutcomes(_ context.Context, eventID string, outcomes []models.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[eventID] = append([]models.Outcome(nil), outcomes...)
	return nil
}

func (s *memStore) OutcomesForEvent(_ context.Context, eventID string) ([]models.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomes[eventID], nil
}

func (s *memStore) CompleteEvents(_ context.Context, limit int) ([]models.EventOutcomes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EventOutcomes
	for _, ev := range s.unprocessed {
		if !s.generated[ev.ID] || len(out) >= limit {
			continue
		}
		outs := s.outcomes[ev.ID]
		all := len(outs) > 0
		for i := range outs {
			if !outs[i].Estimated() {
				all = false
				break
			}
		}
		if all {
			out = append(out, models.EventOutcomes{Event: ev, Outcomes: outs})
		}
	}
	return out, nil
}

func (s *memStore) RecentEvents(context.Context, string, string, time.Time, int) ([]models.Event, error) {
	return nil, nil
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

func (s *memStore) SaveSignals(_ context.Context, signals []models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, signals)
	return nil
}

func (s *memStore) LatestSignals(context.Context, int) ([]models.Signal, error) { return nil, nil }
func (s *memStore) SignalForSymbol(context.Context, string) (*models.Signal, error) {
	return nil, nil
}

// countMetrics records counters so assertions can check instrumentation.
type countMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountMetrics() *countMetrics { return &countMetrics{counts: map[string]int{}} }

func (m *countMetrics) bump(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
}

func (m *countMetrics) get(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *countMetrics) RecordInference(provider, status string) { m.bump("inference_" + status) }
func (m *countMetrics) RecordParseFailure(stage string)         { m.bump("parse_" + stage) }
func (m *countMetrics) RecordEventProcessed(status string)      { m.bump("event_" + status) }
func (m *countMetrics) RecordSignal(class string)               { m.bump("signal_" + class) }
func (m *countMetrics) RecordError(kind string)                 { m.bump("error_" + kind) }
func (m *countMetrics) RecordLatency(string, float64)           {}

// fakeGenerator returns a fixed two-outcome skeleton per event.
type fakeGenerator struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (g *fakeGenerator) Generate(_ context.Context, ev *models.Event) ([]models.Outcome, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return []models.Outcome{
		{EventID: ev.ID, Key: "happens", Category: models.CategoryPositive, Status: models.OutcomePending},
		{EventID: ev.ID, Key: "cancelled", Category: models.CategoryCancelled, Status: models.OutcomePending},
	}, nil
}

// fakeEstimator fills every outcome with fixed values, or marks all
// unresolved when failing is set.
type fakeEstimator struct {
	failing bool
	delay   time.Duration
}

func (e *fakeEstimator) Estimate(ctx context.Context, _ *models.Event, outcomes []models.Outcome) []models.Outcome {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
		}
	}
	out := append([]models.Outcome(nil), outcomes...)
	for i := range out {
		if e.failing || ctx.Err() != nil {
			out[i].Status = models.OutcomeUnresolved
			out[i].FailReason = "estimation failed"
			continue
		}
		p := 0.5
		imp := 6.0
		if out[i].Category == models.CategoryCancelled {
			imp = -4.0
		}
		out[i].Probability = &p
		out[i].ImpactPct = &imp
		out[i].Status = models.OutcomeEstimated
	}
	return out
}

func testPipeline(store *memStore, gen *fakeGenerator, est *fakeEstimator, m *countMetrics, t *testing.T) *Pipeline {
	calc := NewSignalCalculator(testParams(), nil)
	return NewPipeline(store, store, gen, est, calc, m, testLogger(t), PipelineParams{
		Workers:    2,
		EventLimit: 10,
	})
}

func TestPipelineRunHappyPath(t *testing.T) {
	at := time.Now().UTC()
	store := newMemStore(
		testEvent("ev1", "ARB", "Binance lists ARB", models.EventListing, models.ImportanceHigh, at),
		testEvent("ev2", "OP", "Token unlock 50M", models.EventUnlock, models.ImportanceHigh, at),
	)
	gen := &fakeGenerator{}
	metrics := newCountMetrics()

	p := testPipeline(store, gen, &fakeEstimator{}, metrics, t)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Pulled)
	assert.Equal(t, 2, report.Generated)
	assert.Equal(t, 4, report.Estimated)
	assert.Equal(t, 0, report.Unresolved)
	assert.Equal(t, 2, report.Signals)
	assert.NotEmpty(t, report.RunID)

	require.Len(t, store.saved, 1)
	assert.Len(t, store.saved[0], 2)
	assert.Equal(t, 2, metrics.get("event_estimated"))
	assert.True(t, store.generated["ev1"])
	assert.True(t, store.generated["ev2"])
}

func TestPipelineGeneratorFailureSkipsEvent(t *testing.T) {
	at := time.Now().UTC()
	store := newMemStore(
		testEvent("ev1", "ARB", "Binance lists ARB", models.EventListing, models.ImportanceHigh, at),
	)
	gen := &fakeGenerator{err: errors.New("backend down")}
	metrics := newCountMetrics()

	p := testPipeline(store, gen, &fakeEstimator{}, metrics, t)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Generated)
	assert.Equal(t, 0, report.Signals)
	assert.Empty(t, store.saved)
	assert.False(t, store.generated["ev1"])
	assert.Equal(t, 1, metrics.get("event_generate_failed"))
}

func TestPipelineEstimationFailureKeepsSkeleton(t *testing.T) {
	at := time.Now().UTC()
	store := newMemStore(
		testEvent("ev1", "ARB", "Binance lists ARB", models.EventListing, models.ImportanceHigh, at),
	)
	metrics := newCountMetrics()

	p := testPipeline(store, &fakeGenerator{}, &fakeEstimator{failing: true}, metrics, t)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Generated)
	assert.Equal(t, 0, report.Estimated)
	assert.Equal(t, 2, report.Unresolved)
	assert.Equal(t, 0, report.Signals)
	assert.True(t, store.generated["ev1"])

	outs, err := store.OutcomesForEvent(context.Background(), "ev1")
	require.NoError(t, err)
	require.Len(t, outs, 2)
	for _, o := range outs {
		assert.Equal(t, models.OutcomeUnresolved, o.Status)
		assert.Equal(t, "estimation failed", o.FailReason)
	}
	assert.Equal(t, 1, metrics.get("event_unresolved"))
}

func TestPipelinePullErrorFailsRun(t *testing.T) {
	store := newMemStore()
	store.pullErr = errors.New("connection refused")
	metrics := newCountMetrics()

	p := testPipeline(store, &fakeGenerator{}, &fakeEstimator{}, metrics, t)
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, metrics.get("error_pull_events"))
}

func TestPipelineRunDeadline(t *testing.T) {
	at := time.Now().UTC()
	store := newMemStore(
		testEvent("ev1", "ARB", "Binance lists ARB", models.EventListing, models.ImportanceHigh, at),
	)
	metrics := newCountMetrics()

	calc := NewSignalCalculator(testParams(), nil)
	p := NewPipeline(store, store, &fakeGenerator{}, &fakeEstimator{delay: 500 * time.Millisecond},
		calc, metrics, testLogger(t), PipelineParams{
			Workers:    1,
			EventLimit: 10,
			RunTimeout: 50 * time.Millisecond,
		})

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Unresolved)
	assert.Equal(t, 0, report.Signals)
}

func TestPipelineBoundedConcurrency(t *testing.T) {
	at := time.Now().UTC()
	var events []models.Event
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		events = append(events, testEvent(id, "TOK"+id, "launch of thing "+id, models.EventLaunch, models.ImportanceHigh, at))
	}
	store := newMemStore(events...)
	gen := &fakeGenerator{}
	metrics := newCountMetrics()

	p := testPipeline(store, gen, &fakeEstimator{}, metrics, t)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Generated)
	assert.Equal(t, 6, gen.calls)
	assert.Equal(t, 6, report.Signals)
}
