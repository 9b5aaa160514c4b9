package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoScanner/internal/domain/models"
	pkgcache "CryptoScanner/pkg/cache"
)

func testIntake(t *testing.T, store *memStore, m *countMetrics) *EventIntake {
	t.Helper()
	return NewEventIntake(store, m, testLogger(t), IntakeParams{
		Similarity:     0.6,
		DateWindowDays: 3,
	})
}

func incomingEvent(symbol, title string, typ models.EventType) *models.Event {
	return &models.Event{
		Symbol: symbol,
		Title:  title,
		Type:   typ,
	}
}

func TestIngestStoresNewEvent(t *testing.T) {
	store := newMemStore()
	m := newCountMetrics()
	in := testIntake(t, store, m)

	ev := incomingEvent("sol", "Mainnet upgrade goes live", models.EventLaunch)
	require.NoError(t, in.Ingest(context.Background(), ev))

	assert.Equal(t, "SOL", ev.Symbol)
	assert.Equal(t, models.EventID("SOL", models.EventLaunch, "Mainnet upgrade goes live"), ev.ID)
	assert.Equal(t, models.SourceGenCurrent, ev.SourceGen)
	assert.Equal(t, models.ImportanceMedium, ev.Importance)
	assert.False(t, ev.CreatedAt.IsZero())
	assert.Equal(t, 1, m.get("event_ingested"))

	stored, err := store.EventTitles(context.Background(), "SOL", models.EventLaunch)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestIngestRejectsMalformedEvents(t *testing.T) {
	store := newMemStore()
	m := newCountMetrics()
	in := testIntake(t, store, m)
	ctx := context.Background()

	assert.Error(t, in.Ingest(ctx, nil))
	assert.Error(t, in.Ingest(ctx, incomingEvent("", "a title", models.EventBurn)))
	assert.Error(t, in.Ingest(ctx, incomingEvent("BTC", "   ", models.EventBurn)))
	assert.Error(t, in.Ingest(ctx, &models.Event{Symbol: "BTC", Title: "t", Type: "rumor"}))
	assert.Equal(t, 4, m.get("error_intake_validate"))
}

func TestIngestDropsNearDuplicate(t *testing.T) {
	store := newMemStore()
	m := newCountMetrics()
	in := testIntake(t, store, m)
	ctx := context.Background()

	require.NoError(t, in.Ingest(ctx, incomingEvent("ETH", "Shanghai upgrade activates on mainnet", models.EventFork)))
	require.NoError(t, in.Ingest(ctx, incomingEvent("ETH", "Shanghai upgrade activates on mainnet April 12", models.EventFork)))

	assert.Equal(t, 1, m.get("event_ingested"))
	assert.Equal(t, 1, m.get("event_duplicate"))

	stored, err := store.EventTitles(ctx, "ETH", models.EventFork)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestIngestKeepsDistinctEvents(t *testing.T) {
	store := newMemStore()
	m := newCountMetrics()
	in := testIntake(t, store, m)
	ctx := context.Background()

	require.NoError(t, in.Ingest(ctx, incomingEvent("ARB", "Token unlock of team allocation", models.EventUnlock)))
	require.NoError(t, in.Ingest(ctx, incomingEvent("ARB", "Listed on major derivatives exchange", models.EventListing)))

	assert.Equal(t, 2, m.get("event_ingested"))
	assert.Equal(t, 0, m.get("event_duplicate"))
}

func TestIngestSeparatesByDateWindow(t *testing.T) {
	store := newMemStore()
	m := newCountMetrics()
	in := testIntake(t, store, m)
	ctx := context.Background()

	first := incomingEvent("OP", "Quarterly token unlock", models.EventUnlock)
	d1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	first.ScheduledAt = &d1
	require.NoError(t, in.Ingest(ctx, first))

	second := incomingEvent("OP", "Quarterly token unlock", models.EventUnlock)
	d2 := d1.AddDate(0, 3, 0)
	second.ScheduledAt = &d2
	require.NoError(t, in.Ingest(ctx, second))

	assert.Equal(t, 2, m.get("event_ingested"))
}

func TestIngestRederivesLegacyIDs(t *testing.T) {
	store := newMemStore()
	m := newCountMetrics()
	in := testIntake(t, store, m)

	ev := incomingEvent("DOGE", "Major exchange listing", models.EventListing)
	ev.ID = "42"
	ev.SourceGen = models.SourceGenLegacy
	require.NoError(t, in.Ingest(context.Background(), ev))

	assert.Equal(t, models.EventID("DOGE", models.EventListing, "Major exchange listing"), ev.ID)
	assert.Equal(t, models.SourceGenCurrent, ev.SourceGen)
}

func TestIngestTitlesMemoInvalidatedOnSave(t *testing.T) {
	store := newMemStore()
	m := newCountMetrics()
	in := testIntake(t, store, m).WithTitlesMemo(pkgcache.NewMemoryCache())
	ctx := context.Background()

	require.NoError(t, in.Ingest(ctx, incomingEvent("BTC", "Halving block reached", models.EventOther)))
	// second ingest must see the first despite the memo
	require.NoError(t, in.Ingest(ctx, incomingEvent("BTC", "Halving block reached today", models.EventOther)))

	assert.Equal(t, 1, m.get("event_ingested"))
	assert.Equal(t, 1, m.get("event_duplicate"))
}
