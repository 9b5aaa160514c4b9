package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoScanner/internal/domain/models"
	applogger "CryptoScanner/pkg/logger"
)

type stubEventStore struct {
	events []models.Event

	gotSymbol string
	gotType   string
	gotSince  time.Time
	gotLimit  int
}

func (s *stubEventStore) Init(context.Context) error                          { return nil }
func (s *stubEventStore) SaveEvent(context.Context, *models.Event) error      { return nil }
func (s *stubEventStore) MarkOutcomesGenerated(context.Context, string) error { return nil }
func (s *stubEventStore) Health(context.Context) error                        { return nil }
func (s *stubEventStore) Close() error                                        { return nil }

func (s *stubEventStore) EventTitles(context.Context, string, models.EventType) ([]models.Event, error) {
	return nil, nil
}

func (s *stubEventStore) UnprocessedEvents(context.Context, int) ([]models.Event, error) {
	return nil, nil
}

func (s *stubEventStore) SaveOutcomes(context.Context, string, []models.Outcome) error { return nil }

func (s *stubEventStore) UpdateOutcomes(context.Context, string, []models.Outcome) error {
	return nil
}

func (s *stubEventStore) OutcomesForEvent(context.Context, string) ([]models.Outcome, error) {
	return nil, nil
}

func (s *stubEventStore) CompleteEvents(context.Context, int) ([]models.EventOutcomes, error) {
	return nil, nil
}

func (s *stubEventStore) RecentEvents(_ context.Context, symbol string, typ string, since time.Time, limit int) ([]models.Event, error) {
	s.gotSymbol = symbol
	s.gotType = typ
	s.gotSince = since
	s.gotLimit = limit
	return s.events, nil
}

func testHandler(t *testing.T, store *stubEventStore) *SignalsHandler {
	t.Helper()
	lgr, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return NewSignalsHandler(nil, store, lgr)
}

func doEvents(t *testing.T, h *SignalsHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Events(e.NewContext(req, rec)))
	return rec
}

func TestEventsFiltersBySince(t *testing.T) {
	store := &stubEventStore{events: []models.Event{{ID: "e1", Symbol: "BTC"}}}
	h := testHandler(t, store)

	rec := doEvents(t, h, "/api/events?symbol=BTC&since=2026-08-01T00:00:00Z")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BTC", store.gotSymbol)
	assert.Equal(t, 100, store.gotLimit)
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, store.gotSince.Equal(want), "since = %v, want %v", store.gotSince, want)

	var body struct {
		Data []models.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "e1", body.Data[0].ID)
}

func TestEventsAcceptsUnixSince(t *testing.T) {
	store := &stubEventStore{}
	h := testHandler(t, store)

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := doEvents(t, h, "/api/events?since=1785585600")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ts.Unix(), store.gotSince.Unix())
}

func TestEventsWithoutSinceUsesNoLowerBound(t *testing.T) {
	store := &stubEventStore{}
	h := testHandler(t, store)

	rec := doEvents(t, h, "/api/events")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.gotSince.IsZero())
}

func TestEventsRejectsBadSince(t *testing.T) {
	store := &stubEventStore{}
	h := testHandler(t, store)

	rec := doEvents(t, h, "/api/events?since=yesterday")

	var body struct {
		Status int `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, body.Status)
}
