package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoScanner/internal/domain/models"
)

func TestKafkaEventsHandlerIngestsMessage(t *testing.T) {
	store := newMemStore()
	m := newCountMetrics()
	h := NewKafkaEventsHandler("scanner.events", testIntake(t, store, m), m)

	assert.Equal(t, "scanner.events", h.Topic())

	msg := []byte(`{
		"symbol": "ada",
		"title": "Hydra scaling launch on mainnet",
		"type": "launch",
		"scheduled_at": "2026-09-15T00:00:00Z",
		"importance": "high",
		"source_name": "coindar",
		"source_gen": "v2"
	}`)
	require.NoError(t, h.Handle(context.Background(), msg))

	stored, err := store.EventTitles(context.Background(), "ADA", models.EventLaunch)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.ImportanceHigh, stored[0].Importance)
	require.NotNil(t, stored[0].ScheduledAt)
	assert.Equal(t, 15, stored[0].ScheduledAt.Day())
}

func TestKafkaEventsHandlerRejectsBadJSON(t *testing.T) {
	store := newMemStore()
	m := newCountMetrics()
	h := NewKafkaEventsHandler("scanner.events", testIntake(t, store, m), m)

	assert.Error(t, h.Handle(context.Background(), []byte("{not json")))
	assert.Equal(t, 1, m.get("error_consumer_unmarshal"))
}

func TestKafkaEventsHandlerPropagatesValidation(t *testing.T) {
	store := newMemStore()
	m := newCountMetrics()
	h := NewKafkaEventsHandler("scanner.events", testIntake(t, store, m), m)

	// unknown event type must bounce so the consumer can retry or DLQ it
	assert.Error(t, h.Handle(context.Background(), []byte(`{"symbol":"BTC","title":"t","type":"rumor"}`)))
	assert.Equal(t, 1, m.get("error_intake_validate"))
}
