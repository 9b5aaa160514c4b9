package usecase

import (
	"context"
	"encoding/json"
	"time"

	"CryptoScanner/internal/domain/models"
	drepo "CryptoScanner/internal/domain/repository"
	pkgkafka "CryptoScanner/pkg/kafka"
)

// KafkaEventsHandler consumes collector events from Kafka and routes
// them through intake.
type KafkaEventsHandler struct {
	topic   string
	intake  *EventIntake
	metrics drepo.Metrics
}

func NewKafkaEventsHandler(topic string, intake *EventIntake, metrics drepo.Metrics) *KafkaEventsHandler {
	return &KafkaEventsHandler{topic: topic, intake: intake, metrics: metrics}
}

func (h *KafkaEventsHandler) Topic() string { return h.topic }

// incoming message schema mirrors the collector's export format
func (h *KafkaEventsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		ID          string `json:"id"`
		Symbol      string `json:"symbol"`
		Title       string `json:"title"`
		Type        string `json:"type"`
		ScheduledAt string `json:"scheduled_at"`
		Importance  string `json:"importance"`
		SourceName  string `json:"source_name"`
		SourceURL   string `json:"source_url"`
		SourceGen   string `json:"source_gen"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	ev := &models.Event{
		ID:         m.ID,
		Symbol:     m.Symbol,
		Title:      m.Title,
		Type:       models.EventType(m.Type),
		Importance: models.Importance(m.Importance),
		SourceName: m.SourceName,
		SourceURL:  m.SourceURL,
		SourceGen:  models.SourceGen(m.SourceGen),
	}
	if m.ScheduledAt != "" {
		if at, err := time.Parse(time.RFC3339, m.ScheduledAt); err == nil {
			ev.ScheduledAt = &at
		}
	}

	return h.intake.Ingest(ctx, ev)
}

var _ pkgkafka.MessageHandler = (*KafkaEventsHandler)(nil)
