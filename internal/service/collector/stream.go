package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"CryptoScanner/internal/domain/models"
	drepo "CryptoScanner/internal/domain/repository"
)

// Stream implements an EventStream backed by the collector's WebSocket
// push feed.
type Stream struct {
	apiKey         string
	websocketURL   string
	channels       []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a collector EventStream.
func New(apiKey, websocketURL string, channels []string, reconnectDelay, pingInterval time.Duration) drepo.EventStream {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		channels:       channels,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.websocketURL, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("collector connect: %w", err)
	}
	s.conn = conn
	s.connected = true
	log.Printf("collector: connected")
	return nil
}

// Subscribe subscribes to the configured event channels.
func (s *Stream) Subscribe(ctx context.Context) error {
	if s.conn == nil || !s.connected {
		return fmt.Errorf("collector not connected")
	}
	for _, ch := range s.channels {
		msg := map[string]string{"type": "subscribe", "channel": ch}
		if err := s.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
		log.Printf("collector: subscribed %s", ch)
	}
	return nil
}

type wireEvent struct {
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

type wireMessage struct {
	Type string      `json:"type"`
	Data []wireEvent `json:"data"`
}

func (w *wireEvent) toModel() *models.Event {
	ev := &models.Event{
		ID:         w.ID,
		Symbol:     w.Symbol,
		Title:      w.Title,
		Type:       models.EventType(w.Type),
		Importance: models.Importance(w.Importance),
		SourceName: w.SourceName,
		SourceURL:  w.SourceURL,
		SourceGen:  models.SourceGen(w.SourceGen),
	}
	if w.ScheduledAt != "" {
		if at, err := time.Parse(time.RFC3339, w.ScheduledAt); err == nil {
			ev.ScheduledAt = &at
		}
	}
	return ev
}

// Read streams Event records and errors.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Event, <-chan error) {
	events := make(chan *models.Event, 256)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.conn != nil {
					_ = s.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(events)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if s.conn == nil {
					errs <- fmt.Errorf("collector conn nil")
					return
				}
				_, b, err := s.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("collector read: %w", err)
					return
				}
				var m wireMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-event frames
					continue
				}
				if m.Type != "event" {
					continue
				}
				for i := range m.Data {
					select {
					case events <- m.Data[i].toModel():
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return events, errs
}

// Reconnect closes and reconnects.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	time.Sleep(s.reconnectDelay)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.connected = false
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool { return s.connected }
