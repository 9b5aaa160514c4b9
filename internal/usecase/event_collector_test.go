package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoScanner/internal/domain/models"
)

// scriptedStream delivers one batch of events per Read call. After each
// batch except the last it fails the connection the way the real stream
// does: an error on the error channel, then both channels closed.
type scriptedStream struct {
	mu         sync.Mutex
	batches    [][]*models.Event
	reads      int
	reconnects int
	connected  bool
}

func (s *scriptedStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *scriptedStream) Subscribe(context.Context) error { return nil }

func (s *scriptedStream) Read(context.Context) (<-chan *models.Event, <-chan error) {
	s.mu.Lock()
	idx := s.reads
	s.reads++
	s.mu.Unlock()

	events := make(chan *models.Event, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errs)
		if idx >= len(s.batches) {
			return
		}
		for _, ev := range s.batches[idx] {
			events <- ev
		}
		if idx < len(s.batches)-1 {
			errs <- fmt.Errorf("connection dropped")
			return
		}
		// last batch: keep the connection alive
		time.Sleep(time.Second)
	}()
	return events, errs
}

func (s *scriptedStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	s.connected = true
	return nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *scriptedStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *scriptedStream) reconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func TestEventCollectorResumesAfterDisconnect(t *testing.T) {
	stream := &scriptedStream{batches: [][]*models.Event{
		{{Symbol: "BTC", Title: "Halving countdown begins", Type: models.EventOther}},
		{{Symbol: "ETH", Title: "Protocol upgrade announced", Type: models.EventFork}},
	}}
	store := newMemStore()
	m := newCountMetrics()
	c := NewEventCollector(stream, testIntake(t, store, m), m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	// the second event only arrives if the collector re-reads the
	// stream after the dropped connection
	require.Eventually(t, func() bool {
		return m.get("event_ingested") == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, stream.reconnectCount())
	assert.Equal(t, 1, m.get("error_stream"))
}

func TestEventCollectorStopsReopeningOnceCancelled(t *testing.T) {
	stream := &scriptedStream{batches: [][]*models.Event{
		{{Symbol: "SOL", Title: "Network restart completed", Type: models.EventOther}},
		{},
	}}
	store := newMemStore()
	m := newCountMetrics()
	c := NewEventCollector(stream, testIntake(t, store, m), m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool {
		return m.get("event_ingested") == 1 && stream.reconnectCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, stream.reconnectCount(),
		"no reconnect attempts after shutdown")
}
