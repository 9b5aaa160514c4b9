package usecase

import (
	"context"

	"CryptoScanner/internal/domain/models"
	drepo "CryptoScanner/internal/domain/repository"
	mid "CryptoScanner/internal/middleware"
)

// EventCollector drains the collector's event stream into intake.
type EventCollector struct {
	stream  drepo.EventStream
	intake  *EventIntake
	metrics drepo.Metrics
	pipe    *mid.IntakePipeline
}

func NewEventCollector(stream drepo.EventStream, intake *EventIntake, metrics drepo.Metrics, pipe *mid.IntakePipeline) *EventCollector {
	return &EventCollector{stream: stream, intake: intake, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the event stream is connected.
func (c *EventCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *EventCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	evCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, evCh, errCh)
	return nil
}

// consume drains the stream channels. The stream's read loop closes
// both channels on a connection error, so a closed channel means the
// socket is gone and the stream must be re-opened with fresh channels.
func (c *EventCollector) consume(ctx context.Context, evCh <-chan *models.Event, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, open := <-errCh:
			if open && err == nil {
				continue
			}
			if err != nil {
				c.metrics.RecordError("stream")
			}
			var ok bool
			evCh, errCh, ok = c.reopen(ctx)
			if !ok {
				return
			}
		case ev, open := <-evCh:
			if !open {
				var ok bool
				evCh, errCh, ok = c.reopen(ctx)
				if !ok {
					return
				}
				continue
			}
			if ev == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, ev)
			} else {
				_ = c.intake.Ingest(ctx, ev)
			}
		}
	}
}

// reopen reconnects and restarts the stream read until it succeeds or
// the context ends. Reconnect waits its own delay between dials.
func (c *EventCollector) reopen(ctx context.Context) (<-chan *models.Event, <-chan error, bool) {
	for {
		if ctx.Err() != nil {
			return nil, nil, false
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("stream_reconnect")
			continue
		}
		evCh, errCh := c.stream.Read(ctx)
		return evCh, errCh, true
	}
}

func (c *EventCollector) Stop() error { return c.stream.Close() }

// Shutdown stops the buffer pipeline and closes the stream.
func (c *EventCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
