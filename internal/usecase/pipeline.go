package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CryptoScanner/internal/domain/models"
	drepo "CryptoScanner/internal/domain/repository"
	dsvc "CryptoScanner/internal/domain/service"
	applogger "CryptoScanner/pkg/logger"
)

// PipelineParams bound a single run.
type PipelineParams struct {
	Workers     int           // concurrent events in flight
	EventLimit  int           // max unprocessed events pulled per run
	SignalLimit int           // max complete events folded into signals
	RunTimeout  time.Duration // deadline for the whole run
}

// RunReport summarizes what one pipeline run did.
type RunReport struct {
	RunID      string
	Pulled     int
	Generated  int
	Estimated  int
	Unresolved int
	Signals    int
	Elapsed    time.Duration
}

// Pipeline drives one scan cycle: pull unprocessed events, generate
// outcome skeletons, estimate distributions, then recompute per-token
// signals from everything estimated so far.
type Pipeline struct {
	store   drepo.EventStore
	signals drepo.SignalStore
	pub     drepo.SignalPublisher // optional
	gen     dsvc.OutcomeGenerator
	est     dsvc.Estimator
	calc    dsvc.SignalCalculator
	metrics drepo.Metrics
	l       *applogger.Logger
	params  PipelineParams
}

// WithPublisher announces each run's signals after they are stored.
func (p *Pipeline) WithPublisher(pub drepo.SignalPublisher) *Pipeline {
	p.pub = pub
	return p
}

func NewPipeline(
	store drepo.EventStore,
	signals drepo.SignalStore,
	gen dsvc.OutcomeGenerator,
	est dsvc.Estimator,
	calc dsvc.SignalCalculator,
	metrics drepo.Metrics,
	l *applogger.Logger,
	params PipelineParams,
) *Pipeline {
	if params.Workers <= 0 {
		params.Workers = 4
	}
	if params.EventLimit <= 0 {
		params.EventLimit = 100
	}
	if params.SignalLimit <= 0 {
		params.SignalLimit = 500
	}
	return &Pipeline{
		store:   store,
		signals: signals,
		gen:     gen,
		est:     est,
		calc:    calc,
		metrics: metrics,
		l:       l,
		params:  params,
	}
}

// Run executes one full cycle. Per-event failures are absorbed (the
// event stays unprocessed or its outcomes stay unresolved for the next
// run); only run-level failures are returned.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	start := time.Now()
	if p.params.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.params.RunTimeout)
		defer cancel()
	}

	events, err := p.store.UnprocessedEvents(ctx, p.params.EventLimit)
	if err != nil {
		p.metrics.RecordError("pull_events")
		return nil, fmt.Errorf("pull unprocessed events: %w", err)
	}

	report := &RunReport{Pulled: len(events)}
	p.l.Info("pipeline run started",
		applogger.Int("events", len(events)),
		applogger.Int("workers", p.params.Workers))

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.params.Workers)

	for i := range events {
		if ctx.Err() != nil {
			break
		}
		ev := events[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			gen, est, unres := p.processEvent(ctx, &ev)
			mu.Lock()
			if gen {
				report.Generated++
			}
			report.Estimated += est
			report.Unresolved += unres
			mu.Unlock()
		}()
	}
	wg.Wait()

	if err := p.recomputeSignals(ctx, report); err != nil {
		return report, err
	}

	report.Elapsed = time.Since(start)
	p.metrics.RecordLatency("pipeline_run", report.Elapsed.Seconds())
	p.l.Info("pipeline run finished",
		applogger.String("run_id", report.RunID),
		applogger.Int("generated", report.Generated),
		applogger.Int("estimated", report.Estimated),
		applogger.Int("unresolved", report.Unresolved),
		applogger.Int("signals", report.Signals),
		applogger.Duration("elapsed", report.Elapsed))
	return report, nil
}

// processEvent takes one event through skeleton generation and
// estimation. Skeletons are persisted before estimation starts so a
// crash mid-estimate never loses the generated structure.
func (p *Pipeline) processEvent(ctx context.Context, ev *models.Event) (generated bool, estimated, unresolved int) {
	outcomes, err := p.gen.Generate(ctx, ev)
	if err != nil {
		p.l.Warn("skeleton generation failed",
			applogger.String("event_id", ev.ID), applogger.Error(err))
		p.metrics.RecordEventProcessed("generate_failed")
		return false, 0, 0
	}
	if err := p.store.SaveOutcomes(ctx, ev.ID, outcomes); err != nil {
		p.l.Error("save outcome skeletons",
			applogger.String("event_id", ev.ID), applogger.Error(err))
		p.metrics.RecordError("save_outcomes")
		return false, 0, 0
	}
	if err := p.store.MarkOutcomesGenerated(ctx, ev.ID); err != nil {
		p.l.Error("mark outcomes generated",
			applogger.String("event_id", ev.ID), applogger.Error(err))
		p.metrics.RecordError("mark_generated")
		return false, 0, 0
	}
	generated = true

	filled := p.est.Estimate(ctx, ev, outcomes)
	for i := range filled {
		switch filled[i].Status {
		case models.OutcomeEstimated:
			estimated++
		case models.OutcomeUnresolved:
			unresolved++
		}
	}
	if err := p.store.UpdateOutcomes(ctx, ev.ID, filled); err != nil {
		p.l.Error("persist estimates",
			applogger.String("event_id", ev.ID), applogger.Error(err))
		p.metrics.RecordError("update_outcomes")
		return generated, 0, 0
	}

	if unresolved > 0 && estimated == 0 {
		p.metrics.RecordEventProcessed("unresolved")
	} else {
		p.metrics.RecordEventProcessed("estimated")
	}
	return generated, estimated, unresolved
}

// recomputeSignals rebuilds the per-token signals from every fully
// estimated event, not just this run's batch, so older still-relevant
// events keep contributing.
func (p *Pipeline) recomputeSignals(ctx context.Context, report *RunReport) error {
	complete, err := p.store.CompleteEvents(ctx, p.params.SignalLimit)
	if err != nil {
		p.metrics.RecordError("pull_complete")
		return fmt.Errorf("pull complete events: %w", err)
	}

	signals := p.calc.Compute(complete)
	if len(signals) == 0 {
		return nil
	}
	if err := p.signals.SaveSignals(ctx, signals); err != nil {
		p.metrics.RecordError("save_signals")
		return fmt.Errorf("save signals: %w", err)
	}

	report.RunID = signals[0].RunID
	report.Signals = len(signals)
	for _, s := range signals {
		p.metrics.RecordSignal(string(s.Class))
	}

	if p.pub != nil {
		if err := p.pub.PublishSignals(ctx, signals); err != nil {
			// stored signals are the source of truth, announce is best effort
			p.l.Warn("publish signals", applogger.Error(err))
			p.metrics.RecordError("publish_signals")
		}
	}
	return nil
}
