package usecase

import (
	"context"
	"fmt"
	"time"

	applogger "CryptoScanner/pkg/logger"
	"CryptoScanner/pkg/queue"
)

const runMessageType = "pipeline.run"

// RunPayload travels through the job queue; Reason tags what triggered
// the run for log correlation.
type RunPayload struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// PipelineRunJob executes one pipeline run per queued message, so runs
// from multiple triggers serialize through the queue instead of
// overlapping.
type PipelineRunJob struct {
	pipeline *Pipeline
	l        *applogger.Logger
}

func NewPipelineRunJob(pipeline *Pipeline, l *applogger.Logger) *PipelineRunJob {
	return &PipelineRunJob{pipeline: pipeline, l: l}
}

func (j *PipelineRunJob) Name() string { return "pipeline_run" }
func (j *PipelineRunJob) Type() string { return runMessageType }

func (j *PipelineRunJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[RunPayload](payload)
	if err != nil {
		return err
	}
	j.l.Info("queued pipeline run",
		applogger.String("reason", p.Reason),
		applogger.Duration("queued_for", time.Since(p.RequestedAt)))

	_, err = j.pipeline.Run(ctx)
	return err
}

var _ queue.Job = (*PipelineRunJob)(nil)

// RunScheduler enqueues a pipeline run at a fixed interval.
type RunScheduler struct {
	q        queue.QueueService
	interval time.Duration
	l        *applogger.Logger
	stopCh   chan struct{}
}

func NewRunScheduler(q queue.QueueService, interval time.Duration, l *applogger.Logger) *RunScheduler {
	return &RunScheduler{q: q, interval: interval, l: l, stopCh: make(chan struct{})}
}

// Start enqueues one run immediately, then one per interval.
func (s *RunScheduler) Start(ctx context.Context) {
	go func() {
		s.enqueue(ctx, "startup")
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.enqueue(ctx, "interval")
			}
		}
	}()
}

func (s *RunScheduler) Stop() { close(s.stopCh) }

func (s *RunScheduler) enqueue(ctx context.Context, reason string) {
	payload := RunPayload{Reason: reason, RequestedAt: time.Now().UTC()}
	if err := s.q.PublishMessage(ctx, runMessageType, payload); err != nil {
		s.l.Error("enqueue pipeline run", applogger.Error(err))
	}
}

// InlineRunner executes queued messages synchronously in-process. It
// stands in for the Redis queue when Redis is not configured, keeping
// the scheduler path identical in both deployments.
type InlineRunner struct {
	job queue.Job
}

func NewInlineRunner(job queue.Job) *InlineRunner {
	return &InlineRunner{job: job}
}

func (r *InlineRunner) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	if msgType != r.job.Type() {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}
	return r.job.Handle(ctx, payload)
}

var _ queue.QueueService = (*InlineRunner)(nil)
