package inference

import (
	"context"
	"sync"
	"time"

	domrepo "CryptoScanner/internal/domain/repository"
	"CryptoScanner/internal/service/ratelimit"
	applogger "CryptoScanner/pkg/logger"
)

// BackendSpec pairs a backend with its per-minute request capacity.
type BackendSpec struct {
	Backend Backend
	RPM     int
}

type backendState struct {
	backend   Backend
	budget    *ratelimit.Budget
	lastUsed  time.Time
	coolUntil time.Time
	disabled  bool
}

// Client dispatches inference requests across interchangeable backends
// under independent rate budgets, with cooldown on rate limits, backoff
// on server errors and failover between attempts. Callers never learn
// which backend served a request.
type Client struct {
	mu       sync.Mutex
	backends []*backendState

	cooldown time.Duration
	schedule []time.Duration
	window   time.Duration

	l       *applogger.Logger
	metrics domrepo.Metrics
	now     func() time.Time
}

// Option configures the rotation client.
type Option func(*Client)

// WithCooldown sets the pause applied to a backend after a rate-limit
// rejection.
func WithCooldown(d time.Duration) Option { return func(c *Client) { c.cooldown = d } }

// WithRetrySchedule overrides the server-error/timeout delay ladder.
func WithRetrySchedule(s []time.Duration) Option { return func(c *Client) { c.schedule = s } }

// WithWindow overrides the budget window (default one minute).
func WithWindow(d time.Duration) Option { return func(c *Client) { c.window = d } }

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option { return func(c *Client) { c.l = l } }

// WithMetrics injects a metrics recorder.
func WithMetrics(m domrepo.Metrics) Option { return func(c *Client) { c.metrics = m } }

// NewClient builds a rotation client over the given backends.
func NewClient(specs []BackendSpec, opts ...Option) *Client {
	c := &Client{
		cooldown: 10 * time.Second,
		schedule: DefaultRetrySchedule,
		window:   time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, s := range specs {
		if s.Backend == nil {
			continue
		}
		rpm := s.RPM
		if rpm <= 0 {
			rpm = 30
		}
		c.backends = append(c.backends, &backendState{
			backend: s.Backend,
			budget:  ratelimit.NewBudget(rpm, c.window),
		})
	}
	return c
}

// Backends reports the number of usable backends. A zero count is a
// structural precondition failure for the whole run.
func (c *Client) Backends() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, st := range c.backends {
		if !st.disabled {
			n++
		}
	}
	return n
}

// pick selects the least-recently-used backend that is enabled, out of
// cooldown and has window budget left, consuming one budget slot. When
// none are eligible it returns the wait until the soonest one could be,
// or ok=false when every backend is disabled.
func (c *Client) pick() (st *backendState, wait time.Duration, ok bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var chosen *backendState
	for _, s := range c.backends {
		if s.disabled || now.Before(s.coolUntil) || s.budget.Remaining(now) <= 0 {
			continue
		}
		if chosen == nil || s.lastUsed.Before(chosen.lastUsed) {
			chosen = s
		}
	}
	if chosen != nil {
		chosen.budget.TryAcquire(now)
		chosen.lastUsed = now
		return chosen, 0, true
	}

	var soonest time.Time
	for _, s := range c.backends {
		if s.disabled {
			continue
		}
		// a cooling backend with budget left is eligible the moment
		// cooldown ends; only an empty budget waits for the window
		at := now
		if s.budget.Remaining(now) <= 0 {
			at = s.budget.NextReset(now)
		}
		if s.coolUntil.After(at) {
			at = s.coolUntil
		}
		if soonest.IsZero() || at.Before(soonest) {
			soonest = at
		}
	}
	if soonest.IsZero() {
		return nil, 0, false // every backend disabled
	}
	wait = soonest.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return nil, wait, true
}

func (c *Client) release(st *backendState) {
	now := c.now()
	c.mu.Lock()
	st.budget.Release(now)
	st.coolUntil = now.Add(c.cooldown)
	c.mu.Unlock()
}

func (c *Client) disable(st *backendState) {
	c.mu.Lock()
	st.disabled = true
	c.mu.Unlock()
}

func (c *Client) record(provider, status string) {
	if c.metrics != nil {
		c.metrics.RecordInference(provider, status)
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Infer dispatches one inference request. Rate-limited backends are
// cooled down and skipped without consuming retry budget; server errors
// and timeouts walk the retry schedule across (possibly different)
// backends; after the schedule is exhausted the call fails with
// KindExhausted.
func (c *Client) Infer(ctx context.Context, req Request) (string, error) {
	if len(c.backends) == 0 {
		return "", &Error{Kind: KindNoProviders, Provider: "none"}
	}

	attempts := 0
	var lastErr error
	for {
		st, wait, alive := c.pick()
		if !alive {
			return "", &Error{Kind: KindNoProviders, Provider: "all", Err: lastErr}
		}
		if st == nil {
			if c.l != nil {
				c.l.Debug("all providers busy", applogger.Int64("wait_ms", wait.Milliseconds()))
			}
			if err := c.sleep(ctx, wait); err != nil {
				return "", &Error{Kind: KindExhausted, Provider: "all", Err: err}
			}
			continue
		}

		name := st.backend.Name()
		start := c.now()
		text, err := st.backend.Complete(ctx, req)
		if c.metrics != nil {
			c.metrics.RecordLatency("inference", c.now().Sub(start).Seconds())
		}
		if err == nil {
			c.record(name, "ok")
			return text, nil
		}
		lastErr = err

		switch KindOf(err) {
		case KindRateLimited:
			// not counted against the backend's quota, no retry consumed
			c.release(st)
			c.record(name, "rate_limited")
			if c.l != nil {
				c.l.Warn("provider rate limited", applogger.String("provider", name))
			}
			continue
		case KindUnauthorized:
			c.disable(st)
			c.record(name, "unauthorized")
			if c.l != nil {
				c.l.Warn("provider disabled, bad key", applogger.String("provider", name))
			}
			continue
		default:
			attempts++
			kind := KindOf(err)
			c.record(name, string(kind))
			delay, ok := RetryDelay(kind, attempts, c.schedule)
			if !ok {
				return "", &Error{Kind: KindExhausted, Provider: name, Err: err}
			}
			if c.l != nil {
				c.l.Warn("provider attempt failed",
					applogger.String("provider", name),
					applogger.String("kind", string(kind)),
					applogger.Int("attempt", attempts),
					applogger.Int64("delay_ms", delay.Milliseconds()))
			}
			if err := c.sleep(ctx, delay); err != nil {
				return "", &Error{Kind: KindExhausted, Provider: name, Err: err}
			}
		}
	}
}

var _ Service = (*Client)(nil)
