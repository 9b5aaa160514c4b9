package inference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend scripts a sequence of responses; once the script runs out
// it keeps returning the last entry.
type fakeBackend struct {
	mu     sync.Mutex
	name   string
	script []error
	calls  int
	text   string
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Complete(_ context.Context, _ Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.script) {
		if len(f.script) == 0 {
			return f.text, nil
		}
		idx = len(f.script) - 1
	}
	if err := f.script[idx]; err != nil {
		return "", err
	}
	return f.text, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestClient(specs []BackendSpec) *Client {
	return NewClient(specs,
		WithCooldown(20*time.Millisecond),
		WithRetrySchedule([]time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}),
		WithWindow(50*time.Millisecond),
	)
}

func TestInferHappyPath(t *testing.T) {
	b := &fakeBackend{name: "alpha", text: "hello"}
	c := newTestClient([]BackendSpec{{Backend: b, RPM: 10}})

	got, err := c.Infer(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, 1, b.callCount())
}

func TestInferRoundRobinSpreadsLoad(t *testing.T) {
	a := &fakeBackend{name: "alpha", text: "a"}
	b := &fakeBackend{name: "beta", text: "b"}
	c := newTestClient([]BackendSpec{{Backend: a, RPM: 100}, {Backend: b, RPM: 100}})

	for i := 0; i < 6; i++ {
		_, err := c.Infer(context.Background(), Request{Prompt: "x"})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, a.callCount(), "least-recently-used rotation should alternate")
	assert.Equal(t, 3, b.callCount())
}

func TestInferRateLimitFailsOverWithoutRetryCost(t *testing.T) {
	limited := &fakeBackend{name: "alpha", script: []error{
		&Error{Kind: KindRateLimited, Provider: "alpha", Status: 429},
	}}
	healthy := &fakeBackend{name: "beta", text: "ok"}
	c := newTestClient([]BackendSpec{{Backend: limited, RPM: 10}, {Backend: healthy, RPM: 10}})

	got, err := c.Infer(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	// the rate-limited backend stays in cooldown: next call avoids it
	got, err = c.Infer(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, limited.callCount())
}

func TestInferServerErrorRetriesThenSucceeds(t *testing.T) {
	flaky := &fakeBackend{name: "alpha", text: "recovered", script: []error{
		&Error{Kind: KindServerError, Provider: "alpha", Status: 503},
		nil,
	}}
	c := newTestClient([]BackendSpec{{Backend: flaky, RPM: 10}})

	got, err := c.Infer(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, 2, flaky.callCount())
}

func TestInferExhaustsSchedule(t *testing.T) {
	down := &fakeBackend{name: "alpha", script: []error{
		&Error{Kind: KindServerError, Provider: "alpha", Status: 500},
	}}
	c := newTestClient([]BackendSpec{{Backend: down, RPM: 10}})

	_, err := c.Infer(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, KindExhausted, KindOf(err))
	assert.True(t, IsExhausted(err))
	// 3-entry schedule: initial attempt plus one retry per entry
	assert.Equal(t, 4, down.callCount())
}

func TestInferDisablesUnauthorizedBackend(t *testing.T) {
	bad := &fakeBackend{name: "alpha", script: []error{
		&Error{Kind: KindUnauthorized, Provider: "alpha", Status: 401},
	}}
	good := &fakeBackend{name: "beta", text: "ok"}
	c := newTestClient([]BackendSpec{{Backend: bad, RPM: 10}, {Backend: good, RPM: 10}})

	for i := 0; i < 3; i++ {
		got, err := c.Infer(context.Background(), Request{Prompt: "x"})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
	}
	assert.Equal(t, 1, bad.callCount(), "disabled backend must not be retried")
	assert.Equal(t, 1, c.Backends())
}

func TestInferNoProvidersConfigured(t *testing.T) {
	c := newTestClient(nil)
	_, err := c.Infer(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, KindNoProviders, KindOf(err))
}

func TestInferAllBackendsRateLimitedThenExhausted(t *testing.T) {
	specs := make([]BackendSpec, 0, 5)
	backends := make([]*fakeBackend, 0, 5)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		fb := &fakeBackend{name: name, script: []error{
			&Error{Kind: KindRateLimited, Provider: name, Status: 429},
		}}
		backends = append(backends, fb)
		specs = append(specs, BackendSpec{Backend: fb, RPM: 10})
	}
	c := NewClient(specs,
		WithCooldown(time.Hour), // keep everything cooling for the whole test
		WithRetrySchedule([]time.Duration{time.Millisecond}),
		WithWindow(time.Hour),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Infer(ctx, Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	for _, fb := range backends {
		assert.Equal(t, 1, fb.callCount())
	}
}

func TestInferRecoversAfterCooldownWithinWindow(t *testing.T) {
	// sole backend rate-limits once; with budget left the client must
	// come back at cooldown expiry, not at the window rollover
	limited := &fakeBackend{name: "alpha", text: "back", script: []error{
		&Error{Kind: KindRateLimited, Provider: "alpha", Status: 429},
		nil,
	}}
	c := NewClient([]BackendSpec{{Backend: limited, RPM: 10}},
		WithCooldown(50*time.Millisecond),
		WithRetrySchedule([]time.Duration{time.Millisecond}),
		WithWindow(2*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	got, err := c.Infer(ctx, Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "back", got)
	assert.Equal(t, 2, limited.callCount())
	assert.Less(t, time.Since(start), 400*time.Millisecond,
		"recovery must track the cooldown, not the rate window")
}

func TestBudgetNeverExceededUnderLoad(t *testing.T) {
	small := &fakeBackend{name: "alpha", text: "a"}
	big := &fakeBackend{name: "beta", text: "b"}
	c := NewClient(
		[]BackendSpec{{Backend: small, RPM: 2}, {Backend: big, RPM: 100}},
		WithCooldown(time.Millisecond),
		WithRetrySchedule([]time.Duration{time.Millisecond}),
		WithWindow(time.Minute),
	)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Infer(context.Background(), Request{Prompt: "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, small.callCount(), 2,
		"backend usage must never exceed its window capacity")
	assert.Equal(t, 20, small.callCount()+big.callCount(),
		"excess requests must be served elsewhere, not dropped")
}
