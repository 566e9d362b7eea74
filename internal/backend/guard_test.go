package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/sourcecheck/internal/cache"
	"github.com/ppiankov/sourcecheck/internal/model"
)

// fakeBackend fails the first failures calls with err, then answers
type fakeBackend struct {
	failures int32
	err      error
	calls    atomic.Int32
	delay    time.Duration

	mu      sync.Mutex
	active  int
	maxSeen int
}

func (f *fakeBackend) Name() string                         { return "fake" }
func (f *fakeBackend) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeBackend) enter() func() {
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}
}

func (f *fakeBackend) Similarity(ctx context.Context, a, b string) (float64, error) {
	defer f.enter()()
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if n <= f.failures {
		return 0, f.err
	}
	return 0.8, nil
}

func (f *fakeBackend) ClassifyEntailment(ctx context.Context, premise, hypothesis string) (Entailment, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return Entailment{}, f.err
	}
	return FromScores(map[Label]float64{LabelEntailment: 0.9, LabelNeutral: 0.1}), nil
}

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := retrySleepFunc
	retrySleepFunc = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	t.Cleanup(func() { retrySleepFunc = orig })
	return &delays
}

func testPolicy() model.BackendPolicy {
	p := model.DefaultPolicy().Backend
	p.RequestsPerSecond = 0
	return p
}

func TestGuardRetriesTransientErrors(t *testing.T) {
	delays := noSleep(t)
	inner := &fakeBackend{failures: 2, err: &StatusError{Provider: "fake", Code: 503, Message: "overloaded"}}
	g := NewGuard(inner, GuardOptions{Policy: testPolicy()})

	score, err := g.Similarity(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 0.8, score)
	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, *delays)
}

func TestGuardGivesUpAfterMaxRetries(t *testing.T) {
	noSleep(t)
	inner := &fakeBackend{failures: 100, err: &StatusError{Provider: "fake", Code: 429, Message: "slow down"}}
	policy := testPolicy()
	policy.MaxRetries = 2
	g := NewGuard(inner, GuardOptions{Policy: policy})

	_, err := g.ClassifyEntailment(context.Background(), "p", "h")
	require.Error(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())

	var statusErr *StatusError
	assert.ErrorAs(t, err, &statusErr)
}

func TestGuardDoesNotRetryPermanentErrors(t *testing.T) {
	noSleep(t)
	inner := &fakeBackend{failures: 100, err: &StatusError{Provider: "fake", Code: 401, Message: "bad key"}}
	g := NewGuard(inner, GuardOptions{Policy: testPolicy()})

	_, err := g.Similarity(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestGuardCachesResults(t *testing.T) {
	inner := &fakeBackend{}
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	g := NewGuard(inner, GuardOptions{Policy: testPolicy(), Cache: c})

	for i := 0; i < 3; i++ {
		score, err := g.Similarity(context.Background(), "a", "b")
		require.NoError(t, err)
		assert.Equal(t, 0.8, score)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	e, err := g.ClassifyEntailment(context.Background(), "a", "b")
	require.NoError(t, err)
	e2, err := g.ClassifyEntailment(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, e, e2)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestGuardBoundsConcurrency(t *testing.T) {
	inner := &fakeBackend{delay: 5 * time.Millisecond}
	policy := testPolicy()
	policy.MaxConcurrency = 2
	g := NewGuard(inner, GuardOptions{Policy: policy})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = g.Similarity(context.Background(), fmt.Sprint(i), "b")
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, inner.maxSeen, 2)
	assert.Equal(t, int32(10), inner.calls.Load())
}

func TestGuardStopsOnCancelledContext(t *testing.T) {
	inner := &fakeBackend{}
	g := NewGuard(inner, GuardOptions{Policy: testPolicy()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Similarity(ctx, "a", "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, inner.calls.Load())
}

func TestBackoffCapped(t *testing.T) {
	policy := testPolicy()
	policy.BaseBackoff = time.Second
	policy.MaxBackoff = 3 * time.Second
	g := NewGuard(&fakeBackend{}, GuardOptions{Policy: policy})

	assert.Equal(t, time.Second, g.backoff(1))
	assert.Equal(t, 2*time.Second, g.backoff(2))
	assert.Equal(t, 3*time.Second, g.backoff(3))
	assert.Equal(t, 3*time.Second, g.backoff(8))
}

func TestWrapSkipsLexical(t *testing.T) {
	lex := NewLexical()
	assert.Same(t, lex, Wrap(lex, GuardOptions{}))

	_, guarded := Wrap(&fakeBackend{}, GuardOptions{Policy: testPolicy()}).(*Guard)
	assert.True(t, guarded)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{&StatusError{Code: 503}, true},
		{&StatusError{Code: 500}, true},
		{&StatusError{Code: 429}, true},
		{&StatusError{Code: 404}, false},
		{&StatusError{Code: 401}, false},
		{fmt.Errorf("wrapped: %w", &StatusError{Code: 502}), true},
		{errors.New("execute request: connection refused"), true},
		{errors.New("read: connection reset by peer"), true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{ErrUnavailable, false},
		{errors.New("parse classification: bad json"), false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}
