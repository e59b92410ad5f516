package scoring

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scoreflow/scoreflow/pkg/breaker"
	"github.com/scoreflow/scoreflow/pkg/models"
	"github.com/scoreflow/scoreflow/pkg/providers"
	"github.com/scoreflow/scoreflow/pkg/retry"
)

// countingProvider wraps a provider and counts Analyze invocations
type countingProvider struct {
	providers.Provider
	calls int64
}

func (c *countingProvider) Analyze(ctx context.Context, input string) (*models.ProviderResult, error) {
	atomic.AddInt64(&c.calls, 1)
	return c.Provider.Analyze(ctx, input)
}

func (c *countingProvider) Calls() int64 {
	return atomic.LoadInt64(&c.calls)
}

func testInvokerConfig() Config {
	return Config{
		JobTimeout:    2 * time.Second,
		MinSuccessful: 2,
		Retry: retry.Config{
			MaxAttempts: 1,
			MinBackoff:  time.Millisecond,
			MaxBackoff:  time.Millisecond,
		},
	}
}

func TestInvoker_EndToEndPartialSuccess(t *testing.T) {
	r := providers.NewRegistry()
	r.Register(providers.NewStaticProvider("a", 18))
	r.Register(providers.NewStaticProvider("b", 22))
	r.Register(providers.NewStaticProvider("c", 20))
	r.Register(providers.NewStaticProvider("d", 0).WithFailure(providers.KindServerError))
	r.Register(providers.NewStaticProvider("e", 0).WithFailure(providers.KindTimeout))

	inv := NewInvoker(r, breaker.New(breaker.DefaultConfig()), testInvokerConfig())

	agg, err := inv.Score(context.Background(), "résumé text", "free")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if agg.Score != 20 {
		t.Errorf("score = %d, want 20", agg.Score)
	}
	if agg.SucceededCount != 3 || agg.FailedCount != 2 {
		t.Errorf("counts = (%d, %d), want (3, 2)", agg.SucceededCount, agg.FailedCount)
	}
}

func TestInvoker_AllProvidersFail(t *testing.T) {
	r := providers.NewRegistry()
	r.Register(providers.NewStaticProvider("a", 0).WithFailure(providers.KindServerError))
	r.Register(providers.NewStaticProvider("b", 0).WithFailure(providers.KindServerError))

	inv := NewInvoker(r, breaker.New(breaker.DefaultConfig()), testInvokerConfig())

	_, err := inv.Score(context.Background(), "input", "free")
	if err != ErrAllProvidersFailed {
		t.Errorf("err = %v, want ErrAllProvidersFailed", err)
	}
}

func TestInvoker_NoEnabledProviders(t *testing.T) {
	r := providers.NewRegistry()
	r.Register(providers.NewStaticProvider("a", 10).SetEnabled(false))

	inv := NewInvoker(r, breaker.New(breaker.DefaultConfig()), testInvokerConfig())

	_, err := inv.Score(context.Background(), "input", "free")
	if err != ErrAllProvidersFailed {
		t.Errorf("err = %v, want ErrAllProvidersFailed", err)
	}
}

func TestInvoker_CircuitOpenSkipsProvider(t *testing.T) {
	bad := &countingProvider{Provider: providers.NewStaticProvider("bad", 0).WithFailure(providers.KindServerError)}
	good := providers.NewStaticProvider("good", 50)

	r := providers.NewRegistry()
	r.Register(bad)
	r.Register(good)

	b := breaker.New(breaker.Config{
		FailureThreshold: 3,
		Window:           time.Minute,
		HalfOpenDelay:    time.Minute,
	})
	inv := NewInvoker(r, b, testInvokerConfig())

	// Three failing jobs open the bad provider's circuit
	for i := 0; i < 3; i++ {
		if _, err := inv.Score(context.Background(), "input", "free"); err != nil {
			t.Fatalf("job %d: %v", i, err)
		}
	}
	if got := b.State("bad"); got != breaker.StateOpen {
		t.Fatalf("bad circuit = %s, want open", got)
	}
	before := bad.Calls()

	// While open the provider is never invoked, but the job still completes
	agg, err := inv.Score(context.Background(), "input", "free")
	if err != nil {
		t.Fatalf("Score with open circuit failed: %v", err)
	}
	if bad.Calls() != before {
		t.Errorf("provider invoked %d times while circuit open, want 0", bad.Calls()-before)
	}
	if agg.SucceededCount != 1 || agg.FailedCount != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", agg.SucceededCount, agg.FailedCount)
	}
	if agg.Confidence != models.ConfidenceLow {
		t.Errorf("confidence = %s, want low with one contributor", agg.Confidence)
	}
}

func TestInvoker_RetrySequenceIsOneCircuitFailure(t *testing.T) {
	bad := providers.NewStaticProvider("bad", 0).WithFailure(providers.KindServerError)
	r := providers.NewRegistry()
	r.Register(bad)
	r.Register(providers.NewStaticProvider("good", 60))

	b := breaker.New(breaker.Config{
		FailureThreshold: 2,
		Window:           time.Minute,
		HalfOpenDelay:    time.Minute,
	})

	cfg := testInvokerConfig()
	cfg.Retry.MaxAttempts = 3 // three attempts per job, still one circuit failure
	inv := NewInvoker(r, b, cfg)

	if _, err := inv.Score(context.Background(), "input", "free"); err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if got := b.State("bad"); got != breaker.StateClosed {
		t.Errorf("circuit = %s after one exhausted sequence, want closed (threshold 2)", got)
	}

	if _, err := inv.Score(context.Background(), "input", "free"); err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if got := b.State("bad"); got != breaker.StateOpen {
		t.Errorf("circuit = %s after two exhausted sequences, want open", got)
	}
}

func TestInvoker_JobDeadlineBoundsSlowProvider(t *testing.T) {
	r := providers.NewRegistry()
	r.Register(providers.NewStaticProvider("fast", 30))
	r.Register(providers.NewStaticProvider("slow", 90).WithDelay(5 * time.Second))

	cfg := testInvokerConfig()
	cfg.JobTimeout = 200 * time.Millisecond
	cfg.MinSuccessful = 1
	inv := NewInvoker(r, breaker.New(breaker.DefaultConfig()), cfg)

	start := time.Now()
	agg, err := inv.Score(context.Background(), "input", "free")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("job took %v, deadline was 200ms", elapsed)
	}
	if agg.Score != 30 {
		t.Errorf("score = %d, want 30 from the fast provider only", agg.Score)
	}
}

func TestInvoker_ValidationErrorFreesProbeSlot(t *testing.T) {
	r := providers.NewRegistry()
	r.Register(providers.NewStaticProvider("p", 0).WithFailure(providers.KindValidation))

	b := breaker.New(breaker.Config{
		FailureThreshold: 2,
		Window:           time.Minute,
		HalfOpenDelay:    time.Minute,
	})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return now })

	b.RecordFailure("p")
	b.RecordFailure("p")
	if got := b.State("p"); got != breaker.StateOpen {
		t.Fatalf("circuit = %s, want open", got)
	}
	now = now.Add(61 * time.Second)

	cfg := testInvokerConfig()
	cfg.MinSuccessful = 1
	inv := NewInvoker(r, b, cfg)

	// The admitted probe ends in a validation error, which says nothing
	// about provider health. The probe slot must come back so later
	// callers can probe; otherwise the circuit holds half_open forever.
	if _, err := inv.Score(context.Background(), "bad input", "free"); err != ErrAllProvidersFailed {
		t.Fatalf("err = %v, want ErrAllProvidersFailed", err)
	}
	if got := b.State("p"); got != breaker.StateHalfOpen {
		t.Fatalf("circuit = %s, want half_open", got)
	}
	if !b.Allow("p") {
		t.Error("next caller should be admitted as a fresh probe")
	}
}

// fakeRecorder captures metrics callbacks from the invoker
type fakeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	retries  int
}

func (f *fakeRecorder) RecordProviderCall(provider, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomes == nil {
		f.outcomes = make(map[string]int)
	}
	f.outcomes[provider+"/"+outcome]++
}

func (f *fakeRecorder) RecordRetry() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries++
}

func (f *fakeRecorder) snapshot() (map[string]int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.outcomes))
	for k, v := range f.outcomes {
		out[k] = v
	}
	return out, f.retries
}

func TestInvoker_RecorderSeesRetries(t *testing.T) {
	r := providers.NewRegistry()
	r.Register(providers.NewStaticProvider("flaky", 0).WithFailure(providers.KindTimeout))
	r.Register(providers.NewStaticProvider("good", 40))

	cfg := testInvokerConfig()
	cfg.Retry.MaxAttempts = 3
	cfg.MinSuccessful = 1
	inv := NewInvoker(r, breaker.New(breaker.DefaultConfig()), cfg)

	rec := &fakeRecorder{}
	inv.SetMetricsRecorder(rec)

	if _, err := inv.Score(context.Background(), "input", "free"); err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	outcomes, retries := rec.snapshot()
	// The flaky provider exhausts three attempts, so two retries land
	// on the counter
	if retries != 2 {
		t.Errorf("recorded %d retries, want 2", retries)
	}
	if outcomes["good/success"] != 1 {
		t.Errorf("good/success = %d, want 1", outcomes["good/success"])
	}
	if outcomes["flaky/timeout"] != 1 {
		t.Errorf("flaky/timeout = %d, want 1", outcomes["flaky/timeout"])
	}
}

func TestInvoker_ProvidersNames(t *testing.T) {
	r := providers.NewRegistry()
	r.Register(providers.NewStaticProvider("a", 10))
	r.Register(providers.NewStaticProvider("b", 20).SetEnabled(false))

	inv := NewInvoker(r, breaker.New(breaker.DefaultConfig()), testInvokerConfig())
	names := inv.Providers("free")
	if len(names) != 1 || names[0] != "a" {
		t.Errorf("Providers = %v, want [a]", names)
	}
}
