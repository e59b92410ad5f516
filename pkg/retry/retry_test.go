package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scoreflow/scoreflow/pkg/providers"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts: attempts,
		MinBackoff:  time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return providers.NewError(providers.KindServerError, "p", errors.New("boom"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_MaxAttemptsExhausted(t *testing.T) {
	calls := 0
	wrapped := providers.NewError(providers.KindTimeout, "p", errors.New("slow"))
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return wrapped
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 calls, got %d", calls)
	}
	// The last classified error must survive wrapping
	if providers.KindOf(err) != providers.KindTimeout {
		t.Errorf("expected timeout kind to propagate, got %s", providers.KindOf(err))
	}
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return providers.NewError(providers.KindValidation, "p", errors.New("bad input"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error should produce exactly 1 attempt, got %d", calls)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastConfig(3), func() error {
		calls++
		return providers.NewError(providers.KindServerError, "p", errors.New("boom"))
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if calls != 0 {
		t.Errorf("cancelled context should prevent any attempt, got %d", calls)
	}
}

func TestDo_OnRetryObserver(t *testing.T) {
	retries := 0
	cfg := fastConfig(3)
	cfg.OnRetry = func() { retries++ }

	err := Do(context.Background(), cfg, func() error {
		return providers.NewError(providers.KindTimeout, "p", errors.New("slow"))
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	// Three attempts means two scheduled retries
	if retries != 2 {
		t.Errorf("observer saw %d retries, want 2", retries)
	}
}

func TestBackoff(t *testing.T) {
	config := Config{
		MinBackoff: 100 * time.Millisecond,
		MaxBackoff: 400 * time.Millisecond,
	}

	for attempt, base := range []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		400 * time.Millisecond, // capped
	} {
		d := Backoff(config, attempt)
		if d < base {
			t.Errorf("attempt %d: backoff %v below base %v", attempt, d, base)
		}
		// Jitter adds at most 20%
		if max := base + base/5; d > max {
			t.Errorf("attempt %d: backoff %v above base+jitter %v", attempt, d, max)
		}
	}
}
