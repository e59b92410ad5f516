package breaker

import (
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		HalfOpenDelay:    60 * time.Second,
	}
}

// fakeClock lets tests advance time without sleeping
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := New(testConfig())

	for i := 0; i < 4; i++ {
		b.RecordFailure("p")
		if got := b.State("p"); got != StateClosed {
			t.Fatalf("after %d failures state = %s, want closed", i+1, got)
		}
		if !b.Allow("p") {
			t.Fatalf("call %d should be allowed before threshold", i+1)
		}
	}

	// The 5th failure opens the circuit, not before
	b.RecordFailure("p")
	if got := b.State("p"); got != StateOpen {
		t.Fatalf("after 5th failure state = %s, want open", got)
	}
	if b.Allow("p") {
		t.Error("open circuit must short-circuit calls")
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := New(testConfig())

	for i := 0; i < 4; i++ {
		b.RecordFailure("p")
	}
	b.RecordSuccess("p")

	// Counter was cleared; four more failures must not open
	for i := 0; i < 4; i++ {
		b.RecordFailure("p")
	}
	if got := b.State("p"); got != StateClosed {
		t.Errorf("state = %s, want closed after reset", got)
	}
}

func TestBreaker_WindowExpiryResetsCount(t *testing.T) {
	clock := newFakeClock()
	b := New(testConfig())
	b.SetClock(clock.Now)

	for i := 0; i < 4; i++ {
		b.RecordFailure("p")
	}

	// Failures older than the window no longer count
	clock.Advance(61 * time.Second)
	b.RecordFailure("p")
	if got := b.State("p"); got != StateClosed {
		t.Errorf("state = %s, want closed after window expiry", got)
	}
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	clock := newFakeClock()
	b := New(testConfig())
	b.SetClock(clock.Now)

	for i := 0; i < 5; i++ {
		b.RecordFailure("p")
	}
	if b.Allow("p") {
		t.Fatal("open circuit should reject before cooldown")
	}

	clock.Advance(61 * time.Second)

	// Exactly one caller is admitted as the probe, even under concurrency
	const callers = 20
	var wg sync.WaitGroup
	admitted := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted <- b.Allow("p")
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly 1 admitted probe, got %d", count)
	}
	if got := b.State("p"); got != StateHalfOpen {
		t.Errorf("state = %s, want half_open", got)
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	b := New(testConfig())
	b.SetClock(clock.Now)

	for i := 0; i < 5; i++ {
		b.RecordFailure("p")
	}
	clock.Advance(61 * time.Second)

	if !b.Allow("p") {
		t.Fatal("probe should be admitted after cooldown")
	}
	b.RecordSuccess("p")

	if got := b.State("p"); got != StateClosed {
		t.Fatalf("state = %s, want closed after successful probe", got)
	}
	if !b.Allow("p") {
		t.Error("closed circuit should allow calls")
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := New(testConfig())
	b.SetClock(clock.Now)

	for i := 0; i < 5; i++ {
		b.RecordFailure("p")
	}
	clock.Advance(61 * time.Second)

	if !b.Allow("p") {
		t.Fatal("probe should be admitted after cooldown")
	}
	b.RecordFailure("p")

	if got := b.State("p"); got != StateOpen {
		t.Fatalf("state = %s, want open after failed probe", got)
	}

	// Cooldown restarted: still rejecting before it elapses again
	clock.Advance(30 * time.Second)
	if b.Allow("p") {
		t.Error("circuit should stay open until the restarted cooldown elapses")
	}
	clock.Advance(31 * time.Second)
	if !b.Allow("p") {
		t.Error("a new probe should be admitted after the restarted cooldown")
	}
}

func TestBreaker_ReleaseFreesProbeSlot(t *testing.T) {
	clock := newFakeClock()
	b := New(testConfig())
	b.SetClock(clock.Now)

	for i := 0; i < 5; i++ {
		b.RecordFailure("p")
	}
	clock.Advance(61 * time.Second)

	if !b.Allow("p") {
		t.Fatal("probe should be admitted after cooldown")
	}

	// The probe's call produced no health verdict (e.g. bad input).
	// Releasing the slot must let the next caller probe instead of the
	// circuit staying half_open with the slot held forever.
	b.Release("p")

	if got := b.State("p"); got != StateHalfOpen {
		t.Fatalf("state = %s, want half_open after release", got)
	}
	if !b.Allow("p") {
		t.Fatal("released probe slot should admit a new probe")
	}
	b.RecordSuccess("p")
	if got := b.State("p"); got != StateClosed {
		t.Errorf("state = %s, want closed after successful second probe", got)
	}
}

func TestBreaker_ReleaseIsNoOpWhenClosed(t *testing.T) {
	b := New(testConfig())

	b.Release("p")
	if got := b.State("p"); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
	if !b.Allow("p") {
		t.Error("closed circuit should still allow calls")
	}
}

func TestBreaker_ProvidersIsolated(t *testing.T) {
	b := New(testConfig())

	for i := 0; i < 5; i++ {
		b.RecordFailure("bad")
	}
	if b.Allow("bad") {
		t.Error("bad provider circuit should be open")
	}
	if !b.Allow("good") {
		t.Error("unrelated provider must stay closed")
	}
}
