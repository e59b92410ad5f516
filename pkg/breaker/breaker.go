package breaker

import (
	"sync"
	"time"
)

// State represents the circuit state for one provider
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds circuit breaker thresholds
type Config struct {
	FailureThreshold int           // Failures within Window that open the circuit
	Window           time.Duration // Rolling window for counting failures
	HalfOpenDelay    time.Duration // Cooldown before a single probe is admitted
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		HalfOpenDelay:    60 * time.Second,
	}
}

// circuit is the per-provider failure tracker
type circuit struct {
	state         State
	failureCount  int
	windowStarted time.Time
	openedAt      time.Time
	probing       bool // single-admission gate for the half-open probe
}

// Breaker tracks per-provider circuit state. All calls go through
// Allow/RecordSuccess/RecordFailure; the state map is the only mutable
// shared data and is guarded by one mutex.
type Breaker struct {
	mu       sync.Mutex
	config   Config
	circuits map[string]*circuit
	now      func() time.Time // injectable for tests
}

// New creates a breaker with the given config
func New(config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	if config.HalfOpenDelay <= 0 {
		config.HalfOpenDelay = DefaultConfig().HalfOpenDelay
	}
	return &Breaker{
		config:   config,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

func (b *Breaker) circuitFor(provider string) *circuit {
	c, ok := b.circuits[provider]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[provider] = c
	}
	return c
}

// Allow reports whether a call to the provider may proceed. When the
// cooldown of an open circuit has elapsed, exactly one caller is admitted
// as the probe; concurrent callers keep short-circuiting until the probe
// outcome is recorded or the slot is released.
func (b *Breaker) Allow(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(provider)
	switch c.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(c.openedAt) > b.config.HalfOpenDelay {
			c.state = StateHalfOpen
			c.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if c.probing {
			return false
		}
		c.probing = true
		return true
	}
	return false
}

// RecordSuccess records a successful call. A successful probe closes the
// circuit and clears the failure history; in closed state it resets the
// consecutive failure count.
func (b *Breaker) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(provider)
	switch c.state {
	case StateHalfOpen:
		c.state = StateClosed
		c.failureCount = 0
		c.probing = false
	case StateClosed:
		c.failureCount = 0
	}
}

// Release returns an admitted call slot without recording an outcome.
// Used when a call ends in a verdict that says nothing about provider
// health, such as input validation: the probe slot is freed so the next
// caller can probe instead of the circuit holding it forever.
func (b *Breaker) Release(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(provider)
	if c.state == StateHalfOpen {
		c.probing = false
	}
}

// RecordFailure records a failed call. One exhausted retry sequence counts
// as one failure. Reaching the threshold within the window opens the
// circuit; a failed probe re-opens it and restarts the cooldown.
func (b *Breaker) RecordFailure(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	c := b.circuitFor(provider)
	switch c.state {
	case StateHalfOpen:
		c.state = StateOpen
		c.openedAt = now
		c.probing = false
	case StateClosed:
		if c.failureCount == 0 || now.Sub(c.windowStarted) > b.config.Window {
			c.failureCount = 0
			c.windowStarted = now
		}
		c.failureCount++
		if c.failureCount >= b.config.FailureThreshold {
			c.state = StateOpen
			c.openedAt = now
		}
	case StateOpen:
		// Late failures from calls admitted before opening; already open.
	}
}

// Snapshot is a read-only view of one provider's circuit
type Snapshot struct {
	Provider     string    `json:"provider"`
	State        State     `json:"state"`
	FailureCount int       `json:"failure_count"`
	OpenedAt     time.Time `json:"opened_at,omitempty"`
}

// State returns the current state for a provider
func (b *Breaker) State(provider string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.circuitFor(provider).state
}

// Snapshots returns the current state of every tracked circuit
func (b *Breaker) Snapshots() []Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Snapshot, 0, len(b.circuits))
	for name, c := range b.circuits {
		out = append(out, Snapshot{
			Provider:     name,
			State:        c.state,
			FailureCount: c.failureCount,
			OpenedAt:     c.openedAt,
		})
	}
	return out
}
