package scoring

import (
	"context"
	"time"

	"github.com/scoreflow/scoreflow/pkg/breaker"
	"github.com/scoreflow/scoreflow/pkg/models"
	"github.com/scoreflow/scoreflow/pkg/providers"
	"github.com/scoreflow/scoreflow/pkg/retry"
)

// Config bounds one job's fan-out
type Config struct {
	JobTimeout       time.Duration // Hard deadline for the whole fan-out, retries included
	MinSuccessful    int           // Below this many successes the result is low-confidence
	StrictMinSuccess bool          // Fail instead of flagging when below MinSuccessful
	Retry            retry.Config
}

// DefaultConfig returns the standard fan-out bounds
func DefaultConfig() Config {
	return Config{
		JobTimeout:    30 * time.Second,
		MinSuccessful: 2,
		Retry:         retry.DefaultConfig(),
	}
}

// MetricsRecorder receives per-call outcomes and retry events for export
type MetricsRecorder interface {
	RecordProviderCall(provider, outcome string)
	RecordRetry()
}

// Invoker fans a job out to all admitted providers concurrently and
// aggregates whatever succeeds within the job deadline
type Invoker struct {
	registry *providers.Registry
	breaker  *breaker.Breaker
	config   Config
	recorder MetricsRecorder
}

// SetMetricsRecorder sets the recorder for provider call outcomes
func (inv *Invoker) SetMetricsRecorder(recorder MetricsRecorder) {
	inv.recorder = recorder
}

// NewInvoker creates an invoker over the given registry and breaker
func NewInvoker(registry *providers.Registry, b *breaker.Breaker, config Config) *Invoker {
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}
	if config.MinSuccessful <= 0 {
		config.MinSuccessful = DefaultConfig().MinSuccessful
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = retry.DefaultConfig()
	}
	return &Invoker{
		registry: registry,
		breaker:  b,
		config:   config,
	}
}

// Providers returns the names of the enabled providers for a tier,
// as reported on submission
func (inv *Invoker) Providers(tier string) []string {
	set := inv.registry.ForTier(tier)
	names := make([]string, 0, len(set))
	for _, p := range set {
		names = append(names, p.Name())
	}
	return names
}

// Score runs the fan-out for one input. Enabled providers whose circuit is
// open are skipped up front and recorded as unavailable, never invoked.
// The remainder run concurrently, each wrapped by the retry policy; the
// job-level deadline finalizes with whatever has succeeded so far, so one
// slow provider can degrade confidence but never block the job.
func (inv *Invoker) Score(ctx context.Context, input, tier string) (*models.AggregatedResult, error) {
	set := inv.registry.ForTier(tier)
	if len(set) == 0 {
		return nil, ErrAllProvidersFailed
	}

	ctx, cancel := context.WithTimeout(ctx, inv.config.JobTimeout)
	defer cancel()

	results := make([]models.ProviderResult, 0, len(set))
	resultCh := make(chan models.ProviderResult, len(set))

	inFlight := 0
	for _, p := range set {
		if !inv.breaker.Allow(p.Name()) {
			// Skipped, not attempted: feeds aggregation as a failure but
			// is never recorded against the circuit.
			results = append(results, models.ProviderResult{
				Provider:  p.Name(),
				Succeeded: false,
				Error:     providers.NewError(providers.KindCircuitOpen, p.Name(), nil).Error(),
			})
			inv.record(p.Name(), string(providers.KindCircuitOpen))
			continue
		}

		inFlight++
		go func(p providers.Provider) {
			resultCh <- inv.callOne(ctx, p, input)
		}(p)
	}

	for i := 0; i < inFlight; i++ {
		select {
		case r := <-resultCh:
			results = append(results, r)
		case <-ctx.Done():
			// Deadline hit: finalize with whatever arrived. Stragglers
			// drain into the buffered channel and are dropped.
			return Aggregate(results, inv.config.MinSuccessful, inv.config.StrictMinSuccess)
		}
	}

	return Aggregate(results, inv.config.MinSuccessful, inv.config.StrictMinSuccess)
}

// callOne runs one provider call under the retry policy and records the
// final outcome with the circuit breaker: one exhausted retry sequence is
// one circuit failure, not one per attempt.
func (inv *Invoker) callOne(ctx context.Context, p providers.Provider, input string) models.ProviderResult {
	start := time.Now()

	retryConfig := inv.config.Retry
	if inv.recorder != nil {
		retryConfig.OnRetry = inv.recorder.RecordRetry
	}

	var result *models.ProviderResult
	err := retry.Do(ctx, retryConfig, func() error {
		r, callErr := p.Analyze(ctx, input)
		if callErr != nil {
			return callErr
		}
		result = r
		return nil
	})

	if err != nil {
		// Only remote-side failures count toward the circuit; a bad
		// input says nothing about the provider's health, so any probe
		// slot this call held is released unrecorded.
		if providers.KindOf(err) == providers.KindValidation {
			inv.breaker.Release(p.Name())
		} else {
			inv.breaker.RecordFailure(p.Name())
		}
		inv.record(p.Name(), string(providers.KindOf(err)))
		return models.ProviderResult{
			Provider:  p.Name(),
			Succeeded: false,
			Error:     err.Error(),
			Duration:  time.Since(start),
		}
	}

	inv.breaker.RecordSuccess(p.Name())
	inv.record(p.Name(), "success")
	out := *result
	if out.Duration == 0 {
		out.Duration = time.Since(start)
	}
	return out
}

func (inv *Invoker) record(provider, outcome string) {
	if inv.recorder != nil {
		inv.recorder.RecordProviderCall(provider, outcome)
	}
}
