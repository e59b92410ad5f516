package providers

import (
	"context"
	"time"

	"github.com/scoreflow/scoreflow/pkg/models"
)

// StaticProvider returns a fixed score. Used for development tiers and
// smoke testing the pipeline without remote backends.
type StaticProvider struct {
	name     string
	score    float64
	enabled  bool
	delay    time.Duration
	failWith *Error
}

// NewStaticProvider creates a provider that always returns score
func NewStaticProvider(name string, score float64) *StaticProvider {
	return &StaticProvider{name: name, score: score, enabled: true}
}

// WithDelay makes the provider sleep before answering
func (p *StaticProvider) WithDelay(d time.Duration) *StaticProvider {
	p.delay = d
	return p
}

// WithFailure makes the provider always fail with the given classification
func (p *StaticProvider) WithFailure(kind Kind) *StaticProvider {
	p.failWith = NewError(kind, p.name, nil)
	return p
}

// SetEnabled toggles enablement
func (p *StaticProvider) SetEnabled(enabled bool) *StaticProvider {
	p.enabled = enabled
	return p
}

func (p *StaticProvider) Name() string {
	return p.name
}

func (p *StaticProvider) Enabled() bool {
	return p.enabled
}

func (p *StaticProvider) Analyze(ctx context.Context, input string) (*models.ProviderResult, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, Classify(p.name, ctx.Err())
		}
	}
	if p.failWith != nil {
		return nil, p.failWith
	}
	return &models.ProviderResult{
		Provider:  p.name,
		Score:     p.score,
		Metadata:  map[string]string{"source": "static"},
		Succeeded: true,
		Duration:  p.delay,
	}, nil
}
