package providers

import (
	"context"

	"github.com/scoreflow/scoreflow/pkg/models"
)

// Provider is an independently callable remote scoring backend.
//
// Analyze must respect the context deadline. Failures come back as a
// classified *Error so callers can decide whether to retry and how to
// record the outcome; only KindValidation marks the input itself as
// unrecoverable. Retry and backoff never live inside a provider.
//
// Implementations are stateless and safe for concurrent use across jobs.
type Provider interface {
	Name() string
	Enabled() bool
	Analyze(ctx context.Context, input string) (*models.ProviderResult, error)
}
