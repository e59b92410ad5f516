package scoring

import (
	"errors"
	"math"

	"github.com/scoreflow/scoreflow/pkg/models"
)

// ErrAllProvidersFailed is the terminal job failure when no provider
// produced a usable score
var ErrAllProvidersFailed = errors.New("all providers failed")

// Aggregate combines the per-provider results of one job into a single
// score: the rounded mean of the successful scores. Aggregation is
// commutative over the result set, so arrival order does not matter.
//
// Partial success is a first-class outcome: fewer successes than
// minSuccessful flags the result low-confidence instead of failing it,
// unless strict mode is on. Zero successes always fail.
func Aggregate(results []models.ProviderResult, minSuccessful int, strict bool) (*models.AggregatedResult, error) {
	var sum float64
	succeeded := 0
	for _, r := range results {
		if r.Succeeded {
			sum += r.Score
			succeeded++
		}
	}

	if succeeded == 0 {
		return nil, ErrAllProvidersFailed
	}
	if strict && succeeded < minSuccessful {
		return nil, ErrAllProvidersFailed
	}

	confidence := models.ConfidenceNormal
	if succeeded < minSuccessful {
		confidence = models.ConfidenceLow
	}

	return &models.AggregatedResult{
		Score:          int(math.Round(sum / float64(succeeded))),
		Confidence:     confidence,
		Providers:      results,
		SucceededCount: succeeded,
		FailedCount:    len(results) - succeeded,
	}, nil
}
