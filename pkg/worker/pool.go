package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scoreflow/scoreflow/pkg/cache"
	"github.com/scoreflow/scoreflow/pkg/logging"
	"github.com/scoreflow/scoreflow/pkg/models"
	"github.com/scoreflow/scoreflow/pkg/store"
)

// Scorer produces an aggregated result for an input. Satisfied by
// scoring.Invoker.
type Scorer interface {
	Score(ctx context.Context, input, tier string) (*models.AggregatedResult, error)
}

// Config holds worker pool settings
type Config struct {
	// Workers is the number of concurrent job processors
	Workers int
	// PollInterval is how long a worker sleeps when no jobs are pending
	PollInterval time.Duration
}

// DefaultConfig returns sensible worker pool defaults
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		PollInterval: 250 * time.Millisecond,
	}
}

// Pool runs a fixed set of workers that claim pending jobs from the
// store, score them through the provider invoker, and persist the
// outcome. Completed results are also written to the scoring cache so
// equivalent future inputs can skip provider fan-out entirely.
type Pool struct {
	store   store.Store
	scorer  Scorer
	cache   *cache.Cache
	logger  *logging.Logger
	config  Config
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewPool creates a worker pool. The cache may be nil to disable
// result caching.
func NewPool(s store.Store, scorer Scorer, c *cache.Cache, logger *logging.Logger, config Config) *Pool {
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Pool{
		store:  s,
		scorer: scorer,
		cache:  c,
		logger: logger,
		config: config,
	}
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.logger.Info("Starting worker pool", map[string]interface{}{
		"workers":       p.config.Workers,
		"poll_interval": p.config.PollInterval.String(),
	})

	for i := 0; i < p.config.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		p.wg.Add(1)
		go p.run(ctx, workerID)
	}
}

// Stop signals all workers to stop and waits for in-flight jobs to
// finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *Pool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()

	log := p.logger.WithField("worker", workerID)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.store.ClaimNextPending(workerID)
		if err == store.ErrNoPendingJobs {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.config.PollInterval):
			}
			continue
		}
		if err != nil {
			log.Error("Failed to claim job", map[string]interface{}{"error": err.Error()})
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.config.PollInterval):
			}
			continue
		}

		p.process(ctx, log, job)
	}
}

// process scores a single claimed job and persists the outcome. A
// panic in the scoring path marks the job failed instead of killing
// the worker.
func (p *Pool) process(ctx context.Context, log *logging.Logger, job *models.Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while processing job", map[string]interface{}{
				"job_id": job.ID,
				"panic":  fmt.Sprintf("%v", r),
			})
			if err := p.store.FailJob(job.ID, fmt.Sprintf("internal error: %v", r)); err != nil {
				log.Error("Failed to mark panicked job as failed", map[string]interface{}{
					"job_id": job.ID,
					"error":  err.Error(),
				})
			}
		}
	}()

	// Scoring runs detached from pool cancellation: a claimed job is
	// bounded by its own deadline, and Stop must drain it rather than
	// abort its fan-out into a terminal failure.
	scoreCtx := context.WithoutCancel(ctx)

	started := time.Now()
	result, err := p.scorer.Score(scoreCtx, job.Input, job.Tier)
	if err != nil {
		log.Warn("Job failed", map[string]interface{}{
			"job_id":   job.ID,
			"error":    err.Error(),
			"duration": time.Since(started).String(),
		})
		if ferr := p.store.FailJob(job.ID, err.Error()); ferr != nil {
			log.Error("Failed to persist job failure", map[string]interface{}{
				"job_id": job.ID,
				"error":  ferr.Error(),
			})
		}
		return
	}

	if cerr := p.store.CompleteJob(job.ID, result); cerr != nil {
		log.Error("Failed to persist job result", map[string]interface{}{
			"job_id": job.ID,
			"error":  cerr.Error(),
		})
		return
	}

	if p.cache != nil {
		p.cache.Set(job.Input, result)
	}

	log.Info("Job completed", map[string]interface{}{
		"job_id":     job.ID,
		"score":      result.Score,
		"confidence": string(result.Confidence),
		"providers":  len(result.Providers),
		"duration":   time.Since(started).String(),
	})
}
