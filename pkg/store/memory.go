package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/scoreflow/scoreflow/pkg/models"
)

// MemoryStore is an in-memory implementation of the data store.
// The default for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*models.Job
	pending []string // FIFO queue of pending job IDs
	tenants map[string]*models.Tenant
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*models.Job),
		tenants: make(map[string]*models.Tenant),
	}
}

// CreateJob adds a new job; pending jobs join the claim queue
func (s *MemoryStore) CreateJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	stored := *job
	s.jobs[job.ID] = &stored
	if stored.Status == models.JobStatusPending {
		s.pending = append(s.pending, job.ID)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *MemoryStore) GetJob(id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

// ListJobs returns jobs filtered by status and tenant; empty filters match all
func (s *MemoryStore) ListJobs(status models.JobStatus, tenantID string) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		if tenantID != "" && job.TenantID != tenantID {
			continue
		}
		copied := *job
		out = append(out, &copied)
	}
	return out, nil
}

// ClaimNextPending atomically claims the oldest pending job for a worker
func (s *MemoryStore) ClaimNextPending(workerID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) > 0 {
		id := s.pending[0]
		s.pending = s.pending[1:]

		job, ok := s.jobs[id]
		if !ok || job.Status != models.JobStatusPending {
			continue // finalized out of band, skip
		}

		now := time.Now()
		job.Status = models.JobStatusProcessing
		job.WorkerID = workerID
		job.StartedAt = &now

		copied := *job
		return &copied, nil
	}

	return nil, ErrNoPendingJobs
}

// CompleteJob finalizes a job with its aggregated result
func (s *MemoryStore) CompleteJob(id string, result *models.AggregatedResult) error {
	return s.finalize(id, models.JobStatusCompleted, result, "")
}

// FailJob finalizes a job with a terminal error
func (s *MemoryStore) FailJob(id string, errorMsg string) error {
	return s.finalize(id, models.JobStatusFailed, nil, errorMsg)
}

func (s *MemoryStore) finalize(id string, status models.JobStatus, result *models.AggregatedResult, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if err := models.ValidateTransition(job.Status, status); err != nil {
		return err
	}

	now := time.Now()
	job.Status = status
	job.Result = result
	job.Error = errorMsg
	job.CompletedAt = &now
	return nil
}

// CreateTenant adds a tenant
func (s *MemoryStore) CreateTenant(tenant *models.Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *tenant
	s.tenants[tenant.ID] = &copied
	return nil
}

// GetTenant retrieves a tenant by ID
func (s *MemoryStore) GetTenant(id string) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	copied := *tenant
	return &copied, nil
}

// ListTenants returns all tenants
func (s *MemoryStore) ListTenants() ([]*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Tenant, 0, len(s.tenants))
	for _, tenant := range s.tenants {
		copied := *tenant
		out = append(out, &copied)
	}
	return out, nil
}

// JobMetrics aggregates job statistics
func (s *MemoryStore) JobMetrics() (*JobMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &JobMetrics{
		JobsByStatus: make(map[models.JobStatus]int),
		JobsByTier:   make(map[string]int),
	}

	var durationSum float64
	completed := 0
	for _, job := range s.jobs {
		m.TotalJobs++
		m.JobsByStatus[job.Status]++
		m.JobsByTier[job.Tier]++
		if job.CacheHit {
			m.CacheHits++
		}
		if job.Status == models.JobStatusPending {
			m.PendingJobs++
		}
		if job.CompletedAt != nil && job.StartedAt != nil {
			durationSum += job.CompletedAt.Sub(*job.StartedAt).Seconds()
			completed++
		}
	}
	if completed > 0 {
		m.AvgDurationSecs = durationSum / float64(completed)
	}
	return m, nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

// HealthCheck always succeeds for the memory store
func (s *MemoryStore) HealthCheck() error {
	return nil
}
