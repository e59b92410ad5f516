package store

import (
	"errors"
	"time"

	"github.com/scoreflow/scoreflow/pkg/models"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrTenantNotFound = errors.New("tenant not found")
	ErrNoPendingJobs  = errors.New("no pending jobs")

	ErrUnsupportedDatabase = errors.New("unsupported database type")
)

// Store defines the interface for job and tenant persistence.
// Memory, SQLite and PostgreSQL implement this interface.
type Store interface {
	// Job operations
	CreateJob(job *models.Job) error
	GetJob(id string) (*models.Job, error)
	ListJobs(status models.JobStatus, tenantID string) ([]*models.Job, error)

	// ClaimNextPending atomically selects the oldest pending job, flips it
	// to processing and assigns the worker. Each job is claimed by exactly
	// one worker; ErrNoPendingJobs when the queue is empty.
	ClaimNextPending(workerID string) (*models.Job, error)

	// CompleteJob and FailJob finalize a processing job
	CompleteJob(id string, result *models.AggregatedResult) error
	FailJob(id string, errorMsg string) error

	// Tenant operations
	CreateTenant(tenant *models.Tenant) error
	GetTenant(id string) (*models.Tenant, error)
	ListTenants() ([]*models.Tenant, error)

	// Metrics operations
	JobMetrics() (*JobMetrics, error)

	// Lifecycle
	Close() error
	HealthCheck() error
}

// JobMetrics contains aggregated job statistics for the metrics endpoint
type JobMetrics struct {
	JobsByStatus    map[models.JobStatus]int
	JobsByTier      map[string]int
	CacheHits       int
	TotalJobs       int
	PendingJobs     int
	AvgDurationSecs float64
}

// Config holds database configuration
type Config struct {
	Driver string // "memory", "sqlite" or "postgres"
	DSN    string // Connection string (or file path for SQLite)

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Driver {
	case "postgres", "postgresql":
		return NewPostgresStore(config)
	case "sqlite":
		path := config.DSN
		if path == "" {
			path = "scoreflow.db"
		}
		return NewSQLiteStore(path)
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, ErrUnsupportedDatabase
	}
}
