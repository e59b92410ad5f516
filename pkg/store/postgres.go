package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/scoreflow/scoreflow/pkg/models"
)

// PostgresStore is a PostgreSQL-based implementation of the data store,
// suitable for multi-instance deployments: the claim query uses
// FOR UPDATE SKIP LOCKED so concurrent workers never grab the same job.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(config Config) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'free',
		tenant_id TEXT,
		status TEXT NOT NULL,
		worker_id TEXT,
		cache_hit BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		result JSONB,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		tier TEXT NOT NULL,
		quotas JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_pending ON jobs(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_tenant ON jobs(tenant_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateJob inserts a new job
func (s *PostgresStore) CreateJob(job *models.Job) error {
	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, input, tier, tenant_id, status, worker_id, cache_hit,
		                  created_at, started_at, completed_at, result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, job.ID, job.Input, job.Tier, job.TenantID, job.Status, job.WorkerID, job.CacheHit,
		job.CreatedAt, job.StartedAt, job.CompletedAt, resultJSON, job.Error)
	return err
}

// GetJob retrieves a job by ID
func (s *PostgresStore) GetJob(id string) (*models.Job, error) {
	row := s.db.QueryRow(`
		SELECT id, input, tier, tenant_id, status, worker_id, cache_hit,
		       created_at, started_at, completed_at, result, error
		FROM jobs WHERE id = $1
	`, id)
	return scanJob(row)
}

// ListJobs returns jobs filtered by status and tenant; empty filters match all
func (s *PostgresStore) ListJobs(status models.JobStatus, tenantID string) ([]*models.Job, error) {
	query := `
		SELECT id, input, tier, tenant_id, status, worker_id, cache_hit,
		       created_at, started_at, completed_at, result, error
		FROM jobs WHERE ($1 = '' OR status = $1) AND ($2 = '' OR tenant_id = $2)
		ORDER BY created_at DESC`

	rows, err := s.db.Query(query, string(status), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNextPending atomically claims the oldest pending job for a worker
func (s *PostgresStore) ClaimNextPending(workerID string) (*models.Job, error) {
	var id string
	err := s.db.QueryRow(`
		UPDATE jobs SET status = $1, worker_id = $2, started_at = NOW()
		WHERE id = (
			SELECT id FROM jobs WHERE status = $3
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id
	`, models.JobStatusProcessing, workerID, models.JobStatusPending).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNoPendingJobs
	}
	if err != nil {
		return nil, err
	}
	return s.GetJob(id)
}

// CompleteJob finalizes a job with its aggregated result
func (s *PostgresStore) CompleteJob(id string, result *models.AggregatedResult) error {
	resultJSON, err := marshalResult(result)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE jobs SET status = $1, result = $2, completed_at = NOW()
		WHERE id = $3 AND status = $4
	`, models.JobStatusCompleted, resultJSON, id, models.JobStatusProcessing)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// FailJob finalizes a job with a terminal error
func (s *PostgresStore) FailJob(id string, errorMsg string) error {
	res, err := s.db.Exec(`
		UPDATE jobs SET status = $1, error = $2, completed_at = NOW()
		WHERE id = $3 AND status IN ($4, $5)
	`, models.JobStatusFailed, errorMsg, id,
		models.JobStatusProcessing, models.JobStatusPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// CreateTenant inserts a tenant
func (s *PostgresStore) CreateTenant(tenant *models.Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	quotas, err := json.Marshal(tenant.Quotas)
	if err != nil {
		return fmt.Errorf("failed to marshal quotas: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO tenants (id, name, status, tier, quotas, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, status = EXCLUDED.status, tier = EXCLUDED.tier,
			quotas = EXCLUDED.quotas, updated_at = EXCLUDED.updated_at
	`, tenant.ID, tenant.Name, tenant.Status, tenant.Tier, string(quotas),
		tenant.CreatedAt, tenant.UpdatedAt)
	return err
}

// GetTenant retrieves a tenant by ID
func (s *PostgresStore) GetTenant(id string) (*models.Tenant, error) {
	var tenant models.Tenant
	var quotasJSON string

	err := s.db.QueryRow(`
		SELECT id, name, status, tier, quotas, created_at, updated_at
		FROM tenants WHERE id = $1
	`, id).Scan(&tenant.ID, &tenant.Name, &tenant.Status, &tenant.Tier,
		&quotasJSON, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(quotasJSON), &tenant.Quotas); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quotas: %w", err)
	}
	return &tenant, nil
}

// ListTenants returns all tenants
func (s *PostgresStore) ListTenants() ([]*models.Tenant, error) {
	rows, err := s.db.Query(`
		SELECT id, name, status, tier, quotas, created_at, updated_at
		FROM tenants ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		var tenant models.Tenant
		var quotasJSON string
		if err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.Status, &tenant.Tier,
			&quotasJSON, &tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(quotasJSON), &tenant.Quotas); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quotas: %w", err)
		}
		tenants = append(tenants, &tenant)
	}
	return tenants, rows.Err()
}

// JobMetrics aggregates job statistics without loading full rows
func (s *PostgresStore) JobMetrics() (*JobMetrics, error) {
	m := &JobMetrics{
		JobsByStatus: make(map[models.JobStatus]int),
		JobsByTier:   make(map[string]int),
	}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status models.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		m.JobsByStatus[status] = count
		m.TotalJobs += count
		if status == models.JobStatusPending {
			m.PendingJobs = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tierRows, err := s.db.Query(`SELECT tier, COUNT(*) FROM jobs GROUP BY tier`)
	if err != nil {
		return nil, err
	}
	defer tierRows.Close()
	for tierRows.Next() {
		var tier string
		var count int
		if err := tierRows.Scan(&tier, &count); err != nil {
			return nil, err
		}
		m.JobsByTier[tier] = count
	}
	if err := tierRows.Err(); err != nil {
		return nil, err
	}

	s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE cache_hit`).Scan(&m.CacheHits)
	s.db.QueryRow(`
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at))), 0)
		FROM jobs WHERE completed_at IS NOT NULL AND started_at IS NOT NULL
	`).Scan(&m.AvgDurationSecs)

	return m, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database
func (s *PostgresStore) HealthCheck() error {
	return s.db.Ping()
}
