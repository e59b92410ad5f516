package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/scoreflow/scoreflow/pkg/models"
)

// SQLiteStore is a SQLite-based implementation of the data store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL for concurrent readers, busy timeout for writer contention,
	// immediate txlock so claims take the write lock up front.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY under concurrent claims
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'free',
		tenant_id TEXT,
		status TEXT NOT NULL,
		worker_id TEXT,
		cache_hit BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		result TEXT,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		tier TEXT NOT NULL,
		quotas TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_pending ON jobs(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_tenant ON jobs(tenant_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateJob inserts a new job
func (s *SQLiteStore) CreateJob(job *models.Job) error {
	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, input, tier, tenant_id, status, worker_id, cache_hit,
		                  created_at, started_at, completed_at, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Input, job.Tier, job.TenantID, job.Status, job.WorkerID, job.CacheHit,
		job.CreatedAt, job.StartedAt, job.CompletedAt, resultJSON, job.Error)
	return err
}

// GetJob retrieves a job by ID
func (s *SQLiteStore) GetJob(id string) (*models.Job, error) {
	row := s.db.QueryRow(`
		SELECT id, input, tier, tenant_id, status, worker_id, cache_hit,
		       created_at, started_at, completed_at, result, error
		FROM jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

// ListJobs returns jobs filtered by status and tenant; empty filters match all
func (s *SQLiteStore) ListJobs(status models.JobStatus, tenantID string) ([]*models.Job, error) {
	query := `
		SELECT id, input, tier, tenant_id, status, worker_id, cache_hit,
		       created_at, started_at, completed_at, result, error
		FROM jobs WHERE 1=1`
	args := []interface{}{}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, tenantID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
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

// ClaimNextPending atomically claims the oldest pending job for a worker.
// The immediate-lock transaction serializes claims, so each job goes to
// exactly one worker.
func (s *SQLiteStore) ClaimNextPending(workerID string) (*models.Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRow(`
		SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1
	`, models.JobStatusPending).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNoPendingJobs
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res, err := tx.Exec(`
		UPDATE jobs SET status = ?, worker_id = ?, started_at = ?
		WHERE id = ? AND status = ?
	`, models.JobStatusProcessing, workerID, now, id, models.JobStatusPending)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNoPendingJobs
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetJob(id)
}

// CompleteJob finalizes a job with its aggregated result
func (s *SQLiteStore) CompleteJob(id string, result *models.AggregatedResult) error {
	resultJSON, err := marshalResult(result)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, result = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, models.JobStatusCompleted, resultJSON, time.Now(), id, models.JobStatusProcessing)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// FailJob finalizes a job with a terminal error
func (s *SQLiteStore) FailJob(id string, errorMsg string) error {
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, error = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, models.JobStatusFailed, errorMsg, time.Now(), id,
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
func (s *SQLiteStore) CreateTenant(tenant *models.Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	quotas, err := json.Marshal(tenant.Quotas)
	if err != nil {
		return fmt.Errorf("failed to marshal quotas: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO tenants (id, name, status, tier, quotas, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tenant.ID, tenant.Name, tenant.Status, tenant.Tier, string(quotas),
		tenant.CreatedAt, tenant.UpdatedAt)
	return err
}

// GetTenant retrieves a tenant by ID
func (s *SQLiteStore) GetTenant(id string) (*models.Tenant, error) {
	var tenant models.Tenant
	var quotasJSON string

	err := s.db.QueryRow(`
		SELECT id, name, status, tier, quotas, created_at, updated_at
		FROM tenants WHERE id = ?
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
func (s *SQLiteStore) ListTenants() ([]*models.Tenant, error) {
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
func (s *SQLiteStore) JobMetrics() (*JobMetrics, error) {
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

	s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE cache_hit = 1`).Scan(&m.CacheHits)
	s.db.QueryRow(`
		SELECT COALESCE(AVG(strftime('%s', completed_at) - strftime('%s', started_at)), 0)
		FROM jobs WHERE completed_at IS NOT NULL AND started_at IS NOT NULL
	`).Scan(&m.AvgDurationSecs)

	return m, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var resultJSON sql.NullString
	var workerID, tenantID, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &job.Input, &job.Tier, &tenantID, &job.Status, &workerID,
		&job.CacheHit, &job.CreatedAt, &startedAt, &completedAt, &resultJSON, &errMsg)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	job.TenantID = tenantID.String
	job.WorkerID = workerID.String
	job.Error = errMsg.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result models.AggregatedResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}

func marshalResult(result *models.AggregatedResult) (sql.NullString, error) {
	if result == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal result: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
