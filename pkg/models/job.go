package models

import (
	"time"
)

// JobStatus represents the status of an analysis job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents one unit of submitted analysis work, tracked from
// pending to a terminal status
type Job struct {
	ID          string            `json:"id"`
	Input       string            `json:"input"`
	Tier        string            `json:"tier"`
	TenantID    string            `json:"tenant_id,omitempty"`
	Status      JobStatus         `json:"status"`
	WorkerID    string            `json:"worker_id,omitempty"`
	CacheHit    bool              `json:"cache_hit,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Result      *AggregatedResult `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// JobRequest represents a request to create a new analysis job
type JobRequest struct {
	Input string `json:"input"`
	Tier  string `json:"tier,omitempty"`
}

// JobResponse is returned on submission; the caller polls with the job ID
type JobResponse struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Providers []string  `json:"providers,omitempty"`
}

// ProviderResult is the outcome of a single provider call for one job.
// It is created once per provider per job attempt and never mutated.
type ProviderResult struct {
	Provider  string            `json:"provider"`
	Score     float64           `json:"score"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Succeeded bool              `json:"succeeded"`
	Error     string            `json:"error,omitempty"`
	Duration  time.Duration     `json:"duration_ns,omitempty"`
}

// Confidence qualifies an aggregated result based on how many providers
// contributed to it
type Confidence string

const (
	ConfidenceNormal Confidence = "normal"
	ConfidenceLow    Confidence = "low"
)

// AggregatedResult combines the ProviderResults of one job into a single
// score. SucceededCount is at least 1 for any completed job.
type AggregatedResult struct {
	Score          int              `json:"score"`
	Confidence     Confidence       `json:"confidence"`
	Providers      []ProviderResult `json:"providers"`
	SucceededCount int              `json:"succeeded_count"`
	FailedCount    int              `json:"failed_count"`
}
