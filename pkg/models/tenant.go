package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tenant represents an organization or customer submitting analysis jobs
type Tenant struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Status    TenantStatus `json:"status"`
	Tier      string       `json:"tier"` // free, standard, premium
	Quotas    TenantQuotas `json:"quotas"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TenantStatus represents the operational status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// TenantQuotas defines resource limits for a tenant
type TenantQuotas struct {
	RequestsPerWindow int `json:"requests_per_window"` // Submissions per rate-limit window
	MaxConcurrentJobs int `json:"max_concurrent_jobs"` // Jobs in pending/processing at once
}

// DefaultQuotas returns default quotas based on tier
func DefaultQuotas(tier string) TenantQuotas {
	switch tier {
	case "free":
		return TenantQuotas{
			RequestsPerWindow: 10,
			MaxConcurrentJobs: 2,
		}
	case "standard":
		return TenantQuotas{
			RequestsPerWindow: 100,
			MaxConcurrentJobs: 10,
		}
	case "premium":
		return TenantQuotas{
			RequestsPerWindow: 1000,
			MaxConcurrentJobs: 50,
		}
	default:
		return DefaultQuotas("free")
	}
}

// Validate checks if the tenant configuration is valid
func (t *Tenant) Validate() error {
	if t.ID == "" {
		return errors.New("tenant ID is required")
	}
	// IDs are embedded in underscore-delimited API keys.
	if strings.Contains(t.ID, "_") {
		return errors.New("tenant ID must not contain underscores")
	}
	if t.Name == "" {
		return errors.New("tenant name is required")
	}
	if len(t.Name) < 3 || len(t.Name) > 50 {
		return errors.New("tenant name must be between 3 and 50 characters")
	}
	if t.Tier != "" && !isValidTier(t.Tier) {
		return fmt.Errorf("invalid tier: %s", t.Tier)
	}
	return nil
}

// IsActive returns true if tenant can submit jobs
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

func isValidTier(tier string) bool {
	switch tier {
	case "free", "standard", "premium":
		return true
	default:
		return false
	}
}

// NewTenant creates a new tenant with default quotas for its tier
func NewTenant(id, name, tier string) *Tenant {
	if tier == "" {
		tier = "free"
	}
	return &Tenant{
		ID:        id,
		Name:      name,
		Status:    TenantStatusActive,
		Tier:      tier,
		Quotas:    DefaultQuotas(tier),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}
