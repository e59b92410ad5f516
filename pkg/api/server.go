package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/scoreflow/scoreflow/pkg/auth"
	"github.com/scoreflow/scoreflow/pkg/breaker"
	"github.com/scoreflow/scoreflow/pkg/cache"
	"github.com/scoreflow/scoreflow/pkg/logging"
	"github.com/scoreflow/scoreflow/pkg/models"
	"github.com/scoreflow/scoreflow/pkg/providers"
	"github.com/scoreflow/scoreflow/pkg/ratelimit"
	"github.com/scoreflow/scoreflow/pkg/store"
	"github.com/scoreflow/scoreflow/pkg/tenancy"
)

// maxInputLen bounds submitted inputs; larger payloads are rejected
// before a job is created.
const maxInputLen = 8192

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Handler handles scoring API requests
type Handler struct {
	store    store.Store
	cache    *cache.Cache
	limiter  *ratelimit.WindowLimiter
	registry *providers.Registry
	breaker  *breaker.Breaker
	keys     *auth.KeyManager
	logger   *logging.Logger
}

// NewHandler creates a new API handler. The cache and key manager may
// be nil to disable caching and key issuance respectively.
func NewHandler(s store.Store, c *cache.Cache, limiter *ratelimit.WindowLimiter, registry *providers.Registry, b *breaker.Breaker, keys *auth.KeyManager, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Handler{
		store:    s,
		cache:    c,
		limiter:  limiter,
		registry: registry,
		breaker:  b,
		keys:     keys,
		logger:   logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/analyze", h.SubmitJob).Methods("POST")
	r.HandleFunc("/results/{id}", h.GetResult).Methods("GET")

	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/providers", h.ListProviders).Methods("GET")

	r.HandleFunc("/tenants", h.CreateTenant).Methods("POST")
	r.HandleFunc("/tenants", h.ListTenants).Methods("GET")
	r.HandleFunc("/tenants/{id}", h.GetTenant).Methods("GET")

	r.HandleFunc("/stats", h.Stats).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// SubmitJob accepts an analysis request and enqueues a job. The
// caller polls /results/{id} for the outcome. Inputs with a fresh
// cached score complete immediately without provider fan-out.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req models.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	input := strings.TrimSpace(req.Input)
	if input == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "input is required")
		return
	}
	if len(input) > maxInputLen {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "input exceeds maximum length")
		return
	}

	tier := req.Tier
	if tier == "" {
		tier = "free"
	}

	var tenantID string
	if tenant, ok := tenancy.FromContext(r.Context()); ok {
		tenantID = tenant.ID
		if h.limiter != nil && !h.limiter.Allow(tenant.ID, tenant.Quotas.RequestsPerWindow) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "tenant request quota exhausted")
			return
		}
		if tenant.Tier != "" {
			tier = tenant.Tier
		}
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		Input:     input,
		Tier:      tier,
		TenantID:  tenantID,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now(),
	}

	if h.cache != nil {
		if cached := h.cache.Get(input); cached != nil {
			now := time.Now()
			job.Status = models.JobStatusCompleted
			job.CacheHit = true
			job.CompletedAt = &now
			job.Result = cached
		}
	}

	if err := h.store.CreateJob(job); err != nil {
		h.logger.Error("Failed to create job", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to create job")
		return
	}

	h.logger.Info("Job accepted", map[string]interface{}{
		"job_id":    job.ID,
		"tier":      job.Tier,
		"tenant":    tenantID,
		"cache_hit": job.CacheHit,
	})

	var names []string
	if h.registry != nil && !job.CacheHit {
		for _, p := range h.registry.ForTier(tier) {
			names = append(names, p.Name())
		}
	}

	writeJSON(w, http.StatusAccepted, models.JobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Providers: names,
	})
}

// GetResult returns the current state of a job. A job that exists but
// has not finished reports its status with no result attached.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.store.GetJob(jobID)
	if err != nil {
		if err == store.ErrJobNotFound {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
			return
		}
		h.logger.Error("Failed to get job", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to get job")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// ListJobs returns jobs, optionally filtered by status and tenant
// query parameters
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := models.JobStatus(r.URL.Query().Get("status"))
	tenantID := r.URL.Query().Get("tenant")

	jobs, err := h.store.ListJobs(status, tenantID)
	if err != nil {
		h.logger.Error("Failed to list jobs", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to list jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

type providerStatus struct {
	Name         string        `json:"name"`
	Enabled      bool          `json:"enabled"`
	CircuitState breaker.State `json:"circuit_state"`
}

// ListProviders returns every registered provider with its enablement
// and circuit state
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	var out []providerStatus
	if h.registry != nil {
		for _, p := range h.registry.All() {
			status := providerStatus{
				Name:         p.Name(),
				Enabled:      p.Enabled(),
				CircuitState: breaker.StateClosed,
			}
			if h.breaker != nil {
				status.CircuitState = h.breaker.State(p.Name())
			}
			out = append(out, status)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": out,
		"count":     len(out),
	})
}

type createTenantRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tier string `json:"tier"`
}

type createTenantResponse struct {
	Tenant *models.Tenant `json:"tenant"`
	APIKey string         `json:"api_key,omitempty"`
}

// CreateTenant registers a tenant and issues its API key. The key is
// returned once and only its hash is retained.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	tenant := models.NewTenant(req.ID, req.Name, req.Tier)
	if err := tenant.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if _, err := h.store.GetTenant(tenant.ID); err == nil {
		writeError(w, http.StatusConflict, "CONFLICT", "tenant already exists")
		return
	}

	if err := h.store.CreateTenant(tenant); err != nil {
		h.logger.Error("Failed to create tenant", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to create tenant")
		return
	}

	resp := createTenantResponse{Tenant: tenant}
	if h.keys != nil {
		key, err := h.keys.Issue(tenant.ID)
		if err != nil {
			h.logger.Error("Failed to issue API key", map[string]interface{}{"error": err.Error()})
			writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to issue API key")
			return
		}
		resp.APIKey = key
	}

	h.logger.Info("Tenant created", map[string]interface{}{
		"tenant": tenant.ID,
		"tier":   tenant.Tier,
	})
	writeJSON(w, http.StatusCreated, resp)
}

// ListTenants returns all tenants
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.ListTenants()
	if err != nil {
		h.logger.Error("Failed to list tenants", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to list tenants")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenants": tenants,
		"count":   len(tenants),
	})
}

// GetTenant returns one tenant by ID
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.store.GetTenant(mux.Vars(r)["id"])
	if err != nil {
		if err == store.ErrTenantNotFound {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to get tenant")
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// Stats returns job metrics, cache stats, and circuit snapshots
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.JobMetrics()
	if err != nil {
		h.logger.Error("Failed to collect job metrics", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to collect metrics")
		return
	}

	out := map[string]interface{}{"jobs": metrics}
	if h.cache != nil {
		entries, hits, misses := h.cache.Stats()
		out["cache"] = map[string]interface{}{
			"entries": entries,
			"hits":    hits,
			"misses":  misses,
		}
	}
	if h.breaker != nil {
		out["circuits"] = h.breaker.Snapshots()
	}

	writeJSON(w, http.StatusOK, out)
}

// Health returns service health, including store reachability
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
