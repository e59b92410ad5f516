package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/scoreflow/scoreflow/pkg/auth"
	"github.com/scoreflow/scoreflow/pkg/logging"
	"github.com/scoreflow/scoreflow/pkg/models"
	"github.com/scoreflow/scoreflow/pkg/store"
)

type contextKey string

const tenantKey contextKey = "tenant"

// FromContext returns the tenant attached to a request context, if any
func FromContext(ctx context.Context) (*models.Tenant, bool) {
	tenant, ok := ctx.Value(tenantKey).(*models.Tenant)
	return tenant, ok
}

// WithTenant attaches a tenant to a context
func WithTenant(ctx context.Context, tenant *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// Middleware resolves the caller's tenant from the API key and
// attaches it to the request context. Requests without a valid key
// for an active tenant are rejected before reaching handlers.
type Middleware struct {
	keys   *auth.KeyManager
	store  store.Store
	logger *logging.Logger
	// Optional indicates keys are accepted but not required; requests
	// without a key proceed with no tenant in context.
	Optional bool
}

// NewMiddleware creates tenant resolution middleware
func NewMiddleware(keys *auth.KeyManager, s store.Store, logger *logging.Logger) *Middleware {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Middleware{keys: keys, store: s, logger: logger}
}

// Handler wraps an http.Handler with tenant resolution
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractKey(r)
		if key == "" {
			if m.Optional {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}

		tenantID, err := m.keys.Validate(key)
		if err != nil {
			m.logger.Warn("Rejected API key", map[string]interface{}{
				"remote": r.RemoteAddr,
				"error":  err.Error(),
			})
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		tenant, err := m.store.GetTenant(tenantID)
		if err != nil {
			if errors.Is(err, store.ErrTenantNotFound) {
				writeError(w, http.StatusUnauthorized, "unknown tenant")
				return
			}
			writeError(w, http.StatusInternalServerError, "tenant lookup failed")
			return
		}
		if tenant.Status != models.TenantStatusActive {
			writeError(w, http.StatusForbidden, "tenant is suspended")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
	})
}

// extractKey reads the API key from the Authorization bearer header
// or the X-API-Key header
func extractKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
