package tenancy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/scoreflow/scoreflow/pkg/auth"
	"github.com/scoreflow/scoreflow/pkg/models"
	"github.com/scoreflow/scoreflow/pkg/store"
)

func setup(t *testing.T) (*auth.KeyManager, store.Store, string) {
	t.Helper()
	keys := auth.NewKeyManager()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	if err := s.CreateTenant(models.NewTenant("acme", "Acme Corp", "standard")); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	key, err := keys.Issue("acme")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return keys, s, key
}

func echoTenant(t *testing.T, got **models.Tenant) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := FromContext(r.Context())
		if ok {
			*got = tenant
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareResolvesTenant(t *testing.T) {
	keys, s, key := setup(t)
	mw := NewMiddleware(keys, s, nil)

	var got *models.Tenant
	handler := mw.Handler(echoTenant(t, &got))

	for _, set := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+key) },
		func(r *http.Request) { r.Header.Set("X-API-Key", key) },
	} {
		got = nil
		req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
		set(req)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got == nil || got.ID != "acme" {
			t.Errorf("tenant in context = %+v, want acme", got)
		}
	}
}

func TestMiddlewareRejectsMissingKey(t *testing.T) {
	keys, s, _ := setup(t)
	mw := NewMiddleware(keys, s, nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without credentials")
	}))

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareRejectsInvalidKey(t *testing.T) {
	keys, s, _ := setup(t)
	mw := NewMiddleware(keys, s, nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with bad credentials")
	}))

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	req.Header.Set("X-API-Key", "sflow_acme_bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareRejectsSuspendedTenant(t *testing.T) {
	keys, s, key := setup(t)

	suspended := models.NewTenant("acme", "Acme Corp", "standard")
	suspended.Status = models.TenantStatusSuspended
	if err := s.CreateTenant(suspended); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}

	mw := NewMiddleware(keys, s, nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached for suspended tenant")
	}))

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	req.Header.Set("X-API-Key", key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestMiddlewareOptionalMode(t *testing.T) {
	keys, s, _ := setup(t)
	mw := NewMiddleware(keys, s, nil)
	mw.Optional = true

	var got *models.Tenant
	handler := mw.Handler(echoTenant(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got != nil {
		t.Errorf("unexpected tenant in context: %+v", got)
	}
}
