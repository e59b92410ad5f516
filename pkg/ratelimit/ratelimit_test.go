package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestWindowLimiter_QuotaEnforced(t *testing.T) {
	l := NewWindowLimiter(60 * time.Second)

	// The quota-th submission succeeds
	for i := 0; i < 5; i++ {
		if !l.Allow("tenant-a", 5) {
			t.Fatalf("submission %d should be allowed", i+1)
		}
	}

	// The (quota+1)th is rejected
	if l.Allow("tenant-a", 5) {
		t.Error("6th submission within the window should be rejected")
	}
}

func TestWindowLimiter_WindowResets(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewWindowLimiter(60 * time.Second)
	l.SetClock(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		l.Allow("tenant-a", 5)
	}
	if l.Allow("tenant-a", 5) {
		t.Fatal("quota should be exhausted")
	}

	// A new window resets the count
	now = now.Add(61 * time.Second)
	if !l.Allow("tenant-a", 5) {
		t.Error("submission in a fresh window should be allowed")
	}
	if got := l.Usage("tenant-a"); got != 1 {
		t.Errorf("usage = %d, want 1 in fresh window", got)
	}
}

func TestWindowLimiter_TenantsIsolated(t *testing.T) {
	l := NewWindowLimiter(60 * time.Second)

	for i := 0; i < 5; i++ {
		l.Allow("tenant-a", 5)
	}
	if !l.Allow("tenant-b", 5) {
		t.Error("tenant-b should not be affected by tenant-a's quota")
	}
}

func TestWindowLimiter_ConcurrentSubmissions(t *testing.T) {
	l := NewWindowLimiter(60 * time.Second)

	const workers = 50
	const quota = 10

	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.Allow("tenant-a", quota)
		}()
	}
	wg.Wait()
	close(results)

	allowed := 0
	for ok := range results {
		if ok {
			allowed++
		}
	}
	if allowed != quota {
		t.Errorf("exactly %d concurrent submissions should pass, got %d", quota, allowed)
	}
}

func TestWindowLimiter_ZeroQuotaUnmetered(t *testing.T) {
	l := NewWindowLimiter(60 * time.Second)
	for i := 0; i < 100; i++ {
		if !l.Allow("tenant-a", 0) {
			t.Fatal("zero quota means unmetered")
		}
	}
}

func TestBurstLimiterMiddleware(t *testing.T) {
	l := NewBurstLimiter(10, 2)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := l.Middleware(func(r *http.Request) string { return "client" })(handler)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
		if rr.Code != http.StatusOK {
			t.Errorf("request %d should succeed, got %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("request past burst should get 429, got %d", rr.Code)
	}
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	if key := IPKeyFunc(req); key != "192.168.1.1:12345" {
		t.Errorf("expected RemoteAddr key, got %s", key)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	if key := IPKeyFunc(req); key != "203.0.113.1" {
		t.Errorf("expected X-Forwarded-For key, got %s", key)
	}
}
