package providers

import (
	"testing"
)

func TestRegistry_ForTier(t *testing.T) {
	r := NewRegistry()
	r.Register(NewStaticProvider("alpha", 10))
	r.Register(NewStaticProvider("beta", 20))
	r.Register(NewStaticProvider("gamma", 30).SetEnabled(false))

	r.SetTier("premium", []string{"beta", "alpha", "gamma"})

	// Explicit tier list keeps order and drops disabled providers
	got := r.ForTier("premium")
	if len(got) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(got))
	}
	if got[0].Name() != "beta" || got[1].Name() != "alpha" {
		t.Errorf("expected [beta alpha], got [%s %s]", got[0].Name(), got[1].Name())
	}

	// Unassigned tier falls back to all enabled providers in registration order
	got = r.ForTier("free")
	if len(got) != 2 {
		t.Fatalf("expected 2 providers for fallback tier, got %d", len(got))
	}
	if got[0].Name() != "alpha" {
		t.Errorf("expected alpha first, got %s", got[0].Name())
	}
}

func TestRegistry_EnablementCheckedPerQuery(t *testing.T) {
	r := NewRegistry()
	p := NewStaticProvider("alpha", 10)
	r.Register(p)

	if len(r.ForTier("free")) != 1 {
		t.Fatal("expected alpha enabled")
	}

	// Runtime flip must be visible on the next query
	p.SetEnabled(false)
	if len(r.ForTier("free")) != 0 {
		t.Error("disabled provider still returned by ForTier")
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(NewStaticProvider("alpha", 10))

	if _, err := r.Get("alpha"); err != nil {
		t.Errorf("Get(alpha) failed: %v", err)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Error("expected error for unknown provider")
	}
}
