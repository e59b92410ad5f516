package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestIssueAndValidate(t *testing.T) {
	km := NewKeyManager()

	key, err := km.Issue("acme")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !strings.HasPrefix(key, "sflow_acme_") {
		t.Errorf("key = %q, want sflow_acme_ prefix", key)
	}

	tenantID, err := km.Validate(key)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if tenantID != "acme" {
		t.Errorf("tenantID = %q, want acme", tenantID)
	}
}

func TestValidateRejectsMalformedKeys(t *testing.T) {
	km := NewKeyManager()
	if _, err := km.Issue("acme"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	for _, key := range []string{
		"",
		"sflow_acme",
		"other_acme_secret",
		"sflow__secret",
		"sflow_acme_",
		"sflow_acme_wrongsecret",
		"sflow_other_secret",
	} {
		if _, err := km.Validate(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestRevoke(t *testing.T) {
	km := NewKeyManager()

	key, err := km.Issue("acme")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	km.Revoke("acme")

	if _, err := km.Validate(key); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("Validate after revoke = %v, want ErrKeyRevoked", err)
	}
}

func TestMultipleKeysPerTenant(t *testing.T) {
	km := NewKeyManager()

	first, _ := km.Issue("acme")
	second, _ := km.Issue("acme")
	if first == second {
		t.Fatal("issued keys are not unique")
	}

	for _, key := range []string{first, second} {
		if _, err := km.Validate(key); err != nil {
			t.Errorf("Validate(%q) failed: %v", key, err)
		}
	}
}

func TestSecureCompare(t *testing.T) {
	if !SecureCompare("abc", "abc") {
		t.Error("equal strings compared unequal")
	}
	if SecureCompare("abc", "abd") {
		t.Error("unequal strings compared equal")
	}
}
