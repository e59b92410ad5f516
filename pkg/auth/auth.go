package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidKey = errors.New("invalid API key")
	ErrKeyRevoked = errors.New("API key revoked")
)

// keyPrefix identifies keys issued by this service. Full key format:
// sflow_<tenantID>_<random>.
const keyPrefix = "sflow"

// KeyInfo contains API key metadata. The plaintext key is returned
// once at issue time and never stored.
type KeyInfo struct {
	Hash      string
	TenantID  string
	CreatedAt time.Time
	Revoked   bool
}

// KeyManager issues and validates per-tenant API keys. Keys are
// stored as bcrypt hashes keyed by tenant.
type KeyManager struct {
	keys map[string][]*KeyInfo // tenantID -> issued keys
	mu   sync.RWMutex
}

// NewKeyManager creates a new API key manager
func NewKeyManager() *KeyManager {
	return &KeyManager{
		keys: make(map[string][]*KeyInfo),
	}
}

// Issue generates a new API key for a tenant and returns the
// plaintext key
func (km *KeyManager) Issue(tenantID string) (string, error) {
	keyBytes := make([]byte, 24)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}

	secret := base64.RawURLEncoding.EncodeToString(keyBytes)
	key := fmt.Sprintf("%s_%s_%s", keyPrefix, tenantID, secret)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	km.keys[tenantID] = append(km.keys[tenantID], &KeyInfo{
		Hash:      string(hash),
		TenantID:  tenantID,
		CreatedAt: time.Now(),
	})
	return key, nil
}

// Validate checks an API key and returns the tenant it belongs to
func (km *KeyManager) Validate(key string) (string, error) {
	tenantID, secret, err := splitKey(key)
	if err != nil {
		return "", err
	}

	km.mu.RLock()
	defer km.mu.RUnlock()

	for _, info := range km.keys[tenantID] {
		if bcrypt.CompareHashAndPassword([]byte(info.Hash), []byte(secret)) == nil {
			if info.Revoked {
				return "", ErrKeyRevoked
			}
			return tenantID, nil
		}
	}
	return "", ErrInvalidKey
}

// Revoke marks all keys for a tenant as revoked
func (km *KeyManager) Revoke(tenantID string) {
	km.mu.Lock()
	defer km.mu.Unlock()

	for _, info := range km.keys[tenantID] {
		info.Revoked = true
	}
}

// splitKey parses sflow_<tenantID>_<secret>. Tenant IDs may not
// contain underscores, so the last segment is always the secret.
func splitKey(key string) (tenantID, secret string, err error) {
	parts := strings.Split(key, "_")
	if len(parts) != 3 || parts[0] != keyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", ErrInvalidKey
	}
	return parts[1], parts[2], nil
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
