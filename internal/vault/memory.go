package vault

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sirosfoundation/go-wallet-exchange/internal/didkey"
)

// MemoryVault keeps key material in process memory. Development and
// tests only.
type MemoryVault struct {
	mu   sync.RWMutex
	keys map[string]*ecdsa.PrivateKey
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		keys: make(map[string]*ecdsa.PrivateKey),
	}
}

// GenerateKey creates a P-256 key pair and returns its did:key.
func (v *MemoryVault) GenerateKey(ctx context.Context) (string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}

	did, err := didkey.FromECDSAPublicKey(&key.PublicKey)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	v.keys[did] = key
	v.mu.Unlock()

	return did, nil
}

// Sign signs claims with the key bound to did.
func (v *MemoryVault) Sign(ctx context.Context, did string, claims map[string]any, purpose string) (string, error) {
	v.mu.RLock()
	key, ok := v.keys[did]
	v.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, did)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims(claims))
	token.Header["typ"] = typHeader(purpose)
	token.Header["kid"] = did

	return token.SignedString(key)
}
