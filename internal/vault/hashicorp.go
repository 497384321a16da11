package vault

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/didkey"
)

const privateKeyField = "privateKey"

// HashicorpVault stores key material in a HashiCorp Vault KV v2 secret
// engine, one secret per DID. Signing happens in process with keys read
// from the vault on demand.
type HashicorpVault struct {
	client *vaultapi.Client
	mount  string
	logger *zap.Logger
}

// NewHashicorpVault connects to the vault at address using token auth.
// mount names the KV v2 secret engine holding holder keys.
func NewHashicorpVault(address, token, mount string, logger *zap.Logger) (*HashicorpVault, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = address

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)

	if mount == "" {
		mount = "kv"
	}
	return &HashicorpVault{
		client: client,
		mount:  mount,
		logger: logger.Named("vault"),
	}, nil
}

// GenerateKey creates a P-256 key pair, persists it under its did:key
// and returns the DID.
func (v *HashicorpVault) GenerateKey(ctx context.Context) (string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}

	did, err := didkey.FromECDSAPublicKey(&key.PublicKey)
	if err != nil {
		return "", err
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to serialize private key: %w", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	_, err = v.client.KVv2(v.mount).Put(ctx, did, map[string]any{
		privateKeyField: string(pemKey),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store key material: %w", err)
	}

	v.logger.Info("Generated holder key", zap.String("did", did))
	return did, nil
}

// Sign signs claims with the key stored under did.
func (v *HashicorpVault) Sign(ctx context.Context, did string, claims map[string]any, purpose string) (string, error) {
	key, err := v.readKey(ctx, did)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims(claims))
	token.Header["typ"] = typHeader(purpose)
	token.Header["kid"] = did

	return token.SignedString(key)
}

func (v *HashicorpVault) readKey(ctx context.Context, did string) (*ecdsa.PrivateKey, error) {
	secret, err := v.client.KVv2(v.mount).Get(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyNotFound, did, err)
	}

	pemKey, ok := secret.Data[privateKeyField].(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s: secret missing %s field", ErrKeyNotFound, did, privateKeyField)
	}

	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("invalid PEM key material for %s", did)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key material for %s: %w", did, err)
	}
	return key, nil
}
