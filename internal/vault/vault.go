// Package vault is the key-custody boundary of the engine. Private keys
// never leave the vault implementation; the engine hands over a claim
// set and receives a signed token.
package vault

import (
	"context"
	"errors"
)

// Signing purposes. The purpose selects the JWT typ header.
const (
	PurposeProof = "proof" // openid4vci-proof+jwt proof of possession
	PurposeVP    = "vp"    // verifiable presentation
	PurposeJWT   = "jwt"   // plain JWT (id_token and friends)
)

// Common errors
var (
	ErrKeyNotFound = errors.New("no key material for DID")
)

// KeyVault holds holder key material and signs on the engine's behalf.
type KeyVault interface {
	// GenerateKey creates a fresh P-256 key pair, stores it and returns
	// the derived did:key identifier.
	GenerateKey(ctx context.Context) (string, error)

	// Sign builds a JWT from claims and signs it with the key bound to
	// did. The purpose selects the typ header.
	Sign(ctx context.Context, did string, claims map[string]any, purpose string) (string, error)
}

// typHeader maps a signing purpose to the JWT typ header value.
func typHeader(purpose string) string {
	if purpose == PurposeProof {
		return "openid4vci-proof+jwt"
	}
	return "JWT"
}
