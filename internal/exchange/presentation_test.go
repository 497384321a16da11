package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresentationService_Assemble(t *testing.T) {
	v, _ := newTestVault(t)
	s := NewPresentationService(v, testLogger())

	vc := testVC(t, "did:key:zHolder", "urn:uuid:cred-1", []string{"TypeA"})

	vp, err := s.Assemble([]string{vc})
	require.NoError(t, err)

	assert.Equal(t, "did:key:zHolder", vp.Holder)
	assert.Equal(t, []string{"https://www.w3.org/2018/credentials/v1"}, vp.Context)
	assert.Equal(t, []string{"VerifiablePresentation"}, vp.Type)
	assert.Equal(t, []string{vc}, vp.VerifiableCredential)
	assert.Contains(t, vp.ID, "urn:uuid:")
}

func TestPresentationService_Assemble_EmptySelection(t *testing.T) {
	v, _ := newTestVault(t)
	s := NewPresentationService(v, testLogger())

	_, err := s.Assemble(nil)
	assert.ErrorIs(t, err, ErrEmptySelection)
}

func TestPresentationService_Assemble_UnparseableCredential(t *testing.T) {
	v, _ := newTestVault(t)
	s := NewPresentationService(v, testLogger())

	_, err := s.Assemble([]string{"not-a-jwt"})
	assert.ErrorIs(t, err, ErrParse)
}

func TestPresentationService_BuildSigned_RoundTrip(t *testing.T) {
	v, did := newTestVault(t)
	s := NewPresentationService(v, testLogger())

	now := time.Now()
	s.now = func() time.Time { return now }

	vc := testVC(t, did, "urn:uuid:cred-1", []string{"TypeA"})

	signed, vp, err := s.BuildSigned(context.Background(), []string{vc}, "https://verifier.example.org", "nonce-1")
	require.NoError(t, err)
	assert.Equal(t, did, vp.Holder)

	token, _, err := jwt.NewParser().ParseUnverified(signed, jwt.MapClaims{})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)

	assert.Equal(t, did, claims["iss"])
	assert.Equal(t, did, claims["sub"])
	assert.Equal(t, "https://verifier.example.org", claims["aud"])
	assert.Equal(t, "nonce-1", claims["nonce"])
	assert.Equal(t, vp.ID, claims["jti"])
	assert.Equal(t, float64(now.Unix()), claims["nbf"])
	assert.Equal(t, float64(now.Unix()), claims["iat"])
	assert.Equal(t, float64(now.Add(10*24*time.Hour).Unix()), claims["exp"])

	// The enclosed document carries the credentials unchanged
	vpClaim, ok := claims["vp"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, vp.ID, vpClaim["id"])
	tokens, ok := vpClaim["verifiableCredential"].([]any)
	require.True(t, ok)
	require.Len(t, tokens, 1)
	assert.Equal(t, vc, tokens[0])
}

func TestPresentationService_BuildSignedBare_OmitsAudienceAndNonce(t *testing.T) {
	v, did := newTestVault(t)
	s := NewPresentationService(v, testLogger())

	vc := testVC(t, did, "urn:uuid:cred-1", []string{"TypeA"})

	signed, _, err := s.BuildSignedBare(context.Background(), []string{vc})
	require.NoError(t, err)

	token, _, err := jwt.NewParser().ParseUnverified(signed, jwt.MapClaims{})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)

	_, hasAud := claims["aud"]
	_, hasNonce := claims["nonce"]
	assert.False(t, hasAud)
	assert.False(t, hasNonce)
	assert.Equal(t, did, claims["iss"])
}

func TestPresentationService_BuildSigned_UnknownHolderKey(t *testing.T) {
	v, _ := newTestVault(t)
	s := NewPresentationService(v, testLogger())

	// Holder DID with no key in the vault
	vc := testVC(t, "did:key:zUnknown", "urn:uuid:cred-1", []string{"TypeA"})

	_, _, err := s.BuildSigned(context.Background(), []string{vc}, "aud", "nonce")
	assert.Error(t, err)
}
