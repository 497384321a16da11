package exchange

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/vault"
)

// signTestJWT signs claims with a throwaway HMAC key. The engine never
// verifies remote signatures, so the algorithm does not matter here.
func signTestJWT(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// testVC builds a credential JWT bound to subject with the given id and
// types.
func testVC(t *testing.T, subject, id string, types []string) string {
	t.Helper()
	return signTestJWT(t, jwt.MapClaims{
		"sub": subject,
		"jti": id,
		"vc": map[string]any{
			"id":   id,
			"type": types,
		},
	})
}

// newTestVault returns a memory vault with one generated holder DID.
func newTestVault(t *testing.T) (*vault.MemoryVault, string) {
	t.Helper()
	v := vault.NewMemoryVault()
	did, err := v.GenerateKey(context.Background())
	require.NoError(t, err)
	return v, did
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
