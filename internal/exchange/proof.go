package exchange

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/vault"
)

const proofValidity = 10 * 24 * time.Hour

// ProofService builds the proof-of-possession JWTs that bind credential
// requests to the holder key.
type ProofService struct {
	vault  vault.KeyVault
	logger *zap.Logger
	now    func() time.Time
}

// NewProofService creates a proof builder signing through the vault.
func NewProofService(keyVault vault.KeyVault, logger *zap.Logger) *ProofService {
	return &ProofService{
		vault:  keyVault,
		logger: logger.Named("proof"),
		now:    time.Now,
	}
}

// Build signs a proof JWT for the given holder DID, credential issuer
// and issuer-provided nonce.
func (s *ProofService) Build(ctx context.Context, did, issuer, nonce string) (string, error) {
	now := s.now()
	claims := map[string]any{
		"iss":   did,
		"aud":   issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(proofValidity).Unix(),
		"nonce": nonce,
	}

	signed, err := s.vault.Sign(ctx, did, claims, vault.PurposeProof)
	if err != nil {
		return "", err
	}

	s.logger.Debug("built credential request proof", zap.String("issuer", issuer))
	return signed, nil
}
