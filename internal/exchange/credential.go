package exchange

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
)

// CredentialService fetches the credentials named by an offer from the
// issuer's credential endpoint.
type CredentialService struct {
	proofs *ProofService
	client *http.Client
	logger *zap.Logger
}

// NewCredentialService creates a credential fetcher.
func NewCredentialService(proofs *ProofService, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		proofs: proofs,
		client: newHTTPClient(),
		logger: logger.Named("credential"),
	}
}

type credentialRequest struct {
	Format string        `json:"format"`
	Types  []string      `json:"types"`
	Proof  proofEnvelope `json:"proof"`
}

type proofEnvelope struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

// FetchAll requests every credential of the offer in order, one request
// per offered credential. Each proof is bound to the freshest nonce:
// the c_nonce of the previous response when the issuer rotated it, the
// previous nonce otherwise. The first failing request aborts the batch.
func (s *CredentialService) FetchAll(ctx context.Context, did string, offer domain.CredentialOffer, metadata domain.CredentialIssuerMetadata, token domain.TokenResponse) ([]domain.CredentialResponse, error) {
	nonce := token.CNonce
	responses := make([]domain.CredentialResponse, 0, len(offer.Credentials))

	for _, credential := range offer.Credentials {
		proof, err := s.proofs.Build(ctx, did, metadata.CredentialIssuer, nonce)
		if err != nil {
			return nil, err
		}

		request := credentialRequest{
			Format: credential.Format,
			Types:  credential.Types,
			Proof:  proofEnvelope{ProofType: "jwt", JWT: proof},
		}

		var response domain.CredentialResponse
		if err := postJSON(ctx, s.client, metadata.CredentialEndpoint, token.AccessToken, request, &response); err != nil {
			return nil, err
		}
		responses = append(responses, response)

		if response.CNonce != "" {
			nonce = response.CNonce
		}
	}

	s.logger.Info("fetched credentials",
		zap.String("issuer", metadata.CredentialIssuer),
		zap.Int("count", len(responses)))
	return responses, nil
}
