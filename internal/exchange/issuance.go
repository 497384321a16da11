package exchange

import (
	"context"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
)

// CredentialStore persists issued credentials on the holder record.
type CredentialStore interface {
	SaveVC(ctx context.Context, userID, vcJWT string) error
}

// IssuanceService is the end-to-end issuance flow: offer resolution,
// metadata discovery, authorization, credential pickup and storage.
type IssuanceService struct {
	offers      *OfferService
	metadata    *MetadataService
	authflow    *AuthFlowService
	credentials *CredentialService
	store       CredentialStore
	logger      *zap.Logger
}

// NewIssuanceService wires the issuance flow.
func NewIssuanceService(offers *OfferService, metadata *MetadataService, authflow *AuthFlowService, credentials *CredentialService, store CredentialStore, logger *zap.Logger) *IssuanceService {
	return &IssuanceService{
		offers:      offers,
		metadata:    metadata,
		authflow:    authflow,
		credentials: credentials,
		store:       store,
		logger:      logger.Named("issuance"),
	}
}

// Issue runs the issuance flow for scanned offer content and stores the
// obtained credentials on the holder record.
func (s *IssuanceService) Issue(ctx context.Context, userID, did, content string) ([]domain.CredentialResponse, error) {
	offer, err := s.offers.Resolve(ctx, content)
	if err != nil {
		return nil, err
	}

	issuerMetadata, err := s.metadata.CredentialIssuerMetadata(ctx, offer.CredentialIssuer)
	if err != nil {
		return nil, err
	}
	authMetadata, err := s.metadata.AuthServerMetadata(ctx, issuerMetadata)
	if err != nil {
		return nil, err
	}

	token, err := s.authflow.Authorize(ctx, userID, did, offer, authMetadata)
	if err != nil {
		return nil, err
	}

	responses, err := s.credentials.FetchAll(ctx, did, offer, issuerMetadata, token)
	if err != nil {
		return nil, err
	}

	for _, response := range responses {
		if err := s.store.SaveVC(ctx, userID, response.Credential); err != nil {
			return nil, err
		}
	}

	s.logger.Info("issuance complete",
		zap.String("user_id", userID),
		zap.String("issuer", offer.CredentialIssuer),
		zap.Int("credentials", len(responses)))
	return responses, nil
}
