package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
	"github.com/sirosfoundation/go-wallet-exchange/internal/vault"
)

const presentationValidity = 10 * 24 * time.Hour

var presentationContext = []string{"https://www.w3.org/2018/credentials/v1"}

// PresentationService assembles and signs Verifiable Presentations over
// a holder's selected credentials.
type PresentationService struct {
	vault  vault.KeyVault
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewPresentationService creates a presentation builder signing through
// the vault.
func NewPresentationService(keyVault vault.KeyVault, logger *zap.Logger) *PresentationService {
	return &PresentationService{
		vault:  keyVault,
		logger: logger.Named("presentation"),
		now:    time.Now,
		newID:  func() string { return "urn:uuid:" + uuid.NewString() },
	}
}

// Assemble builds the unsigned presentation document over the selected
// credential JWTs. The holder DID is taken from the sub claim of the
// first credential.
func (s *PresentationService) Assemble(vcJWTs []string) (domain.VerifiablePresentation, error) {
	if len(vcJWTs) == 0 {
		return domain.VerifiablePresentation{}, ErrEmptySelection
	}

	holder, err := subjectFromToken(vcJWTs[0])
	if err != nil {
		return domain.VerifiablePresentation{}, fmt.Errorf("holder did: %w", err)
	}

	return domain.VerifiablePresentation{
		ID:                   s.newID(),
		Context:              presentationContext,
		Type:                 []string{"VerifiablePresentation"},
		Holder:               holder,
		VerifiableCredential: vcJWTs,
	}, nil
}

// BuildSigned assembles and signs a presentation bound to a verifier
// audience and nonce. It returns the signed JWT and the enclosed
// presentation document.
func (s *PresentationService) BuildSigned(ctx context.Context, vcJWTs []string, audience, nonce string) (string, domain.VerifiablePresentation, error) {
	vp, err := s.Assemble(vcJWTs)
	if err != nil {
		return "", domain.VerifiablePresentation{}, err
	}

	now := s.now()
	claims := map[string]any{
		"iss":   vp.Holder,
		"sub":   vp.Holder,
		"aud":   audience,
		"nbf":   now.Unix(),
		"iat":   now.Unix(),
		"exp":   now.Add(presentationValidity).Unix(),
		"jti":   vp.ID,
		"vp":    vp,
		"nonce": nonce,
	}

	signed, err := s.vault.Sign(ctx, vp.Holder, claims, vault.PurposeVP)
	if err != nil {
		return "", domain.VerifiablePresentation{}, err
	}

	s.logger.Debug("signed verifiable presentation",
		zap.String("holder", vp.Holder),
		zap.Int("credentials", len(vcJWTs)))
	return signed, vp, nil
}

// BuildSignedBare assembles and signs a presentation without audience
// and nonce claims, for flows that carry them in the surrounding
// envelope.
func (s *PresentationService) BuildSignedBare(ctx context.Context, vcJWTs []string) (string, domain.VerifiablePresentation, error) {
	vp, err := s.Assemble(vcJWTs)
	if err != nil {
		return "", domain.VerifiablePresentation{}, err
	}

	now := s.now()
	claims := map[string]any{
		"iss": vp.Holder,
		"sub": vp.Holder,
		"nbf": now.Unix(),
		"iat": now.Unix(),
		"exp": now.Add(presentationValidity).Unix(),
		"jti": vp.ID,
		"vp":  vp,
	}

	signed, err := s.vault.Sign(ctx, vp.Holder, claims, vault.PurposeVP)
	if err != nil {
		return "", domain.VerifiablePresentation{}, err
	}
	return signed, vp, nil
}
