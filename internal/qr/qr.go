// Package qr classifies scanned wallet content and routes it into the
// matching exchange flow.
package qr

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
	"github.com/sirosfoundation/go-wallet-exchange/internal/exchange"
)

// ContentType is the recognized class of a scanned payload.
type ContentType int

const (
	ContentUnknown ContentType = iota
	ContentCredentialOfferURI
	ContentOpenIDCredentialOffer
	ContentAuthenticationRequest
	ContentOpenIDAuthenticationRequest
)

// String names the content type for logs.
func (t ContentType) String() string {
	switch t {
	case ContentCredentialOfferURI:
		return "credential_offer_uri"
	case ContentOpenIDCredentialOffer:
		return "openid_credential_offer"
	case ContentAuthenticationRequest:
		return "authentication_request"
	case ContentOpenIDAuthenticationRequest:
		return "openid_authentication_request"
	default:
		return "unknown"
	}
}

var (
	credentialOfferURIPattern    = regexp.MustCompile(`(https|http).*(credential-offer|credential_offer).*`)
	openidCredentialOfferPattern = regexp.MustCompile(`openid-credential-offer://.*`)
	authenticationRequestPattern = regexp.MustCompile(`(https|http).*(authentication-request|authentication-requests).*`)
	openidAuthRequestPattern     = regexp.MustCompile(`openid://.*`)
)

// Classify matches content against the recognized payload shapes. Order
// matters: openid-credential-offer:// also matches the bare openid://
// pattern.
func Classify(content string) ContentType {
	switch {
	case credentialOfferURIPattern.MatchString(content):
		return ContentCredentialOfferURI
	case openidCredentialOfferPattern.MatchString(content):
		return ContentOpenIDCredentialOffer
	case authenticationRequestPattern.MatchString(content):
		return ContentAuthenticationRequest
	case openidAuthRequestPattern.MatchString(content):
		return ContentOpenIDAuthenticationRequest
	default:
		return ContentUnknown
	}
}

// DidProvider hands out the wallet's own DID, blocking until the
// startup bootstrap has produced it.
type DidProvider interface {
	DID(ctx context.Context) (string, error)
}

// Processor routes classified content into the issuance or attestation
// flow.
type Processor struct {
	issuance    *exchange.IssuanceService
	attestation *exchange.AttestationService
	identity    DidProvider
	logger      *zap.Logger
}

// NewProcessor creates a content processor.
func NewProcessor(issuance *exchange.IssuanceService, attestation *exchange.AttestationService, identity DidProvider, logger *zap.Logger) *Processor {
	return &Processor{
		issuance:    issuance,
		attestation: attestation,
		identity:    identity,
		logger:      logger.Named("qr"),
	}
}

// Execute runs the flow the content selects. Credential offers return
// the issued credential responses; authentication requests return the
// credential selection for the holder. Bare openid:// requests carry no
// resolvable payload and are rejected like unrecognized content.
func (p *Processor) Execute(ctx context.Context, userID, content string) (any, error) {
	contentType := Classify(content)
	p.logger.Info("processing scanned content",
		zap.String("user_id", userID),
		zap.Stringer("content_type", contentType))

	switch contentType {
	case ContentCredentialOfferURI, ContentOpenIDCredentialOffer:
		did, err := p.identity.DID(ctx)
		if err != nil {
			return nil, err
		}
		responses, err := p.issuance.Issue(ctx, userID, did, content)
		if err != nil {
			return nil, err
		}
		return responses, nil
	case ContentAuthenticationRequest:
		selector, err := p.attestation.SelectableCredentials(ctx, userID, content)
		if err != nil {
			return domain.VcSelectorRequest{}, err
		}
		return selector, nil
	default:
		return nil, fmt.Errorf("%w: %q", exchange.ErrNoSuchContent, contentType)
	}
}
