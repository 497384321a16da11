package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
)

const (
	credentialIssuerWellKnownPath = "/.well-known/openid-credential-issuer"
	openidConfigurationPath       = "/.well-known/openid-configuration"
)

// MetadataConfig carries the wallet's own authorization-server
// endpoints, used to rewrite metadata published by issuers that still
// point at the retired shared authorization server.
type MetadataConfig struct {
	AuthServerExternalURL string
	AuthServerInternalURL string
	InternalTokenEndpoint string
}

// MetadataService resolves issuer and authorization-server metadata.
type MetadataService struct {
	config MetadataConfig
	client *http.Client
	logger *zap.Logger
}

// NewMetadataService creates a metadata resolver.
func NewMetadataService(config MetadataConfig, logger *zap.Logger) *MetadataService {
	return &MetadataService{
		config: config,
		client: newHTTPClient(),
		logger: logger.Named("metadata"),
	}
}

// CredentialIssuerMetadata fetches the issuer's credential metadata
// document. Payloads that still advertise a credential_token endpoint
// predate the split authorization server; for those the authorization
// server is overridden with the wallet's internal one.
func (s *MetadataService) CredentialIssuerMetadata(ctx context.Context, issuerURL string) (domain.CredentialIssuerMetadata, error) {
	metadataURL := strings.TrimSuffix(issuerURL, "/") + credentialIssuerWellKnownPath

	body, err := getBody(ctx, s.client, metadataURL)
	if err != nil {
		return domain.CredentialIssuerMetadata{}, err
	}

	var metadata domain.CredentialIssuerMetadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return domain.CredentialIssuerMetadata{}, fmt.Errorf("%w: issuer metadata: %v", ErrFailedDeserializing, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return domain.CredentialIssuerMetadata{}, fmt.Errorf("%w: issuer metadata: %v", ErrFailedDeserializing, err)
	}
	if _, legacy := fields["credential_token"]; legacy {
		s.logger.Debug("issuer metadata carries credential_token, overriding authorization server",
			zap.String("issuer", metadata.CredentialIssuer))
		override := metadata
		override.AuthorizationServer = s.config.AuthServerInternalURL
		return override, nil
	}

	return metadata, nil
}

// AuthServerMetadata fetches the openid-configuration of the issuer's
// authorization server, falling back to the issuer itself when the
// issuer metadata names no separate server. A token endpoint under the
// wallet's external authorization server URL is replaced with the
// internal token endpoint.
func (s *MetadataService) AuthServerMetadata(ctx context.Context, issuerMetadata domain.CredentialIssuerMetadata) (domain.AuthorisationServerMetadata, error) {
	base := issuerMetadata.AuthorizationServer
	if base == "" {
		base = issuerMetadata.CredentialIssuer
	}
	metadataURL := strings.TrimSuffix(base, "/") + openidConfigurationPath

	var metadata domain.AuthorisationServerMetadata
	if err := getJSON(ctx, s.client, metadataURL, &metadata); err != nil {
		return domain.AuthorisationServerMetadata{}, err
	}

	if s.config.AuthServerExternalURL != "" &&
		strings.HasPrefix(metadata.TokenEndpoint, s.config.AuthServerExternalURL) {
		s.logger.Debug("token endpoint points at external authorization server, overriding",
			zap.String("token_endpoint", metadata.TokenEndpoint))
		override := metadata
		override.TokenEndpoint = s.config.InternalTokenEndpoint
		return override, nil
	}

	return metadata, nil
}
