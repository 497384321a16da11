package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
)

// OfferService resolves credential offers scanned by the wallet client.
type OfferService struct {
	client *http.Client
	logger *zap.Logger
}

// NewOfferService creates a credential offer resolver.
func NewOfferService(logger *zap.Logger) *OfferService {
	return &OfferService{
		client: newHTTPClient(),
		logger: logger.Named("offer"),
	}
}

// Resolve dereferences a scanned credential offer. Content of the form
// "openid-credential-offer://?credential_offer_uri=<encoded>" is split
// on the first '=' and the remainder URL-decoded; content without '='
// is treated as an already-resolved offer URL.
func (s *OfferService) Resolve(ctx context.Context, content string) (domain.CredentialOffer, error) {
	offerURL := content
	if _, encoded, found := strings.Cut(content, "="); found {
		decoded, err := url.QueryUnescape(encoded)
		if err != nil {
			return domain.CredentialOffer{}, fmt.Errorf("%w: credential offer uri: %v", ErrParse, err)
		}
		offerURL = decoded
	}

	s.logger.Debug("resolving credential offer", zap.String("url", offerURL))

	body, err := getBody(ctx, s.client, offerURL)
	if err != nil {
		return domain.CredentialOffer{}, err
	}

	normalized, err := normalizeOffer(body)
	if err != nil {
		return domain.CredentialOffer{}, err
	}

	var offer domain.CredentialOffer
	dec := json.NewDecoder(strings.NewReader(string(normalized)))
	if err := dec.Decode(&offer); err != nil {
		return domain.CredentialOffer{}, fmt.Errorf("%w: credential offer: %v", ErrFailedDeserializing, err)
	}
	return offer, nil
}

// normalizeOffer rewrites the legacy singular "type" field of each
// offered credential into a one-element "types" array so a single
// strict parse handles both generations of issuers.
func normalizeOffer(body []byte) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: credential offer: %v", ErrFailedDeserializing, err)
	}

	credsRaw, ok := raw["credentials"]
	if !ok {
		return body, nil
	}

	var creds []map[string]json.RawMessage
	if err := json.Unmarshal(credsRaw, &creds); err != nil {
		return nil, fmt.Errorf("%w: credential offer credentials: %v", ErrFailedDeserializing, err)
	}

	changed := false
	for _, cred := range creds {
		legacy, ok := cred["type"]
		if !ok {
			continue
		}
		var single string
		if err := json.Unmarshal(legacy, &single); err != nil {
			return nil, fmt.Errorf("%w: credential offer type: %v", ErrFailedDeserializing, err)
		}
		types, err := json.Marshal([]string{single})
		if err != nil {
			return nil, fmt.Errorf("%w: credential offer types: %v", ErrFailedSerializing, err)
		}
		delete(cred, "type")
		cred["types"] = types
		changed = true
	}
	if !changed {
		return body, nil
	}

	normalizedCreds, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("%w: credential offer: %v", ErrFailedSerializing, err)
	}
	raw["credentials"] = normalizedCreds

	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: credential offer: %v", ErrFailedSerializing, err)
	}
	return normalized, nil
}
