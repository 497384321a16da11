package qr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/exchange"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    ContentType
	}{
		{
			name:    "https credential offer uri",
			content: "https://issuer.example.org/offers?credential_offer_uri=https%3A%2F%2Fissuer.example.org%2Foffer%2F1",
			want:    ContentCredentialOfferURI,
		},
		{
			name:    "http credential offer with hyphen",
			content: "http://issuer.example.org/credential-offer/abc",
			want:    ContentCredentialOfferURI,
		},
		{
			name:    "openid credential offer scheme",
			content: "openid-credential-offer://?credential_offer_uri=https%3A%2F%2Fissuer.example.org%2Foffer",
			want:    ContentOpenIDCredentialOffer,
		},
		{
			name:    "authentication request url",
			content: "https://verifier.example.org/authentication-requests?state=abc",
			want:    ContentAuthenticationRequest,
		},
		{
			name:    "bare openid request",
			content: "openid://?response_type=id_token&client_id=abc",
			want:    ContentOpenIDAuthenticationRequest,
		},
		{
			name:    "random text",
			content: "hello world",
			want:    ContentUnknown,
		},
		{
			name:    "empty content",
			content: "",
			want:    ContentUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.content))
		})
	}
}

func TestContentTypeString(t *testing.T) {
	assert.Equal(t, "credential_offer_uri", ContentCredentialOfferURI.String())
	assert.Equal(t, "openid_credential_offer", ContentOpenIDCredentialOffer.String())
	assert.Equal(t, "authentication_request", ContentAuthenticationRequest.String())
	assert.Equal(t, "openid_authentication_request", ContentOpenIDAuthenticationRequest.String())
	assert.Equal(t, "unknown", ContentUnknown.String())
}

type stubDidProvider struct {
	did string
	err error
}

func (s *stubDidProvider) DID(ctx context.Context) (string, error) {
	return s.did, s.err
}

func TestExecute_UnknownContent(t *testing.T) {
	p := NewProcessor(nil, nil, &stubDidProvider{}, zap.NewNop())

	_, err := p.Execute(context.Background(), "user-1", "not a wallet payload")
	assert.ErrorIs(t, err, exchange.ErrNoSuchContent)
}

func TestExecute_BareOpenIDRequestRejected(t *testing.T) {
	p := NewProcessor(nil, nil, &stubDidProvider{}, zap.NewNop())

	_, err := p.Execute(context.Background(), "user-1", "openid://?response_type=id_token")
	assert.ErrorIs(t, err, exchange.ErrNoSuchContent)
}

func TestExecute_OfferWaitsForDid(t *testing.T) {
	bootstrapErr := errors.New("bootstrap failed")
	p := NewProcessor(nil, nil, &stubDidProvider{err: bootstrapErr}, zap.NewNop())

	_, err := p.Execute(context.Background(), "user-1", "openid-credential-offer://?credential_offer_uri=x")
	assert.ErrorIs(t, err, bootstrapErr)
}
