package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
	"github.com/sirosfoundation/go-wallet-exchange/internal/vault"
)

type stubPinCollector struct {
	pin       string
	err       error
	requested bool
}

func (s *stubPinCollector) RequestPin(ctx context.Context, userID string) (string, error) {
	s.requested = true
	return s.pin, s.err
}

type stubVcProvider struct {
	credentials []string
	askedTypes  []string
}

func (s *stubVcProvider) SelectByTypes(ctx context.Context, userID string, types []string) ([]string, error) {
	s.askedTypes = types
	return s.credentials, nil
}

func newTestAuthFlow(t *testing.T, pins PinCollector, vcs VcProvider) (*AuthFlowService, string, *vault.MemoryVault) {
	t.Helper()
	v, did := newTestVault(t)
	presentations := NewPresentationService(v, testLogger())
	submissions := NewSubmissionService(testLogger())
	return NewAuthFlowService(v, presentations, submissions, pins, vcs, testLogger()), did, v
}

func TestNewCodeVerifier(t *testing.T) {
	first, err := newCodeVerifier()
	require.NoError(t, err)
	second, err := newCodeVerifier()
	require.NoError(t, err)

	assert.Len(t, first, 128)
	assert.NotEqual(t, first, second)
	for _, r := range first {
		assert.Contains(t, codeVerifierAlphabet, string(r))
	}
}

func TestCodeChallenge(t *testing.T) {
	verifier := "some-verifier-value"
	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), codeChallenge(verifier))
	assert.NotContains(t, codeChallenge(verifier), "=")
}

func TestAuthorize_PreAuthorizedGrant(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		json.NewEncoder(w).Encode(domain.TokenResponse{AccessToken: "pre-auth-token", CNonce: "n1"})
	}))
	defer server.Close()

	pins := &stubPinCollector{}
	s, did, _ := newTestAuthFlow(t, pins, &stubVcProvider{})

	offer := domain.CredentialOffer{
		Grants: &domain.Grants{
			PreAuthorizedCodeGrant: &domain.PreAuthorizedCodeGrant{PreAuthorizedCode: "code-123"},
		},
	}
	token, err := s.Authorize(context.Background(), "user-1", did, offer,
		domain.AuthorisationServerMetadata{TokenEndpoint: server.URL})
	require.NoError(t, err)

	assert.Equal(t, "pre-auth-token", token.AccessToken)
	assert.Equal(t, domain.PreAuthorizedCodeGrantType, form.Get("grant_type"))
	assert.Equal(t, "code-123", form.Get("pre-authorized_code"))
	assert.Equal(t, did, form.Get("client_id"))
	assert.Empty(t, form.Get("user_pin"))
	assert.False(t, pins.requested)
}

func TestAuthorize_PreAuthorizedGrantWithPin(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		json.NewEncoder(w).Encode(domain.TokenResponse{AccessToken: "t"})
	}))
	defer server.Close()

	pins := &stubPinCollector{pin: "5581"}
	s, did, _ := newTestAuthFlow(t, pins, &stubVcProvider{})

	offer := domain.CredentialOffer{
		Grants: &domain.Grants{
			PreAuthorizedCodeGrant: &domain.PreAuthorizedCodeGrant{
				PreAuthorizedCode: "code-123",
				UserPinRequired:   true,
			},
		},
	}
	_, err := s.Authorize(context.Background(), "user-1", did, offer,
		domain.AuthorisationServerMetadata{TokenEndpoint: server.URL})
	require.NoError(t, err)

	assert.True(t, pins.requested)
	assert.Equal(t, "5581", form.Get("user_pin"))
}

func TestAuthorize_IDTokenChallenge(t *testing.T) {
	var (
		authQuery   url.Values
		directForm  url.Values
		tokenForm   url.Values
		mux         = http.NewServeMux()
		issuerState = "issuer-state-1"
	)
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		authQuery = r.URL.Query()
		challenge := url.Values{
			"response_type": {"id_token"},
			"client_id":     {server.URL},
			"redirect_uri":  {server.URL + "/direct_post"},
			"state":         {issuerState},
			"nonce":         {"challenge-nonce"},
		}
		w.Header().Set("Location", "openid://?"+challenge.Encode())
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/direct_post", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		directForm = r.PostForm
		w.Header().Set("Location", "openid://?code=auth-code-1")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		tokenForm = r.PostForm
		json.NewEncoder(w).Encode(domain.TokenResponse{AccessToken: "final-token", CNonce: "cn"})
	})

	s, did, _ := newTestAuthFlow(t, &stubPinCollector{}, &stubVcProvider{})

	offer := domain.CredentialOffer{
		CredentialIssuer: "https://issuer.example.org",
		Credentials:      []domain.Credential{{Format: "jwt_vc", Types: []string{"VerifiableCredential", "CitizenId"}}},
	}
	metadata := domain.AuthorisationServerMetadata{
		Issuer:                "https://issuer.example.org",
		AuthorizationEndpoint: server.URL + "/authorize",
		TokenEndpoint:         server.URL + "/token",
	}

	token, err := s.Authorize(context.Background(), "user-1", did, offer, metadata)
	require.NoError(t, err)
	assert.Equal(t, "final-token", token.AccessToken)

	// Authorization request parameters
	assert.Equal(t, "code", authQuery.Get("response_type"))
	assert.Equal(t, "openid", authQuery.Get("scope"))
	assert.Equal(t, did, authQuery.Get("client_id"))
	assert.Equal(t, "openid://", authQuery.Get("redirect_uri"))
	assert.Equal(t, "S256", authQuery.Get("code_challenge_method"))
	assert.Len(t, authQuery.Get("code_challenge"), 43)

	var details []map[string]any
	require.NoError(t, json.Unmarshal([]byte(authQuery.Get("authorization_details")), &details))
	require.Len(t, details, 1)
	assert.Equal(t, "openid_credential", details[0]["type"])
	assert.Equal(t, []any{"https://issuer.example.org"}, details[0]["locations"])

	// Self-issued id_token answers the challenge
	idToken := directForm.Get("id_token")
	require.NotEmpty(t, idToken)
	assert.Equal(t, issuerState, directForm.Get("state"))

	parsed, _, err := jwt.NewParser().ParseUnverified(idToken, jwt.MapClaims{})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, did, claims["iss"])
	assert.Equal(t, did, claims["sub"])
	assert.Equal(t, "https://issuer.example.org", claims["aud"])
	assert.Equal(t, "challenge-nonce", claims["nonce"])

	// Code exchange carries the PKCE verifier matching the challenge
	assert.Equal(t, domain.AuthorizationCodeGrantType, tokenForm.Get("grant_type"))
	assert.Equal(t, "auth-code-1", tokenForm.Get("code"))
	assert.Equal(t, authQuery.Get("code_challenge"), codeChallenge(tokenForm.Get("code_verifier")))
}

func TestAuthorize_IDTokenChallengeViaRequestJWT(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		requestJWT := signTestJWT(t, jwt.MapClaims{
			"response_type": "id_token",
			"client_id":     server.URL,
			"redirect_uri":  server.URL + "/direct_post",
			"state":         "s1",
			"nonce":         "n1",
		})
		w.Header().Set("Location", "openid://?request="+url.QueryEscape(requestJWT))
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/direct_post", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "s1", r.PostForm.Get("state"))
		w.Header().Set("Location", "openid://?code=c1")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.TokenResponse{AccessToken: "ok"})
	})

	s, did, _ := newTestAuthFlow(t, &stubPinCollector{}, &stubVcProvider{})
	metadata := domain.AuthorisationServerMetadata{
		AuthorizationEndpoint: server.URL + "/authorize",
		TokenEndpoint:         server.URL + "/token",
	}

	token, err := s.Authorize(context.Background(), "user-1", did, domain.CredentialOffer{}, metadata)
	require.NoError(t, err)
	assert.Equal(t, "ok", token.AccessToken)
}

func TestAuthorize_VPTokenChallenge(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	definition := testDefinition([2]string{"descriptor-citizen", "CitizenId"})
	encodedDefinition, err := json.Marshal(definition)
	require.NoError(t, err)

	var directForm url.Values
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		challenge := url.Values{
			"response_type":           {"vp_token"},
			"client_id":               {"https://verifier.example.org"},
			"redirect_uri":            {server.URL + "/direct_post"},
			"state":                   {"vp-state"},
			"nonce":                   {"vp-nonce"},
			"presentation_definition": {string(encodedDefinition)},
		}
		w.Header().Set("Location", "openid://?"+challenge.Encode())
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/direct_post", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		directForm = r.PostForm
		w.Header().Set("Location", "openid://?code=vp-code")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.TokenResponse{AccessToken: "vp-token-access"})
	})

	vcs := &stubVcProvider{}
	s, did, _ := newTestAuthFlow(t, &stubPinCollector{}, vcs)
	vcs.credentials = []string{testVC(t, did, "urn:uuid:vc-1", []string{"VerifiableCredential", "CitizenId"})}
	metadata := domain.AuthorisationServerMetadata{
		AuthorizationEndpoint: server.URL + "/authorize",
		TokenEndpoint:         server.URL + "/token",
	}

	token, err := s.Authorize(context.Background(), "user-1", did, domain.CredentialOffer{}, metadata)
	require.NoError(t, err)
	assert.Equal(t, "vp-token-access", token.AccessToken)

	assert.Equal(t, []string{"CitizenId"}, vcs.askedTypes)
	assert.Equal(t, "vp-state", directForm.Get("state"))

	vpToken := directForm.Get("vp_token")
	require.NotEmpty(t, vpToken)
	parsed, _, err := jwt.NewParser().ParseUnverified(vpToken, jwt.MapClaims{})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "https://verifier.example.org", claims["aud"])
	assert.Equal(t, "vp-nonce", claims["nonce"])

	var submission domain.PresentationSubmission
	require.NoError(t, json.Unmarshal([]byte(directForm.Get("presentation_submission")), &submission))
	assert.Equal(t, "test-definition", submission.DefinitionID)
	require.Len(t, submission.DescriptorMap, 1)
	assert.Equal(t, JWTVPFormat, submission.DescriptorMap[0].Format)
	require.NotNil(t, submission.DescriptorMap[0].PathNested)
	assert.Equal(t, "descriptor-citizen", submission.DescriptorMap[0].PathNested.ID)
	assert.True(t, strings.HasPrefix(submission.DescriptorMap[0].PathNested.Path, "$.vp.verifiableCredential["))
}

func TestAuthorize_UnsupportedResponseType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "openid://?response_type=token&state=s")
		w.WriteHeader(http.StatusFound)
	}))
	defer server.Close()

	s, did, _ := newTestAuthFlow(t, &stubPinCollector{}, &stubVcProvider{})
	metadata := domain.AuthorisationServerMetadata{AuthorizationEndpoint: server.URL}

	_, err := s.Authorize(context.Background(), "user-1", did, domain.CredentialOffer{}, metadata)
	assert.ErrorIs(t, err, ErrUnsupportedResponseType)
}

func TestAuthorize_NoRedirectFromAuthorizationEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, did, _ := newTestAuthFlow(t, &stubPinCollector{}, &stubVcProvider{})
	metadata := domain.AuthorisationServerMetadata{AuthorizationEndpoint: server.URL}

	_, err := s.Authorize(context.Background(), "user-1", did, domain.CredentialOffer{}, metadata)
	assert.ErrorIs(t, err, ErrFailedCommunication)
}
