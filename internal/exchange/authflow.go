package exchange

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
	"github.com/sirosfoundation/go-wallet-exchange/internal/vault"
)

// RFC 7636 unreserved characters.
const codeVerifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

const codeVerifierLength = 128

const walletRedirectURI = "openid://"

// PinCollector obtains the transaction code a pre-authorized issuer
// demands from the holder.
type PinCollector interface {
	RequestPin(ctx context.Context, userID string) (string, error)
}

// VcProvider selects stored credential JWTs matching the given types,
// in the order the types are listed.
type VcProvider interface {
	SelectByTypes(ctx context.Context, userID string, types []string) ([]string, error)
}

// AuthFlowService drives the OAuth leg of credential issuance: grant
// dispatch, PKCE, issuer authorization challenges and the final token
// exchange.
type AuthFlowService struct {
	vault         vault.KeyVault
	presentations *PresentationService
	submissions   *SubmissionService
	pins          PinCollector
	vcs           VcProvider
	client        *http.Client
	logger        *zap.Logger
	now           func() time.Time
}

// NewAuthFlowService creates an authorization flow orchestrator.
func NewAuthFlowService(keyVault vault.KeyVault, presentations *PresentationService, submissions *SubmissionService, pins PinCollector, vcs VcProvider, logger *zap.Logger) *AuthFlowService {
	return &AuthFlowService{
		vault:         keyVault,
		presentations: presentations,
		submissions:   submissions,
		pins:          pins,
		vcs:           vcs,
		client:        newHTTPClient(),
		logger:        logger.Named("authflow"),
		now:           time.Now,
	}
}

// Authorize obtains an access token for the offer. Offers carrying a
// pre-authorized code use the direct token grant; all others run the
// authorization code flow with PKCE.
func (s *AuthFlowService) Authorize(ctx context.Context, userID, did string, offer domain.CredentialOffer, authMetadata domain.AuthorisationServerMetadata) (domain.TokenResponse, error) {
	if offer.Grants != nil && offer.Grants.PreAuthorizedCodeGrant != nil {
		return s.preAuthorizedToken(ctx, userID, did, offer.Grants.PreAuthorizedCodeGrant, authMetadata)
	}
	return s.authorizationCodeToken(ctx, userID, did, offer, authMetadata)
}

// preAuthorizedToken redeems a pre-authorized code at the token
// endpoint, collecting the holder's transaction code first when the
// issuer requires one.
func (s *AuthFlowService) preAuthorizedToken(ctx context.Context, userID, did string, grant *domain.PreAuthorizedCodeGrant, authMetadata domain.AuthorisationServerMetadata) (domain.TokenResponse, error) {
	form := url.Values{
		"grant_type":          {domain.PreAuthorizedCodeGrantType},
		"pre-authorized_code": {grant.PreAuthorizedCode},
		"client_id":           {did},
	}

	if grant.UserPinRequired {
		pin, err := s.pins.RequestPin(ctx, userID)
		if err != nil {
			return domain.TokenResponse{}, fmt.Errorf("collecting user pin: %w", err)
		}
		form.Set("user_pin", pin)
	}

	var token domain.TokenResponse
	if err := postFormJSON(ctx, s.client, authMetadata.TokenEndpoint, form, &token); err != nil {
		return domain.TokenResponse{}, err
	}

	s.logger.Info("redeemed pre-authorized code", zap.String("issuer", authMetadata.Issuer))
	return token, nil
}

// authorizationCodeToken runs the full authorization code flow: PKCE
// challenge, issuer authorization request, the issuer's id_token or
// vp_token challenge, and the code exchange.
func (s *AuthFlowService) authorizationCodeToken(ctx context.Context, userID, did string, offer domain.CredentialOffer, authMetadata domain.AuthorisationServerMetadata) (domain.TokenResponse, error) {
	verifier, err := newCodeVerifier()
	if err != nil {
		return domain.TokenResponse{}, err
	}

	request, err := s.requestAuthorization(ctx, did, offer, authMetadata, codeChallenge(verifier))
	if err != nil {
		return domain.TokenResponse{}, err
	}

	var code string
	switch request.Get("response_type") {
	case "id_token":
		code, err = s.respondIDToken(ctx, did, authMetadata.Issuer, request)
	case "vp_token":
		code, err = s.respondVPToken(ctx, userID, request)
	default:
		return domain.TokenResponse{}, fmt.Errorf("%w: %q", ErrUnsupportedResponseType, request.Get("response_type"))
	}
	if err != nil {
		return domain.TokenResponse{}, err
	}

	return s.exchangeCode(ctx, did, code, verifier, authMetadata)
}

// requestAuthorization performs the GET to the authorization endpoint
// and resolves the issuer's challenge into flat request parameters.
func (s *AuthFlowService) requestAuthorization(ctx context.Context, did string, offer domain.CredentialOffer, authMetadata domain.AuthorisationServerMetadata, challenge string) (url.Values, error) {
	details, err := authorizationDetails(offer)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"response_type":         {"code"},
		"scope":                 {"openid"},
		"client_id":             {did},
		"redirect_uri":          {walletRedirectURI},
		"state":                 {uuid.NewString()},
		"authorization_details": {details},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	authURL := authMetadata.AuthorizationEndpoint + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building authorization request: %v", ErrFailedCommunication, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrFailedCommunication, authMetadata.AuthorizationEndpoint, err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%w: authorization endpoint returned no redirect (status %d)", ErrFailedCommunication, resp.StatusCode)
	}

	return s.resolveChallenge(ctx, location)
}

// resolveChallenge flattens the issuer's redirect into request
// parameters. The challenge arrives as a request JWT (inline or by
// reference) or as plain query parameters.
func (s *AuthFlowService) resolveChallenge(ctx context.Context, location string) (url.Values, error) {
	redirect, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: authorization redirect: %v", ErrParse, err)
	}
	query := redirect.Query()

	if requestJWT := query.Get("request"); requestJWT != "" {
		return paramsFromRequestJWT(requestJWT)
	}
	if requestURI := query.Get("request_uri"); requestURI != "" {
		body, err := getBody(ctx, s.client, requestURI)
		if err != nil {
			return nil, err
		}
		return paramsFromRequestJWT(string(body))
	}
	return query, nil
}

// paramsFromRequestJWT flattens the claims of a request JWT into the
// same url.Values shape a plain-query challenge produces.
func paramsFromRequestJWT(requestJWT string) (url.Values, error) {
	claims, err := unverifiedClaims(requestJWT)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	for _, name := range []string{"response_type", "client_id", "redirect_uri", "state", "nonce", "scope", "presentation_definition_uri"} {
		if v := stringClaim(claims, name); v != "" {
			params.Set(name, v)
		}
	}
	if definition, ok := claims["presentation_definition"]; ok {
		encoded, err := json.Marshal(definition)
		if err != nil {
			return nil, fmt.Errorf("%w: presentation definition: %v", ErrFailedSerializing, err)
		}
		params.Set("presentation_definition", string(encoded))
	}
	return params, nil
}

// respondIDToken answers an id_token challenge with a self-issued token
// and returns the authorization code from the issuer's redirect.
func (s *AuthFlowService) respondIDToken(ctx context.Context, did, issuer string, request url.Values) (string, error) {
	now := s.now()
	claims := map[string]any{
		"iss":   did,
		"sub":   did,
		"aud":   issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(5 * time.Minute).Unix(),
		"nonce": request.Get("nonce"),
	}

	idToken, err := s.vault.Sign(ctx, did, claims, vault.PurposeJWT)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"id_token": {idToken},
		"state":    {request.Get("state")},
	}
	return s.directPost(ctx, request.Get("redirect_uri"), form)
}

// respondVPToken answers a vp_token challenge with a presentation over
// the holder's matching credentials and returns the authorization code.
func (s *AuthFlowService) respondVPToken(ctx context.Context, userID string, request url.Values) (string, error) {
	definition, err := s.presentationDefinition(ctx, request)
	if err != nil {
		return "", err
	}

	requirements := s.submissions.Requirements(definition)
	types := make([]string, 0, len(requirements))
	descriptorIDs := make([]string, 0, len(requirements))
	for _, requirement := range requirements {
		types = append(types, requirement.VcType)
		descriptorIDs = append(descriptorIDs, requirement.DescriptorID)
	}

	vcJWTs, err := s.vcs.SelectByTypes(ctx, userID, types)
	if err != nil {
		return "", err
	}

	vpToken, vp, err := s.presentations.BuildSigned(ctx, vcJWTs, request.Get("client_id"), request.Get("nonce"))
	if err != nil {
		return "", err
	}

	submission, err := s.submissions.Build(definition.ID, vp, descriptorIDs, PathJWTWrapped)
	if err != nil {
		return "", err
	}
	encodedSubmission, err := json.Marshal(submission)
	if err != nil {
		return "", fmt.Errorf("%w: presentation submission: %v", ErrFailedSerializing, err)
	}

	form := url.Values{
		"vp_token":                {vpToken},
		"presentation_submission": {string(encodedSubmission)},
		"state":                   {request.Get("state")},
	}
	return s.directPost(ctx, request.Get("redirect_uri"), form)
}

// presentationDefinition resolves the definition of a vp_token
// challenge, inline or by reference.
func (s *AuthFlowService) presentationDefinition(ctx context.Context, request url.Values) (domain.PresentationDefinition, error) {
	var definition domain.PresentationDefinition

	if inline := request.Get("presentation_definition"); inline != "" {
		if err := json.Unmarshal([]byte(inline), &definition); err != nil {
			return domain.PresentationDefinition{}, fmt.Errorf("%w: presentation definition: %v", ErrFailedDeserializing, err)
		}
		return definition, nil
	}
	if definitionURI := request.Get("presentation_definition_uri"); definitionURI != "" {
		if err := getJSON(ctx, s.client, definitionURI, &definition); err != nil {
			return domain.PresentationDefinition{}, err
		}
		return definition, nil
	}
	return domain.PresentationDefinition{}, fmt.Errorf("%w: vp_token challenge without presentation definition", ErrParse)
}

// directPost submits a challenge response form and extracts the
// authorization code from the redirect the issuer answers with.
func (s *AuthFlowService) directPost(ctx context.Context, redirectURI string, form url.Values) (string, error) {
	resp, err := postForm(ctx, s.client, redirectURI, form)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("%w: challenge response to %s returned no redirect (status %d)", ErrFailedCommunication, redirectURI, resp.StatusCode)
	}

	redirect, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: challenge redirect: %v", ErrParse, err)
	}
	code := redirect.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: challenge redirect carries no code", ErrParse)
	}
	return code, nil
}

// exchangeCode trades the authorization code and PKCE verifier for a
// token response.
func (s *AuthFlowService) exchangeCode(ctx context.Context, did, code, verifier string, authMetadata domain.AuthorisationServerMetadata) (domain.TokenResponse, error) {
	form := url.Values{
		"grant_type":    {domain.AuthorizationCodeGrantType},
		"client_id":     {did},
		"code":          {code},
		"code_verifier": {verifier},
	}

	var token domain.TokenResponse
	if err := postFormJSON(ctx, s.client, authMetadata.TokenEndpoint, form, &token); err != nil {
		return domain.TokenResponse{}, err
	}

	s.logger.Info("exchanged authorization code", zap.String("issuer", authMetadata.Issuer))
	return token, nil
}

// authorizationDetails encodes the offered credentials as RFC 9396
// authorization details.
func authorizationDetails(offer domain.CredentialOffer) (string, error) {
	type detail struct {
		Type      string   `json:"type"`
		Format    string   `json:"format"`
		Types     []string `json:"types"`
		Locations []string `json:"locations,omitempty"`
	}

	details := make([]detail, 0, len(offer.Credentials))
	for _, credential := range offer.Credentials {
		details = append(details, detail{
			Type:      "openid_credential",
			Format:    credential.Format,
			Types:     credential.Types,
			Locations: []string{offer.CredentialIssuer},
		})
	}

	encoded, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("%w: authorization details: %v", ErrFailedSerializing, err)
	}
	return string(encoded), nil
}

// newCodeVerifier draws a fresh PKCE verifier from the unreserved
// alphabet.
func newCodeVerifier() (string, error) {
	buf := make([]byte, codeVerifierLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating code verifier: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeVerifierAlphabet[int(b)%len(codeVerifierAlphabet)]
	}
	return string(buf), nil
}

// codeChallenge derives the S256 challenge of a verifier.
func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
