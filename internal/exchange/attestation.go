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

// Submission identifiers used when a verifier ships no presentation
// definition of its own.
const (
	customerSubmissionID = "CustomerPresentationSubmission"
	customerDefinitionID = "CustomerPresentationDefinition"
)

// Marketplace verifiers request credentials through fixed scopes rather
// than presentation definitions.
var (
	marketplaceScopes      = map[string]struct{}{"didRead": {}, "defaultScope": {}}
	defaultVerifierVcTypes = []string{"LEARCredentialEmployee"}
)

// CredentialSelector exposes the holder's credentials to the
// presentation flows.
type CredentialSelector interface {
	SelectableVCs(ctx context.Context, userID string, types []string) ([]domain.CredentialsBasicInfo, error)
	RawCredentials(ctx context.Context, userID string, ids []string) ([]string, error)
}

// AttestationService drives presentation toward verifiers: it resolves
// the verifier's authorization request into a credential selection for
// the holder, then builds and submits the presentation over the chosen
// credentials.
type AttestationService struct {
	presentations *PresentationService
	submissions   *SubmissionService
	credentials   CredentialSelector
	client        *http.Client
	logger        *zap.Logger
}

// NewAttestationService wires the attestation flow.
func NewAttestationService(presentations *PresentationService, submissions *SubmissionService, credentials CredentialSelector, logger *zap.Logger) *AttestationService {
	return &AttestationService{
		presentations: presentations,
		submissions:   submissions,
		credentials:   credentials,
		client:        newHTTPClient(),
		logger:        logger.Named("attestation"),
	}
}

// SelectableCredentials resolves scanned verifier content into the
// credential selection offered to the holder.
func (s *AttestationService) SelectableCredentials(ctx context.Context, userID, content string) (domain.VcSelectorRequest, error) {
	request, err := s.resolveAuthorizationRequest(ctx, content)
	if err != nil {
		return domain.VcSelectorRequest{}, err
	}

	selectable, err := s.credentials.SelectableVCs(ctx, userID, vcTypesForScope(request.Scope))
	if err != nil {
		return domain.VcSelectorRequest{}, err
	}

	return domain.VcSelectorRequest{
		SelectableVcList: selectable,
		RedirectURI:      request.RedirectURI,
		State:            request.State,
		Nonce:            request.Nonce,
	}, nil
}

// SubmitPresentation builds a presentation over the holder's selection
// and posts it to the verifier.
func (s *AttestationService) SubmitPresentation(ctx context.Context, userID string, selection domain.VcSelectorResponse) error {
	ids := make([]string, 0, len(selection.SelectedVcList))
	for _, info := range selection.SelectedVcList {
		ids = append(ids, info.ID)
	}

	vcJWTs, err := s.credentials.RawCredentials(ctx, userID, ids)
	if err != nil {
		return err
	}

	vpToken, vp, err := s.presentations.BuildSignedBare(ctx, vcJWTs)
	if err != nil {
		return err
	}

	submission, err := s.submissions.Build(customerDefinitionID, vp, nil, PathPlain)
	if err != nil {
		return err
	}
	submission.ID = customerSubmissionID

	encodedSubmission, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("%w: presentation submission: %v", ErrFailedSerializing, err)
	}

	form := url.Values{
		"state":                   {selection.State},
		"vp_token":                {vpToken},
		"presentation_submission": {string(encodedSubmission)},
	}

	resp, err := postForm(ctx, s.client, selection.RedirectURI, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("%w: POST %s returned status %d", ErrFailedCommunication, selection.RedirectURI, resp.StatusCode)
	}

	s.logger.Info("submitted verifiable presentation",
		zap.String("user_id", userID),
		zap.String("verifier", selection.RedirectURI),
		zap.Int("credentials", len(vcJWTs)))
	return nil
}

// resolveAuthorizationRequest flattens scanned verifier content into an
// authorization request: inline query parameters or a request JWT
// fetched by reference.
func (s *AttestationService) resolveAuthorizationRequest(ctx context.Context, content string) (domain.AuthorizationRequest, error) {
	parsed, err := url.Parse(content)
	if err != nil {
		return domain.AuthorizationRequest{}, fmt.Errorf("%w: authorization request: %v", ErrParse, err)
	}
	query := parsed.Query()

	if requestURI := query.Get("request_uri"); requestURI != "" {
		body, err := getBody(ctx, s.client, requestURI)
		if err != nil {
			return domain.AuthorizationRequest{}, err
		}
		params, err := paramsFromRequestJWT(strings.TrimSpace(string(body)))
		if err != nil {
			return domain.AuthorizationRequest{}, err
		}
		return authorizationRequestFromParams(params), nil
	}
	if requestJWT := query.Get("request"); requestJWT != "" {
		params, err := paramsFromRequestJWT(requestJWT)
		if err != nil {
			return domain.AuthorizationRequest{}, err
		}
		return authorizationRequestFromParams(params), nil
	}
	return authorizationRequestFromParams(query), nil
}

func authorizationRequestFromParams(params url.Values) domain.AuthorizationRequest {
	return domain.AuthorizationRequest{
		ResponseType: params.Get("response_type"),
		ClientID:     params.Get("client_id"),
		RedirectURI:  params.Get("redirect_uri"),
		State:        params.Get("state"),
		Nonce:        params.Get("nonce"),
		Scope:        splitScope(params.Get("scope")),
	}
}

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}

// vcTypesForScope maps a verifier scope to the credential types it
// requires. Marketplace scopes select the default credential types;
// any other scope entry names a credential type directly.
func vcTypesForScope(scope []string) []string {
	for _, entry := range scope {
		if _, ok := marketplaceScopes[entry]; ok {
			return defaultVerifierVcTypes
		}
	}
	return scope
}
