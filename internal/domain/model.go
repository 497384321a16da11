// Package domain holds the wire-level data model for the credential
// exchange engine: OpenID4VCI offers and metadata, token and credential
// responses, the W3C VC/VP records and the Presentation Exchange
// structures exchanged with verifiers.
package domain

import "encoding/json"

// PreAuthorizedCodeGrantType is the OAuth2 grant type identifier for the
// pre-authorized code flow.
const PreAuthorizedCodeGrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"

// AuthorizationCodeGrantType is the standard authorization code grant type.
const AuthorizationCodeGrantType = "authorization_code"

// CredentialOffer is an issuer-provided description of the credentials
// available for pickup and the grant mechanism to obtain them.
// Immutable once parsed.
type CredentialOffer struct {
	CredentialIssuer string       `json:"credential_issuer"`
	Credentials      []Credential `json:"credentials"`
	Grants           *Grants      `json:"grants,omitempty"`
}

// Credential describes one offered credential.
type Credential struct {
	Format string   `json:"format"`
	Types  []string `json:"types"`
}

// Grants carries the grant hints of a credential offer. The presence of
// the pre-authorized code grant selects the pre-authorized flow; its
// absence implies the authorization code flow.
type Grants struct {
	PreAuthorizedCodeGrant *PreAuthorizedCodeGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
}

// PreAuthorizedCodeGrant is the pre-authorized code grant of an offer.
type PreAuthorizedCodeGrant struct {
	PreAuthorizedCode string `json:"pre-authorized_code"`
	UserPinRequired   bool   `json:"user_pin_required,omitempty"`
}

// CredentialIssuerMetadata is the issuer document published at
// /.well-known/openid-credential-issuer.
type CredentialIssuerMetadata struct {
	CredentialIssuer           string            `json:"credential_issuer"`
	CredentialEndpoint         string            `json:"credential_endpoint"`
	DeferredCredentialEndpoint string            `json:"deferred_credential_endpoint,omitempty"`
	AuthorizationServer        string            `json:"authorization_server,omitempty"`
	CredentialsSupported       []json.RawMessage `json:"credentials_supported,omitempty"`
}

// AuthorisationServerMetadata is the authorization server document
// published at /.well-known/openid-configuration.
type AuthorisationServerMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

// TokenResponse is the OAuth token endpoint response, extended with the
// OpenID4VCI credential nonce.
type TokenResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type,omitempty"`
	ExpiresIn       int    `json:"expires_in,omitempty"`
	IDToken         string `json:"id_token,omitempty"`
	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in,omitempty"`
}

// CredentialResponse is the credential endpoint response. CNonce, when
// present, must be used for the proof of the next credential in a batch.
type CredentialResponse struct {
	Credential      string `json:"credential"`
	Format          string `json:"format,omitempty"`
	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in,omitempty"`
}

// VerifiableCredential is the structural subset of a W3C Verifiable
// Credential the engine reads.
type VerifiableCredential struct {
	ID                string          `json:"id"`
	Context           []string        `json:"@context,omitempty"`
	Type              []string        `json:"type,omitempty"`
	Issuer            json.RawMessage `json:"issuer,omitempty"`
	CredentialSubject json.RawMessage `json:"credentialSubject,omitempty"`
}

// VerifiablePresentation is the W3C Verifiable Presentation record the
// engine assembles and submits.
type VerifiablePresentation struct {
	ID                   string   `json:"id"`
	Context              []string `json:"@context"`
	Type                 []string `json:"type"`
	Holder               string   `json:"holder"`
	VerifiableCredential []string `json:"verifiableCredential"`
}

// PresentationDefinition is the verifier-specified requirement set.
type PresentationDefinition struct {
	ID               string            `json:"id"`
	InputDescriptors []InputDescriptor `json:"input_descriptors"`
}

// InputDescriptor is a single credential requirement of a presentation
// definition.
type InputDescriptor struct {
	ID          string      `json:"id"`
	Constraints Constraints `json:"constraints"`
}

// Constraints holds the field constraints of an input descriptor.
type Constraints struct {
	Fields []Field `json:"fields,omitempty"`
}

// Field is one constraint field. Filter, when present, expresses the
// required credential type through a contains/const clause.
type Field struct {
	Path   []string     `json:"path"`
	Filter *FieldFilter `json:"filter,omitempty"`
}

// FieldFilter is the JSON-schema style filter of a constraint field.
type FieldFilter struct {
	Type     string       `json:"type,omitempty"`
	Contains *ConstClause `json:"contains,omitempty"`
}

// ConstClause is the const requirement inside a contains filter.
type ConstClause struct {
	Const string `json:"const"`
}

// DescriptorMap tells a verifier where a required credential is found
// inside the submitted presentation. PathNested is a singly-linked
// chain, outer to inner; the terminal node has PathNested == nil.
type DescriptorMap struct {
	Format     string         `json:"format"`
	Path       string         `json:"path"`
	ID         string         `json:"id"`
	PathNested *DescriptorMap `json:"path_nested,omitempty"`
}

// PresentationSubmission maps the input descriptors of a presentation
// definition to locations inside the submitted presentation.
type PresentationSubmission struct {
	ID            string          `json:"id"`
	DefinitionID  string          `json:"definition_id"`
	DescriptorMap []DescriptorMap `json:"descriptor_map"`
}

// AuthorizationRequest is a SIOP/OpenID4VP authorization request as
// received from a verifier, flattened from its query parameters.
type AuthorizationRequest struct {
	ResponseType string   `json:"response_type,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	RedirectURI  string   `json:"redirect_uri,omitempty"`
	State        string   `json:"state,omitempty"`
	Nonce        string   `json:"nonce,omitempty"`
	Scope        []string `json:"scope,omitempty"`
}

// CredentialsBasicInfo is the selectable-credential summary presented to
// the holder when a verifier requests a presentation.
type CredentialsBasicInfo struct {
	ID                string          `json:"id"`
	VcType            []string        `json:"vcType"`
	CredentialSubject json.RawMessage `json:"credentialSubject,omitempty"`
}

// VcSelectorRequest asks the holder to pick credentials satisfying a
// verifier request.
type VcSelectorRequest struct {
	SelectableVcList []CredentialsBasicInfo `json:"selectableVcList"`
	RedirectURI      string                 `json:"redirectUri"`
	State            string                 `json:"state"`
	Nonce            string                 `json:"nonce,omitempty"`
}

// VcSelectorResponse carries the holder's selection back into the
// presentation flow.
type VcSelectorResponse struct {
	SelectedVcList []CredentialsBasicInfo `json:"selectedVcList"`
	RedirectURI    string                 `json:"redirectUri"`
	State          string                 `json:"state"`
	Nonce          string                 `json:"nonce,omitempty"`
}
