package domain

// UserEntity is the holder's identity record as stored by the context
// broker. The engine never mutates it in place remotely: every change is
// a read-modify-write through the broker contract.
type UserEntity struct {
	ID   string       `json:"id"`
	Type string       `json:"type"`
	Dids DidsProperty `json:"dids"`
	VCs  VCsProperty  `json:"vcs"`
}

// UserEntityType is the NGSI-LD entity type of holder records.
const UserEntityType = "userEntity"

// EntityIDPrefix namespaces holder record identifiers in the broker.
const EntityIDPrefix = "urn:entities:userId:"

// PropertyType is the NGSI-LD attribute type wrapper.
const PropertyType = "Property"

// DidsProperty is the NGSI-LD property wrapping the holder's DIDs.
type DidsProperty struct {
	Type  string         `json:"type"`
	Value []DidAttribute `json:"value"`
}

// VCsProperty is the NGSI-LD property wrapping the holder's credentials.
type VCsProperty struct {
	Type  string        `json:"type"`
	Value []VCAttribute `json:"value"`
}

// DidAttribute is one stored DID, tagged with its method.
type DidAttribute struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// VCAttribute is one stored credential. The same credential is stored
// once per format (vc_jwt holds the raw token, vc_json its decoded vc
// claim).
type VCAttribute struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Stored credential formats.
const (
	VCFormatJWT  = "vc_jwt"
	VCFormatJSON = "vc_json"
)

// NewUserEntity returns a bare holder record for userID with empty DID
// and credential lists.
func NewUserEntity(userID string) UserEntity {
	return UserEntity{
		ID:   EntityIDPrefix + userID,
		Type: UserEntityType,
		Dids: DidsProperty{Type: PropertyType, Value: []DidAttribute{}},
		VCs:  VCsProperty{Type: PropertyType, Value: []VCAttribute{}},
	}
}
