package exchange

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
)

// Presentation Exchange format identifiers.
const (
	JWTVPFormat = "jwt_vp"
	JWTVCFormat = "jwt_vc"
)

// Descriptor path templates. Verifiers that receive the presentation as
// a signed JWT locate credentials under the vp claim; verifiers that
// receive the plain document index the top level.
const (
	PathJWTWrapped = "$.vp.verifiableCredential[%d]"
	PathPlain      = "$.verifiableCredential[%d]"
)

// Requirement is one credential requirement extracted from a
// presentation definition: the descriptor asking for it and the
// credential type it demands.
type Requirement struct {
	DescriptorID string
	VcType       string
}

// SubmissionService derives presentation submissions from presentation
// definitions and assembled presentations.
type SubmissionService struct {
	logger *zap.Logger
	newID  func() string
}

// NewSubmissionService creates a submission builder.
func NewSubmissionService(logger *zap.Logger) *SubmissionService {
	return &SubmissionService{
		logger: logger.Named("submission"),
		newID:  uuid.NewString,
	}
}

// Requirements extracts the required credential types of a presentation
// definition, in descriptor order. A descriptor contributes one
// requirement per field filter of the form {"contains":{"const":T}}.
func (s *SubmissionService) Requirements(definition domain.PresentationDefinition) []Requirement {
	var reqs []Requirement
	for _, descriptor := range definition.InputDescriptors {
		for _, field := range descriptor.Constraints.Fields {
			if field.Filter == nil || field.Filter.Contains == nil || field.Filter.Contains.Const == "" {
				continue
			}
			reqs = append(reqs, Requirement{
				DescriptorID: descriptor.ID,
				VcType:       field.Filter.Contains.Const,
			})
		}
	}
	return reqs
}

// Build produces the presentation submission for an assembled
// presentation. The descriptor map is a single top-level entry for the
// presentation itself, with one nested link per enclosed credential in
// index order. descriptorIDs, when supplied, name the nested links;
// otherwise each credential's own identifier is used. pathTemplate is
// one of PathJWTWrapped or PathPlain. A presentation with no
// credentials yields no submission.
func (s *SubmissionService) Build(definitionID string, vp domain.VerifiablePresentation, descriptorIDs []string, pathTemplate string) (*domain.PresentationSubmission, error) {
	if len(vp.VerifiableCredential) == 0 {
		return nil, nil
	}

	outer := domain.DescriptorMap{
		Format: JWTVPFormat,
		Path:   "$",
		ID:     vp.ID,
	}

	for i, vcJWT := range vp.VerifiableCredential {
		var id string
		if i < len(descriptorIDs) {
			id = descriptorIDs[i]
		} else {
			var err error
			id, err = credentialID(vcJWT)
			if err != nil {
				return nil, err
			}
		}
		appendNested(&outer, domain.DescriptorMap{
			Format: JWTVCFormat,
			Path:   fmt.Sprintf(pathTemplate, i),
			ID:     id,
		})
	}

	s.logger.Debug("built presentation submission",
		zap.String("definition_id", definitionID),
		zap.Int("credentials", len(vp.VerifiableCredential)))

	return &domain.PresentationSubmission{
		ID:            s.newID(),
		DefinitionID:  definitionID,
		DescriptorMap: []domain.DescriptorMap{outer},
	}, nil
}

// appendNested walks to the innermost link of the chain and attaches
// node there, preserving ascending credential order.
func appendNested(chain *domain.DescriptorMap, node domain.DescriptorMap) {
	current := chain
	for current.PathNested != nil {
		current = current.PathNested
	}
	attached := node
	current.PathNested = &attached
}

// credentialID extracts a credential's identifier from its JWT: the id
// of the vc claim when present, otherwise the jti.
func credentialID(vcJWT string) (string, error) {
	claims, err := unverifiedClaims(vcJWT)
	if err != nil {
		return "", err
	}
	if vc, ok := claims["vc"].(map[string]any); ok {
		if id, ok := vc["id"].(string); ok && id != "" {
			return id, nil
		}
	}
	if jti := stringClaim(claims, "jti"); jti != "" {
		return jti, nil
	}
	return "", fmt.Errorf("%w: credential jwt carries no identifier", ErrParse)
}
