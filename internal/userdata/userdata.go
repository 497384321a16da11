// Package userdata maintains the holder's identity record: the DIDs and
// verifiable credentials stored in the context broker, and the selection
// queries the exchange flows run over them.
package userdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/broker"
	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
	"github.com/sirosfoundation/go-wallet-exchange/internal/exchange"
)

// Service serializes all mutations of a holder record behind a
// per-holder lock and applies them read-modify-write through the
// broker.
type Service struct {
	broker broker.Broker
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a user data service over the given broker.
func NewService(b broker.Broker, logger *zap.Logger) *Service {
	return &Service{
		broker: b,
		logger: logger.Named("userdata"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// holderLock returns the mutex serializing mutations of one holder.
func (s *Service) holderLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// getOrCreate loads the holder record, creating it first when the
// broker has none. A record still absent after the create surfaces
// exchange.ErrEntityNotFound.
func (s *Service) getOrCreate(ctx context.Context, userID string) (domain.UserEntity, error) {
	entity, found, err := s.broker.GetEntityByID(ctx, userID)
	if err != nil {
		return domain.UserEntity{}, err
	}
	if found {
		return entity, nil
	}

	if err := s.broker.PostEntity(ctx, domain.NewUserEntity(userID)); err != nil && !errors.Is(err, broker.ErrAlreadyExist) {
		return domain.UserEntity{}, err
	}

	entity, found, err = s.broker.GetEntityByID(ctx, userID)
	if err != nil {
		return domain.UserEntity{}, err
	}
	if !found {
		return domain.UserEntity{}, fmt.Errorf("%w: user %s absent after create", exchange.ErrEntityNotFound, userID)
	}
	return entity, nil
}

// mutate applies fn to the holder record under the holder lock and
// writes the result back.
func (s *Service) mutate(ctx context.Context, userID string, fn func(*domain.UserEntity) error) error {
	lock := s.holderLock(userID)
	lock.Lock()
	defer lock.Unlock()

	entity, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(&entity); err != nil {
		return err
	}
	return s.broker.UpdateEntity(ctx, userID, entity)
}

// SaveDid appends a DID to the holder record.
func (s *Service) SaveDid(ctx context.Context, userID, did, didType string) error {
	err := s.mutate(ctx, userID, func(entity *domain.UserEntity) error {
		for _, attr := range entity.Dids.Value {
			if attr.Value == did {
				return nil
			}
		}
		entity.Dids.Value = append(entity.Dids.Value, domain.DidAttribute{Type: didType, Value: did})
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("stored did", zap.String("user_id", userID), zap.String("did", did))
	return nil
}

// SaveVC stores a credential JWT on the holder record, once as the raw
// token and once as its decoded vc claim.
func (s *Service) SaveVC(ctx context.Context, userID, vcJWT string) error {
	vcID, vcJSON, err := decodeCredential(vcJWT)
	if err != nil {
		return err
	}

	err = s.mutate(ctx, userID, func(entity *domain.UserEntity) error {
		entity.VCs.Value = append(entity.VCs.Value,
			domain.VCAttribute{ID: vcID, Type: domain.VCFormatJWT, Value: vcJWT},
			domain.VCAttribute{ID: vcID, Type: domain.VCFormatJSON, Value: vcJSON},
		)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("stored credential", zap.String("user_id", userID), zap.String("vc_id", vcID))
	return nil
}

// DeleteVC removes every stored format of one credential.
func (s *Service) DeleteVC(ctx context.Context, userID, vcID string) error {
	return s.mutate(ctx, userID, func(entity *domain.UserEntity) error {
		kept := entity.VCs.Value[:0]
		for _, attr := range entity.VCs.Value {
			if attr.ID != vcID {
				kept = append(kept, attr)
			}
		}
		entity.VCs.Value = kept
		return nil
	})
}

// DeleteDid removes a DID from the holder record.
func (s *Service) DeleteDid(ctx context.Context, userID, did string) error {
	return s.mutate(ctx, userID, func(entity *domain.UserEntity) error {
		kept := entity.Dids.Value[:0]
		for _, attr := range entity.Dids.Value {
			if attr.Value != did {
				kept = append(kept, attr)
			}
		}
		entity.Dids.Value = kept
		return nil
	})
}

// ListDids returns the holder's DIDs.
func (s *Service) ListDids(ctx context.Context, userID string) ([]string, error) {
	entity, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	dids := make([]string, 0, len(entity.Dids.Value))
	for _, attr := range entity.Dids.Value {
		dids = append(dids, attr.Value)
	}
	return dids, nil
}

// ListVCs returns the holder's credentials as selectable summaries.
func (s *Service) ListVCs(ctx context.Context, userID string) ([]domain.CredentialsBasicInfo, error) {
	entity, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return basicInfo(entity.VCs.Value, nil), nil
}

// SelectableVCs returns the holder's credentials matching any of the
// requested types.
func (s *Service) SelectableVCs(ctx context.Context, userID string, types []string) ([]domain.CredentialsBasicInfo, error) {
	entity, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return basicInfo(entity.VCs.Value, types), nil
}

// SelectByTypes returns one stored credential JWT per requested type,
// in request order. Types with no matching credential are skipped.
func (s *Service) SelectByTypes(ctx context.Context, userID string, types []string) ([]string, error) {
	entity, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	var selected []string
	for _, wanted := range types {
		for _, attr := range entity.VCs.Value {
			if attr.Type != domain.VCFormatJSON {
				continue
			}
			if !hasType(attr, wanted) {
				continue
			}
			if raw, ok := rawToken(entity.VCs.Value, attr.ID); ok {
				selected = append(selected, raw)
			}
			break
		}
	}
	return selected, nil
}

// RawCredentials returns the stored credential JWTs for the given ids,
// in id order. A missing credential fails the whole selection.
func (s *Service) RawCredentials(ctx context.Context, userID string, ids []string) ([]string, error) {
	entity, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		raw, ok := rawToken(entity.VCs.Value, id)
		if !ok {
			return nil, fmt.Errorf("%w: credential %s", exchange.ErrEntityNotFound, id)
		}
		tokens = append(tokens, raw)
	}
	return tokens, nil
}

// GetVC returns one stored credential in the requested format.
func (s *Service) GetVC(ctx context.Context, userID, vcID, format string) (any, error) {
	entity, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, attr := range entity.VCs.Value {
		if attr.ID == vcID && attr.Type == format {
			return attr.Value, nil
		}
	}
	return nil, fmt.Errorf("%w: credential %s (%s)", exchange.ErrEntityNotFound, vcID, format)
}

// decodeCredential extracts the id and the vc claim of a credential
// JWT.
func decodeCredential(vcJWT string) (string, map[string]any, error) {
	token, _, err := jwt.NewParser().ParseUnverified(vcJWT, jwt.MapClaims{})
	if err != nil {
		return "", nil, fmt.Errorf("%w: credential jwt: %v", exchange.ErrParse, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, fmt.Errorf("%w: credential jwt: unexpected claims type", exchange.ErrParse)
	}

	vc, ok := claims["vc"].(map[string]any)
	if !ok {
		return "", nil, fmt.Errorf("%w: credential jwt carries no vc claim", exchange.ErrParse)
	}
	id, _ := vc["id"].(string)
	if id == "" {
		if jti, ok := claims["jti"].(string); ok {
			id = jti
		}
	}
	if id == "" {
		return "", nil, fmt.Errorf("%w: credential jwt carries no identifier", exchange.ErrParse)
	}
	return id, vc, nil
}

// basicInfo summarizes the vc_json attributes, optionally filtered to
// credentials carrying any of the wanted types.
func basicInfo(attrs []domain.VCAttribute, wanted []string) []domain.CredentialsBasicInfo {
	infos := make([]domain.CredentialsBasicInfo, 0)
	for _, attr := range attrs {
		if attr.Type != domain.VCFormatJSON {
			continue
		}
		vc, ok := attr.Value.(map[string]any)
		if !ok {
			continue
		}
		types := vcTypes(vc)
		if wanted != nil && !anyMatch(types, wanted) {
			continue
		}
		info := domain.CredentialsBasicInfo{ID: attr.ID, VcType: types}
		if subject, ok := vc["credentialSubject"]; ok {
			if encoded, err := json.Marshal(subject); err == nil {
				info.CredentialSubject = encoded
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func hasType(attr domain.VCAttribute, wanted string) bool {
	vc, ok := attr.Value.(map[string]any)
	if !ok {
		return false
	}
	for _, t := range vcTypes(vc) {
		if t == wanted {
			return true
		}
	}
	return false
}

func vcTypes(vc map[string]any) []string {
	raw, ok := vc["type"].([]any)
	if !ok {
		return nil
	}
	types := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			types = append(types, s)
		}
	}
	return types
}

func rawToken(attrs []domain.VCAttribute, vcID string) (string, bool) {
	for _, attr := range attrs {
		if attr.ID == vcID && attr.Type == domain.VCFormatJWT {
			raw, ok := attr.Value.(string)
			return raw, ok
		}
	}
	return "", false
}

func anyMatch(have, wanted []string) bool {
	for _, w := range wanted {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
