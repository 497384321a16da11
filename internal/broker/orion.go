package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
)

// OrionBroker is the NGSI-LD context broker client used in production
// deployments (Orion-LD or Scorpio).
type OrionBroker struct {
	baseURL      string
	entitiesPath string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewOrionBroker creates a client for the context broker at baseURL.
// entitiesPath defaults to /ngsi-ld/v1/entities.
func NewOrionBroker(baseURL, entitiesPath string, logger *zap.Logger) *OrionBroker {
	if entitiesPath == "" {
		entitiesPath = "/ngsi-ld/v1/entities"
	}
	return &OrionBroker{
		baseURL:      baseURL,
		entitiesPath: entitiesPath,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("orion"),
	}
}

func (b *OrionBroker) entityURL(userID string) string {
	return b.baseURL + b.entitiesPath + "/" + domain.EntityIDPrefix + userID
}

// PostEntity creates the holder record in the broker.
func (b *OrionBroker) PostEntity(ctx context.Context, entity domain.UserEntity) error {
	body, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to serialize entity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+b.entitiesPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusNoContent:
		b.logger.Debug("Entity created", zap.String("id", entity.ID))
		return nil
	case http.StatusConflict:
		return ErrAlreadyExist
	default:
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: entity creation returned status %d: %s", ErrUnavailable, resp.StatusCode, string(payload))
	}
}

// GetEntityByID fetches the holder record. Absence is reported through
// the boolean, not an error, so callers can branch into find-or-create.
func (b *OrionBroker) GetEntityByID(ctx context.Context, userID string) (domain.UserEntity, bool, error) {
	var entity domain.UserEntity

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.entityURL(userID), nil)
	if err != nil {
		return entity, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return entity, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return entity, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return entity, false, fmt.Errorf("%w: entity fetch returned status %d: %s", ErrUnavailable, resp.StatusCode, string(payload))
	}

	if err := json.NewDecoder(resp.Body).Decode(&entity); err != nil {
		return entity, false, fmt.Errorf("failed to parse entity: %w", err)
	}
	return entity, true, nil
}

// UpdateEntity replaces the attributes of the holder record.
func (b *OrionBroker) UpdateEntity(ctx context.Context, userID string, entity domain.UserEntity) error {
	// NGSI-LD attribute update: the id/type pair is immutable, only the
	// attributes travel in the PATCH body.
	attrs := map[string]any{
		"dids": entity.Dids,
		"vcs":  entity.VCs,
	}
	body, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to serialize entity attributes: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, b.entityURL(userID)+"/attrs", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		b.logger.Debug("Entity updated", zap.String("user_id", userID))
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: entity update returned status %d: %s", ErrUnavailable, resp.StatusCode, string(payload))
	}
}

// Close is a no-op for the HTTP client.
func (b *OrionBroker) Close(ctx context.Context) error {
	return nil
}
