// Package identity bootstraps the wallet's own DID. The DID is
// generated once per process after a warm-up delay and handed to every
// exchange flow through a blocking accessor.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/vault"
)

// ErrBootstrapFailed marks readers failed by an unsuccessful DID
// bootstrap.
var ErrBootstrapFailed = errors.New("wallet did bootstrap failed")

// Config configures the bootstrap: the identity provider holding the
// wallet's service account and the warm-up delay before the first
// token request.
type Config struct {
	ProviderURL  string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Warmup       time.Duration
}

// DidStore persists the generated DID on the holder record.
type DidStore interface {
	SaveDid(ctx context.Context, userID, did, didType string) error
}

// Service is the single-assignment DID cell. Start fills it once;
// DID blocks until it is filled or the bootstrap fails.
type Service struct {
	config Config
	vault  vault.KeyVault
	store  DidStore
	client *http.Client
	logger *zap.Logger

	ready chan struct{}
	did   string
	err   error
}

// NewService creates an unfilled DID cell.
func NewService(config Config, keyVault vault.KeyVault, store DidStore, logger *zap.Logger) *Service {
	return &Service{
		config: config,
		vault:  keyVault,
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.Named("identity"),
		ready:  make(chan struct{}),
	}
}

// Start runs the bootstrap in the background: wait out the warm-up,
// authenticate the service account, generate the key pair and persist
// the DID. The outcome, success or failure, is published to readers
// exactly once.
func (s *Service) Start(ctx context.Context) {
	go func() {
		defer close(s.ready)
		s.did, s.err = s.bootstrap(ctx)
		if s.err != nil {
			s.logger.Error("wallet did bootstrap failed", zap.Error(s.err))
			return
		}
		s.logger.Info("wallet did ready", zap.String("did", s.did))
	}()
}

// DID returns the wallet DID, blocking until the bootstrap finishes.
func (s *Service) DID(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.ready:
		return s.did, s.err
	}
}

func (s *Service) bootstrap(ctx context.Context) (string, error) {
	if s.config.Warmup > 0 {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrBootstrapFailed, ctx.Err())
		case <-time.After(s.config.Warmup):
		}
	}

	did, err := s.vault.GenerateKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: generating key: %v", ErrBootstrapFailed, err)
	}

	// Without an identity provider the DID stays process-local, which
	// is enough for dev mode.
	if s.config.ProviderURL == "" {
		return did, nil
	}

	userID, err := s.serviceAccountUserID(ctx)
	if err != nil {
		return "", err
	}
	if err := s.store.SaveDid(ctx, userID, did, "did:key"); err != nil {
		return "", fmt.Errorf("%w: persisting did: %v", ErrBootstrapFailed, err)
	}
	return did, nil
}

// serviceAccountUserID authenticates the wallet's service account with
// the resource-owner password grant and returns the sub claim of the
// issued access token.
func (s *Service) serviceAccountUserID(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {s.config.ClientID},
		"client_secret": {s.config.ClientSecret},
		"username":      {s.config.Username},
		"password":      {s.config.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.ProviderURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: building token request: %v", ErrBootstrapFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: requesting service account token: %v", ErrBootstrapFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token endpoint returned status %d", ErrBootstrapFailed, resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", ErrBootstrapFailed, err)
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: parsing access token: %v", ErrBootstrapFailed, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: unexpected access token claims", ErrBootstrapFailed)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: access token carries no sub claim", ErrBootstrapFailed)
	}
	return sub, nil
}
