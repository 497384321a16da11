package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-exchange/internal/api"
	"github.com/sirosfoundation/go-wallet-exchange/internal/broker"
	"github.com/sirosfoundation/go-wallet-exchange/internal/exchange"
	"github.com/sirosfoundation/go-wallet-exchange/internal/identity"
	"github.com/sirosfoundation/go-wallet-exchange/internal/pin"
	"github.com/sirosfoundation/go-wallet-exchange/internal/qr"
	"github.com/sirosfoundation/go-wallet-exchange/internal/userdata"
	"github.com/sirosfoundation/go-wallet-exchange/internal/vault"
	"github.com/sirosfoundation/go-wallet-exchange/pkg/config"
	"github.com/sirosfoundation/go-wallet-exchange/pkg/logging"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Wallet Exchange Server",
		zap.String("version", version),
		zap.String("build_time", buildTime),
	)

	// Initialize the identity-record broker
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	entityBroker, err := newBroker(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize broker", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = entityBroker.Close(ctx)
	}()

	logger.Info("Broker initialized", zap.String("type", cfg.Broker.Type))

	// Initialize the key vault
	keyVault, err := newVault(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize vault", zap.Error(err))
	}
	logger.Info("Vault initialized", zap.String("type", cfg.Vault.Type))

	// Wire the services
	users := userdata.NewService(entityBroker, logger)
	pins := pin.NewHub(cfg.JWT.Secret, logger)
	defer pins.Close()

	metadata := exchange.NewMetadataService(exchange.MetadataConfig{
		AuthServerExternalURL: cfg.AuthServer.ExternalURL,
		AuthServerInternalURL: cfg.AuthServer.InternalURL,
		InternalTokenEndpoint: cfg.AuthServer.TokenEndpoint,
	}, logger)
	offers := exchange.NewOfferService(logger)
	proofs := exchange.NewProofService(keyVault, logger)
	presentations := exchange.NewPresentationService(keyVault, logger)
	submissions := exchange.NewSubmissionService(logger)
	authflow := exchange.NewAuthFlowService(keyVault, presentations, submissions, pins, users, logger)
	credentials := exchange.NewCredentialService(proofs, logger)
	issuance := exchange.NewIssuanceService(offers, metadata, authflow, credentials, users, logger)
	attestation := exchange.NewAttestationService(presentations, submissions, users, logger)

	walletIdentity := identity.NewService(identity.Config{
		ProviderURL:  cfg.IdentityProvider.URL,
		ClientID:     cfg.IdentityProvider.ClientID,
		ClientSecret: cfg.IdentityProvider.ClientSecret,
		Username:     cfg.IdentityProvider.Username,
		Password:     cfg.IdentityProvider.Password,
		Warmup:       time.Duration(cfg.IdentityProvider.WarmupSeconds) * time.Second,
	}, keyVault, users, logger)

	bootstrapCtx, stopBootstrap := context.WithCancel(context.Background())
	defer stopBootstrap()
	walletIdentity.Start(bootstrapCtx)

	processor := qr.NewProcessor(issuance, attestation, walletIdentity, logger)

	// HTTP server
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewHandler(processor, attestation, users, pins, logger)
	router := api.NewRouter(handler, cfg.JWT.Secret, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", zap.String("address", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newBroker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (broker.Broker, error) {
	switch cfg.Broker.Type {
	case "orion":
		return broker.NewOrionBroker(cfg.Broker.URL, cfg.Broker.EntitiesPath, logger), nil
	case "mongodb":
		return broker.NewMongoBroker(ctx, cfg.Broker.MongoDB.URI, cfg.Broker.MongoDB.Database,
			time.Duration(cfg.Broker.MongoDB.Timeout)*time.Second, logger)
	case "memory":
		return broker.NewMemoryBroker(), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Broker.Type)
	}
}

func newVault(cfg *config.Config, logger *zap.Logger) (vault.KeyVault, error) {
	switch cfg.Vault.Type {
	case "hashicorp":
		return vault.NewHashicorpVault(cfg.Vault.Address, cfg.Vault.Token, cfg.Vault.Mount, logger)
	case "memory":
		return vault.NewMemoryVault(), nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Vault.Type)
	}
}
