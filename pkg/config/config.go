package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server           ServerConfig           `yaml:"server" envconfig:"SERVER"`
	Logging          LoggingConfig          `yaml:"logging" envconfig:"LOGGING"`
	Broker           BrokerConfig           `yaml:"broker" envconfig:"BROKER"`
	Vault            VaultConfig            `yaml:"vault" envconfig:"VAULT"`
	AuthServer       AuthServerConfig       `yaml:"auth_server" envconfig:"AUTH_SERVER"`
	IdentityProvider IdentityProviderConfig `yaml:"identity_provider" envconfig:"IDENTITY_PROVIDER"`
	JWT              JWTConfig              `yaml:"jwt" envconfig:"JWT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host    string `yaml:"host" envconfig:"HOST"`
	Port    int    `yaml:"port" envconfig:"PORT"`
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// BrokerConfig contains identity-record store configuration
type BrokerConfig struct {
	Type         string        `yaml:"type" envconfig:"TYPE"` // memory, orion, mongodb
	URL          string        `yaml:"url" envconfig:"URL"`
	EntitiesPath string        `yaml:"entities_path" envconfig:"ENTITIES_PATH"`
	MongoDB      MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// VaultConfig contains key-custody backend configuration
type VaultConfig struct {
	Type    string `yaml:"type" envconfig:"TYPE"` // memory, hashicorp
	Address string `yaml:"address" envconfig:"ADDRESS"`
	Token   string `yaml:"token" envconfig:"TOKEN"`
	Mount   string `yaml:"mount" envconfig:"MOUNT"`
}

// AuthServerConfig carries the wallet's authorization-server endpoints.
// InternalURL and TokenEndpoint back the metadata overrides kept for
// issuers that still advertise the shared authorization server.
type AuthServerConfig struct {
	ExternalURL   string `yaml:"external_url" envconfig:"EXTERNAL_URL"`
	InternalURL   string `yaml:"internal_url" envconfig:"INTERNAL_URL"`
	TokenEndpoint string `yaml:"token_endpoint" envconfig:"TOKEN_ENDPOINT"`
}

// IdentityProviderConfig configures the service account the wallet uses
// to bootstrap its own DID at startup.
type IdentityProviderConfig struct {
	URL           string `yaml:"url" envconfig:"URL"`
	ClientID      string `yaml:"client_id" envconfig:"CLIENT_ID"`
	ClientSecret  string `yaml:"client_secret" envconfig:"CLIENT_SECRET"`
	Username      string `yaml:"username" envconfig:"USERNAME"`
	Password      string `yaml:"password" envconfig:"PASSWORD"`
	WarmupSeconds int    `yaml:"warmup_seconds" envconfig:"WARMUP_SECONDS"`
}

// JWTConfig contains verification material for wallet app tokens
type JWTConfig struct {
	Secret string `yaml:"secret" envconfig:"SECRET"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("WALLET", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Set BaseURL if not provided
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Broker: BrokerConfig{
			Type:         "memory",
			EntitiesPath: "/ngsi-ld/v1/entities",
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "wallet",
				Timeout:  10,
			},
		},
		Vault: VaultConfig{
			Type:  "memory",
			Mount: "kv",
		},
		IdentityProvider: IdentityProviderConfig{
			WarmupSeconds: 30,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Broker.Type {
	case "memory", "orion", "mongodb":
	default:
		return fmt.Errorf("invalid broker type: %s (must be memory, orion, or mongodb)", c.Broker.Type)
	}

	if c.Broker.Type == "orion" && c.Broker.URL == "" {
		return fmt.Errorf("broker url is required when using the orion broker")
	}
	if c.Broker.Type == "mongodb" && c.Broker.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb broker")
	}

	switch c.Vault.Type {
	case "memory", "hashicorp":
	default:
		return fmt.Errorf("invalid vault type: %s (must be memory or hashicorp)", c.Vault.Type)
	}
	if c.Vault.Type == "hashicorp" && (c.Vault.Address == "" || c.Vault.Token == "") {
		return fmt.Errorf("vault address and token are required when using hashicorp vault")
	}

	return nil
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
