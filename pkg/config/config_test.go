package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "localhost", Port: 8080},
		Broker: BrokerConfig{Type: "memory"},
		Vault:  VaultConfig{Type: "memory"},
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := validConfig()

	err := cfg.Validate()
	if err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			if err == nil {
				t.Error("Expected validation error for invalid port")
			}
		})
	}
}

func TestConfig_Validate_InvalidBrokerType(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.Type = "invalid"

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected validation error for invalid broker type")
	}
}

func TestConfig_Validate_OrionWithoutURL(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.Type = "orion"

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected validation error for orion broker without URL")
	}
}

func TestConfig_Validate_OrionWithURL(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.Type = "orion"
	cfg.Broker.URL = "http://orion:1026"

	err := cfg.Validate()
	if err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate_MongoDBWithoutURI(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.Type = "mongodb"
	cfg.Broker.MongoDB = MongoDBConfig{URI: ""}

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected validation error for mongodb without URI")
	}
}

func TestConfig_Validate_MongoDBWithURI(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.Type = "mongodb"
	cfg.Broker.MongoDB = MongoDBConfig{URI: "mongodb://localhost:27017"}

	err := cfg.Validate()
	if err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate_InvalidVaultType(t *testing.T) {
	cfg := validConfig()
	cfg.Vault.Type = "invalid"

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected validation error for invalid vault type")
	}
}

func TestConfig_Validate_HashicorpVaultWithoutToken(t *testing.T) {
	cfg := validConfig()
	cfg.Vault = VaultConfig{Type: "hashicorp", Address: "http://vault:8200"}

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected validation error for hashicorp vault without token")
	}
}

func TestConfig_Validate_HashicorpVaultComplete(t *testing.T) {
	cfg := validConfig()
	cfg.Vault = VaultConfig{Type: "hashicorp", Address: "http://vault:8200", Token: "root"}

	err := cfg.Validate()
	if err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "localhost", Port: 8080}
	expected := "localhost:8080"

	if cfg.Address() != expected {
		t.Errorf("Address() = %q, want %q", cfg.Address(), expected)
	}
}

func TestServerConfig_Address_DifferentValues(t *testing.T) {
	tests := []struct {
		host     string
		port     int
		expected string
	}{
		{"0.0.0.0", 80, "0.0.0.0:80"},
		{"127.0.0.1", 3000, "127.0.0.1:3000"},
		{"example.com", 443, "example.com:443"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			cfg := ServerConfig{Host: tt.host, Port: tt.port}
			if cfg.Address() != tt.expected {
				t.Errorf("Address() = %q, want %q", cfg.Address(), tt.expected)
			}
		})
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	// A missing file is fine, defaults carry a valid configuration
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Broker.Type != "memory" {
		t.Errorf("Expected default broker type memory, got %q", cfg.Broker.Type)
	}
	if cfg.Vault.Type != "memory" {
		t.Errorf("Expected default vault type memory, got %q", cfg.Vault.Type)
	}
	if cfg.IdentityProvider.WarmupSeconds != 30 {
		t.Errorf("Expected default warmup of 30s, got %d", cfg.IdentityProvider.WarmupSeconds)
	}
}

func TestLoad_ValidYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
server:
  host: localhost
  port: 9090
broker:
  type: orion
  url: http://orion:1026
auth_server:
  external_url: https://auth.example.org
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Broker.URL != "http://orion:1026" {
		t.Errorf("Expected broker URL from file, got %q", cfg.Broker.URL)
	}
	if cfg.AuthServer.ExternalURL != "https://auth.example.org" {
		t.Errorf("Expected auth server external URL from file, got %q", cfg.AuthServer.ExternalURL)
	}
	// Defaults survive for fields the file does not set
	if cfg.Broker.EntitiesPath != "/ngsi-ld/v1/entities" {
		t.Errorf("Expected default entities path, got %q", cfg.Broker.EntitiesPath)
	}
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	content := `
broker:
  type: nosuchbroker
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Expected error for invalid broker type")
	}
}

func TestLoad_BaseURLGeneration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
broker:
  type: memory
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := "http://0.0.0.0:8080"
	if cfg.Server.BaseURL != expected {
		t.Errorf("Expected BaseURL %q, got %q", expected, cfg.Server.BaseURL)
	}
}
