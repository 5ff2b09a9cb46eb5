package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the optional YAML file layered under the environment.
const ConfigPathEnv = "SIDECAR_CONFIG"

// Storage modes for the refresh token.
const (
	StorageEphemeral  = "ephemeral"
	StoragePersistent = "persistent"
)

// MasterKeyEnv may hold the key material used to seal persisted tokens.
const MasterKeyEnv = "SIDECAR_MASTER_KEY"

type Config struct {
	KeycloakBaseURL  string `yaml:"keycloak_base_url"`  // default: http://localhost:8080
	KeycloakRealm    string `yaml:"keycloak_realm"`     // default: test
	KeycloakClientID string `yaml:"keycloak_client_id"` // default: extension-client
	KeycloakScopes   string `yaml:"keycloak_scopes"`    // space separated, default: "openid profile"

	APIBaseURL      string `yaml:"api_base_url"`      // default: http://localhost:8000/api
	ChatHandlerName string `yaml:"chat_handler_name"` // default: sidepanel_chat

	ExtensionID     string        `yaml:"extension_id"`     // Required for serve: only this extension is trusted
	BridgeSecret    string        `yaml:"bridge_secret"`    // optional, required on every bridge message when set
	CallbackPort    int           `yaml:"callback_port"`    // loopback redirect port (default: 3000)
	CallbackTimeout time.Duration `yaml:"callback_timeout"` // how long to wait for the redirect (default: 5m)

	TokenStorageMode string `yaml:"token_storage_mode"` // ephemeral or persistent (default: ephemeral)
	DatabaseFile     string `yaml:"database_file"`      // persistent mode only (default: sidecar.db)
	MasterKeyPath    string `yaml:"master_key_path"`    // optional, see MasterKeyEnv

	HTTPTimeout      time.Duration `yaml:"http_timeout"`       // backend and token endpoint (default: 30s)
	ChatPollInterval time.Duration `yaml:"chat_poll_interval"` // default: 300ms
	ChatPollLimit    int           `yaml:"chat_poll_limit"`    // default: 40

	Env                 string        `yaml:"env"`                   // default: dev
	LogLevel            string        `yaml:"log_level"`             // default: info
	LogFormat           string        `yaml:"log_format"`            // default: json
	Port                int           `yaml:"port"`                  // bridge port on 127.0.0.1 (default: 8765)
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"` // default: 10s
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		KeycloakBaseURL:     "http://localhost:8080",
		KeycloakRealm:       "test",
		KeycloakClientID:    "extension-client",
		KeycloakScopes:      "openid profile",
		APIBaseURL:          "http://localhost:8000/api",
		ChatHandlerName:     "sidepanel_chat",
		CallbackPort:        3000,
		CallbackTimeout:     5 * time.Minute,
		TokenStorageMode:    StorageEphemeral,
		DatabaseFile:        "sidecar.db",
		HTTPTimeout:         30 * time.Second,
		ChatPollInterval:    300 * time.Millisecond,
		ChatPollLimit:       40,
		Env:                 "dev",
		LogLevel:            "info",
		LogFormat:           "json",
		Port:                8765,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// LoadConfig starts from DefaultConfig, applies the YAML file at path (or
// at $SIDECAR_CONFIG when path is empty) and finally the environment.
// A missing file is only an error when path was given explicitly.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(ConfigPathEnv)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist) && !explicit:
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
			}
		}
	}

	cfg.KeycloakBaseURL = getEnvOrDefault("KEYCLOAK_BASE_URL", cfg.KeycloakBaseURL)
	cfg.KeycloakRealm = getEnvOrDefault("KEYCLOAK_REALM", cfg.KeycloakRealm)
	cfg.KeycloakClientID = getEnvOrDefault("KEYCLOAK_CLIENT_ID", cfg.KeycloakClientID)
	cfg.KeycloakScopes = getEnvOrDefault("KEYCLOAK_SCOPES", cfg.KeycloakScopes)
	cfg.APIBaseURL = getEnvOrDefault("API_BASE_URL", cfg.APIBaseURL)
	cfg.ChatHandlerName = getEnvOrDefault("CHAT_A2A_HANDLER_NAME", cfg.ChatHandlerName)
	cfg.ExtensionID = getEnvOrDefault("SIDECAR_EXTENSION_ID", cfg.ExtensionID)
	cfg.BridgeSecret = getEnvOrDefault("SIDECAR_BRIDGE_SECRET", cfg.BridgeSecret)
	cfg.CallbackPort = getEnvIntOrDefault("SIDECAR_CALLBACK_PORT", cfg.CallbackPort)
	cfg.CallbackTimeout = getEnvDurationOrDefault("SIDECAR_CALLBACK_TIMEOUT", cfg.CallbackTimeout)
	cfg.TokenStorageMode = getEnvOrDefault("SIDECAR_TOKEN_STORAGE_MODE", cfg.TokenStorageMode)
	cfg.DatabaseFile = getEnvOrDefault("SIDECAR_DATABASE_FILE", cfg.DatabaseFile)
	cfg.MasterKeyPath = getEnvOrDefault("SIDECAR_MASTER_KEY_PATH", cfg.MasterKeyPath)
	cfg.HTTPTimeout = getEnvDurationOrDefault("SIDECAR_HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.ChatPollInterval = getEnvDurationOrDefault("CHAT_POLL_INTERVAL", cfg.ChatPollInterval)
	cfg.ChatPollLimit = getEnvIntOrDefault("CHAT_POLL_LIMIT", cfg.ChatPollLimit)
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)

	cfg.KeycloakBaseURL = strings.TrimRight(cfg.KeycloakBaseURL, "/")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error

	switch c.TokenStorageMode {
	case StorageEphemeral, StoragePersistent:
	default:
		errs = append(errs, fmt.Errorf("invalid token storage mode %q (want %s or %s)",
			c.TokenStorageMode, StorageEphemeral, StoragePersistent))
	}
	if c.KeycloakRealm == "" || c.KeycloakClientID == "" {
		errs = append(errs, errors.New("keycloak realm and client id are required"))
	}
	if c.CallbackPort <= 0 || c.CallbackPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid callback port %d", c.CallbackPort))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.ChatPollLimit <= 0 {
		errs = append(errs, fmt.Errorf("chat poll limit must be positive, got %d", c.ChatPollLimit))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
