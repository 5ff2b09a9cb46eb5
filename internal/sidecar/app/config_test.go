package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.Equal(t, "http://localhost:8080", cfg.KeycloakBaseURL)
	require.Equal(t, 40, cfg.ChatPollLimit)
	require.Equal(t, 300*time.Millisecond, cfg.ChatPollInterval)
}

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidecar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
keycloak_base_url: https://sso.example.com/
keycloak_realm: prod
extension_id: from-file
bridge_secret: file-secret
callback_timeout: 2m
token_storage_mode: persistent
port: 9000
`), 0o600))

	t.Setenv("KEYCLOAK_REALM", "from-env")
	t.Setenv("SIDECAR_CALLBACK_PORT", "4000")
	t.Setenv("SHUTDOWN_GRACE_PERIOD", "3")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "https://sso.example.com", cfg.KeycloakBaseURL, "file value, trailing slash trimmed")
	require.Equal(t, "from-env", cfg.KeycloakRealm, "env beats file")
	require.Equal(t, "from-file", cfg.ExtensionID)
	require.Equal(t, "file-secret", cfg.BridgeSecret)
	require.Equal(t, 2*time.Minute, cfg.CallbackTimeout)
	require.Equal(t, StoragePersistent, cfg.TokenStorageMode)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, 4000, cfg.CallbackPort)
	require.Equal(t, 3*time.Second, cfg.ShutdownGracePeriod)
	require.Equal(t, "extension-client", cfg.KeycloakClientID, "default kept")
}

func TestLoadConfigFileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidecar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat_handler_name: other\n"), 0o600))
	t.Setenv(ConfigPathEnv, path)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "other", cfg.ChatHandlerName)
}

func TestLoadConfigMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	t.Run("explicit path must exist", func(t *testing.T) {
		_, err := LoadConfig(missing)
		require.Error(t, err)
	})

	t.Run("env path may be absent", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, missing)
		_, err := LoadConfig("")
		require.NoError(t, err)
	})
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: [1, 2"), 0o600))
		_, err := LoadConfig(path)
		require.ErrorContains(t, err, "error loading config")
	})

	t.Run("storage mode", func(t *testing.T) {
		t.Setenv("SIDECAR_TOKEN_STORAGE_MODE", "cloud")
		_, err := LoadConfig("")
		require.ErrorContains(t, err, "invalid token storage mode")
	})

	t.Run("unparsable env falls back", func(t *testing.T) {
		t.Setenv("PORT", "eighty")
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		require.Equal(t, 8765, cfg.Port)
	})
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.CallbackPort = 70000
	cfg.ChatPollLimit = 0
	cfg.KeycloakRealm = ""

	err := cfg.Validate()
	require.ErrorContains(t, err, "invalid port 0")
	require.ErrorContains(t, err, "invalid callback port 70000")
	require.ErrorContains(t, err, "chat poll limit")
	require.ErrorContains(t, err, "realm")
}
