package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/store"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/store/drivers/memory"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/store/drivers/sqlite"
	"github.com/aussiebroadwan/sidecar/pkg/cryptox"
)

// sealingInfo scopes the key derived from the master key.
const sealingInfo = "sidecar/refresh-token/v1"

// InitTokenStore opens the refresh-token store for the configured mode.
//
// Storage modes:
//   - "ephemeral": the token lives in memory and is gone on restart, like
//     browser session storage.
//   - "persistent": the token is sealed with a key derived from the master
//     key and kept in SQLite.
//
// The returned close function is never nil.
func InitTokenStore(cfg Config, logger *slog.Logger) (store.RefreshTokens, func() error, error) {
	if cfg.TokenStorageMode != StoragePersistent {
		logger.Info("refresh token storage", "mode", StorageEphemeral)
		return memory.New(), func() error { return nil }, nil
	}

	material, ephemeralKey, err := cryptox.LoadMasterKey(cfg.MasterKeyPath, MasterKeyEnv)
	if err != nil {
		return nil, nil, err
	}
	if ephemeralKey {
		logger.Warn("no master key configured, persisted sessions will not survive a restart",
			"hint", "set SIDECAR_MASTER_KEY_PATH or "+MasterKeyEnv)
	}

	sealer, err := cryptox.NewSealer(material, sealingInfo)
	if err != nil {
		return nil, nil, err
	}

	db, err := sqlite.NewStore(cfg.DatabaseFile, sealer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	logger.Info("refresh token storage", "mode", StoragePersistent, "path", cfg.DatabaseFile)
	return db, db.Close, nil
}
