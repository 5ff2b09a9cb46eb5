package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/store"
)

const (
	selectSecret = `SELECT value FROM secrets WHERE key = ?`
	upsertSecret = `INSERT INTO secrets (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	deleteSecret = `DELETE FROM secrets WHERE key = ?`
)

var aad = []byte(store.RefreshTokenKey)

func (s *Store) Read(ctx context.Context) (string, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx, selectSecret, store.RefreshTokenKey).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}

	plaintext, err := s.sealer.Open(sealed, aad)
	if err != nil {
		// Sealed under another master key; the value is unusable.
		if err := s.Clear(ctx); err != nil {
			return "", err
		}
		return "", nil
	}

	return string(plaintext), nil
}

func (s *Store) Write(ctx context.Context, token string) error {
	sealed, err := s.sealer.Seal([]byte(token), aad)
	if err != nil {
		return fmt.Errorf("failed to seal refresh token: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, upsertSecret, store.RefreshTokenKey, sealed, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to write refresh token: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, deleteSecret, store.RefreshTokenKey); err != nil {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}
	return nil
}
