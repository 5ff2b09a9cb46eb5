// Package sqlite is the persistent refresh-token store. The token is sealed
// before it is written, so the database file alone does not reveal it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/store"
	"github.com/aussiebroadwan/sidecar/pkg/cryptox"
	_ "modernc.org/sqlite"
)

type Store struct {
	db     *sql.DB
	path   string
	sealer *cryptox.Sealer
	now    func() time.Time
}

var (
	_ store.RefreshTokens      = (*Store)(nil)
	_ store.AccessPolicySetter = (*Store)(nil)
	_ store.Pinger             = (*Store)(nil)
)

// NewStore opens (creating if needed) the database at path. Call
// ApplyMigrations before use.
func NewStore(path string, sealer *cryptox.Sealer) (*Store, error) {
	if sealer == nil {
		return nil, errors.New("sqlite: sealer is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection; the store holds one row.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{
		db:     db,
		path:   path,
		sealer: sealer,
		now:    time.Now,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SetAccessPolicy maps the policy onto file permissions: trusted contexts
// means only the owning user may read the database.
func (s *Store) SetAccessPolicy(_ context.Context, policy store.AccessPolicy) error {
	mode := os.FileMode(0o600)
	if policy == store.PolicyUntrustedContexts {
		mode = 0o644
	}

	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Chmod(p, mode); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to set permissions on %s: %w", p, err)
		}
	}

	return nil
}
