// Package store keeps the relay's small durable state in SQLite: the device
// presence catalog and the index of archived snapshots.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	room      TEXT PRIMARY KEY,
	status    TEXT NOT NULL,
	last_seen INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	room        TEXT NOT NULL,
	kid_id      TEXT NOT NULL,
	file        TEXT NOT NULL UNIQUE,
	mime        TEXT NOT NULL,
	size        INTEGER NOT NULL,
	captured_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS snapshots_room_time ON snapshots (room, captured_at DESC);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// Store wraps a connection pool; Take/Put follow sqlitex semantics.
type Store struct {
	pool *sqlitex.Pool
	path string
}

// Open creates the parent directory, opens the pool and applies the schema
// on every new connection.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}

	poolSize := max(runtime.NumCPU(), 4)
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	log.Info().Str("module", "store").Str("path", path).Int("pool_size", poolSize).Msg("sqlite pool opened")
	return &Store{pool: pool, path: path}, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("store: schema: %w", err)
	}
	return nil
}

func (s *Store) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: take: %w", err)
	}
	return conn, nil
}

func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		log.Error().Str("module", "store").Str("path", s.path).Err(err).Msg("sqlite pool close error")
		return fmt.Errorf("store: close %s: %w", s.path, err)
	}
	log.Info().Str("module", "store").Str("path", s.path).Msg("sqlite pool closed")
	return nil
}
