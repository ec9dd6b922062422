// Package store owns the TunnelWatch SQLite database. Today only the tunnel
// journal lives there; each plugin owns its tables through versioned
// migrations recorded in _migrations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/HerbHall/tunnelwatch/pkg/plugin"

	_ "modernc.org/sqlite"
)

var _ plugin.Store = (*SQLiteStore)(nil)

// Applied on every open. modernc.org/sqlite takes pragmas as statements,
// not DSN parameters.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// SQLiteStore implements plugin.Store on a single-writer SQLite handle.
type SQLiteStore struct {
	db *sql.DB

	migrateMu sync.Mutex
	bootstrap sync.Once
	bootErr   error
}

// New opens or creates the database at path, creating its directory when
// needed. ":memory:" opens a private in-memory database.
func New(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("ensure data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := configure(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

func configure(db *sql.DB) error {
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DB exposes the handle for plugin queries.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Ping backs the /readyz probe.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx runs fn in a transaction, committing only when fn returns nil.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
