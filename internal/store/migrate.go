package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/HerbHall/tunnelwatch/pkg/plugin"
)

const migrationsDDL = `
CREATE TABLE IF NOT EXISTS _migrations (
	plugin_name TEXT     NOT NULL,
	version     INTEGER  NOT NULL,
	description TEXT     NOT NULL,
	applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (plugin_name, version)
)`

// Migrate applies the migrations of pluginName that are not yet recorded,
// in slice order. Each migration commits with its bookkeeping row, so a
// failure keeps the ones before it.
func (s *SQLiteStore) Migrate(ctx context.Context, pluginName string, migrations []plugin.Migration) error {
	s.bootstrap.Do(func() {
		_, s.bootErr = s.db.ExecContext(ctx, migrationsDDL)
	})
	if s.bootErr != nil {
		return fmt.Errorf("create _migrations: %w", s.bootErr)
	}

	s.migrateMu.Lock()
	defer s.migrateMu.Unlock()

	applied, err := s.appliedVersions(ctx, pluginName)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		err := s.Tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO _migrations (plugin_name, version, description) VALUES (?, ?, ?)",
				pluginName, m.Version, m.Description)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", pluginName, m.Version, m.Description, err)
		}
	}
	return nil
}

func (s *SQLiteStore) appliedVersions(ctx context.Context, pluginName string) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT version FROM _migrations WHERE plugin_name = ?", pluginName)
	if err != nil {
		return nil, fmt.Errorf("list migrations for %s: %w", pluginName, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
