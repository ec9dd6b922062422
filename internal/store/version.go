package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrNewerSchema means the database was last opened by a newer TunnelWatch
// than the running binary.
var ErrNewerSchema = errors.New("database was created by a newer version of TunnelWatch")

const devVersion = "dev"

const schemaMetaDDL = `
CREATE TABLE IF NOT EXISTS _schema_meta (
	id          INTEGER  PRIMARY KEY CHECK (id = 1),
	app_version TEXT     NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// CheckVersion refuses to run against a database written by a newer
// binary and otherwise records current as the latest version seen.
// A "dev" build on either side always passes.
func (s *SQLiteStore) CheckVersion(ctx context.Context, current string) error {
	if _, err := s.db.ExecContext(ctx, schemaMetaDDL); err != nil {
		return fmt.Errorf("create _schema_meta: %w", err)
	}

	var stored string
	err := s.db.QueryRowContext(ctx, "SELECT app_version FROM _schema_meta WHERE id = 1").Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.recordVersion(ctx, current)
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}

	if stored == devVersion || current == devVersion {
		return s.recordVersion(ctx, current)
	}

	switch cmp := semver.Compare(canonical(current), canonical(stored)); {
	case cmp < 0:
		return fmt.Errorf("%w: database=%s, binary=%s", ErrNewerSchema, stored, current)
	case cmp > 0:
		return s.recordVersion(ctx, current)
	}
	return nil
}

func (s *SQLiteStore) recordVersion(ctx context.Context, v string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO _schema_meta (id, app_version) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET app_version = excluded.app_version, updated_at = CURRENT_TIMESTAMP`,
		v)
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// canonical adds the "v" prefix semver expects.
func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
