package tunnel

import (
	"database/sql"

	"github.com/HerbHall/tunnelwatch/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create tunnel journal",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS tunnel_journal (
						id TEXT PRIMARY KEY,
						action TEXT NOT NULL,
						backend TEXT NOT NULL,
						success INTEGER NOT NULL,
						output TEXT NOT NULL DEFAULT '',
						detail TEXT NOT NULL DEFAULT '',
						started_at DATETIME NOT NULL,
						finished_at DATETIME NOT NULL,
						duration_ms REAL NOT NULL DEFAULT 0
					)`,
					`CREATE INDEX IF NOT EXISTS idx_tunnel_journal_started ON tunnel_journal(started_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
