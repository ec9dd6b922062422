package tunnel

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is one journaled connector attempt.
type Entry struct {
	ID         string    `json:"id"`
	Action     Action    `json:"action"`
	Backend    string    `json:"backend"`
	Success    bool      `json:"success"`
	Output     string    `json:"output,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs float64   `json:"duration_ms"`
}

// Journal persists connector attempts in SQLite.
type Journal struct {
	db *sql.DB
}

// NewJournal creates a Journal backed by db. The tunnel migrations must
// already have run.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Insert stores an entry.
func (j *Journal) Insert(ctx context.Context, e *Entry) error {
	success := 0
	if e.Success {
		success = 1
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO tunnel_journal (
			id, action, backend, success, output, detail, started_at, finished_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.Backend, success, e.Output, e.Detail,
		e.StartedAt.UTC(), e.FinishedAt.UTC(), e.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// ListRecent returns at most limit entries, newest first.
func (j *Journal) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, action, backend, success, output, detail, started_at, finished_at, duration_ms
		FROM tunnel_journal ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		var success int
		if err := rows.Scan(
			&e.ID, &action, &e.Backend, &success, &e.Output, &e.Detail,
			&e.StartedAt, &e.FinishedAt, &e.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Action = Action(action)
		e.Success = success != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteBefore removes entries that started before cutoff.
func (j *Journal) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM tunnel_journal WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old journal entries: %w", err)
	}
	return res.RowsAffected()
}
