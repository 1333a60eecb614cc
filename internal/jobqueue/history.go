// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobqueue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteHistory persists terminal job snapshots to a local sqlite database,
// so completed/failed/cancelled jobs remain queryable after the in-memory
// scheduler sweeps them out past the retention window.
type SQLiteHistory struct {
	db *sql.DB
}

// OpenSQLiteHistory opens (creating if needed) a sqlite database at path and
// ensures its schema exists.
func OpenSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: open history db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	const schema = `
CREATE TABLE IF NOT EXISTS job_history (
	id             TEXT PRIMARY KEY,
	service        TEXT NOT NULL,
	title_id       TEXT NOT NULL,
	status         TEXT NOT NULL,
	created_time   TIMESTAMP NOT NULL,
	started_time   TIMESTAMP,
	completed_time TIMESTAMP,
	output_files   TEXT,
	error_code     TEXT,
	error_message  TEXT
);
CREATE INDEX IF NOT EXISTS job_history_completed_time_idx ON job_history(completed_time);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobqueue: init history schema: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

// Close releases the underlying database handle.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}

// Record upserts job's terminal snapshot into the history table.
func (h *SQLiteHistory) Record(job Job) error {
	outputFiles, err := json.Marshal(job.OutputFiles)
	if err != nil {
		return fmt.Errorf("jobqueue: marshal output files: %w", err)
	}

	_, err = h.db.Exec(`
INSERT INTO job_history (id, service, title_id, status, created_time, started_time, completed_time, output_files, error_code, error_message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	started_time = excluded.started_time,
	completed_time = excluded.completed_time,
	output_files = excluded.output_files,
	error_code = excluded.error_code,
	error_message = excluded.error_message
`,
		job.ID, job.Service, job.TitleID, string(job.Status),
		job.CreatedTime, nullTime(job.StartedTime), nullTime(job.CompletedTime),
		string(outputFiles), job.ErrorCode, job.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("jobqueue: record job history: %w", err)
	}
	return nil
}

// HistoryEntry is one row of job_history, returned by Recent.
type HistoryEntry struct {
	ID            string
	Service       string
	TitleID       string
	Status        string
	CreatedTime   time.Time
	CompletedTime *time.Time
	ErrorCode     string
	ErrorMessage  string
}

// Recent returns up to limit history rows, most recently completed first.
func (h *SQLiteHistory) Recent(limit int) ([]HistoryEntry, error) {
	rows, err := h.db.Query(`
SELECT id, service, title_id, status, created_time, completed_time, error_code, error_message
FROM job_history
ORDER BY completed_time DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: query job history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var completed sql.NullTime
		if err := rows.Scan(&e.ID, &e.Service, &e.TitleID, &e.Status, &e.CreatedTime, &completed, &e.ErrorCode, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("jobqueue: scan job history row: %w", err)
		}
		if completed.Valid {
			e.CompletedTime = &completed.Time
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
