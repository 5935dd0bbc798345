// Package history records monitoring cycle outcomes in SQLite.
//
// Recording is best-effort: a failing history database is logged and never
// fails the cycle that produced the record.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/laywatch/layout"
)

// Cycle statuses, one per failure kind the monitor distinguishes.
const (
	StatusOK                = "ok"
	StatusSourceMissing     = "source_missing"
	StatusCollectionMissing = "collection_missing"
	StatusPriorUnreadable   = "prior_unreadable"
	StatusWriteConflict     = "write_conflict"
	StatusCancelled         = "cancelled"
	StatusError             = "error"
)

// Record is one cycle's outcome.
type Record struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Status       string    `json:"status"`
	Layouts      int       `json:"layouts"`
	Added        int       `json:"added"`
	Removed      int       `json:"removed"`
	Saved        bool      `json:"saved"`
	SnapshotPath string    `json:"snapshot_path,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Removal is one removed layout attributed to a cycle.
type Removal struct {
	CycleID string `json:"cycle_id"`
	Key     string `json:"key"`
	Label   string `json:"label"`
}

// Log writes and reads cycle history.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
	newID  func() string
}

// Option configures a Log.
type Option func(*Log)

// WithIDGenerator sets a custom cycle ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(l *Log) { l.newID = fn }
}

// NewLog creates a Log over an already-opened database.
func NewLog(db *sql.DB, logger *slog.Logger, opts ...Option) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{
		db:     db,
		logger: logger,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Open opens (creating if needed) the history database at path and applies
// the schema. Parent directories are created first.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return db, nil
}

// RecordCycle writes a cycle record and its removal rows. Errors are
// logged, never returned — history must not fail the cycle. Returns the
// cycle ID.
func (l *Log) RecordCycle(ctx context.Context, rec Record, removed []layout.Entry) string {
	if rec.ID == "" {
		rec.ID = l.newID()
	}

	saved := 0
	if rec.Saved {
		saved = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO cycle_log (
			id, started_at, finished_at, status, layouts,
			added, removed, saved, snapshot_path, error
		) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(), rec.Status,
		rec.Layouts, rec.Added, rec.Removed, saved, rec.SnapshotPath, rec.Error)
	if err != nil {
		l.logger.Warn("history: record cycle failed", "error", err, "status", rec.Status)
		return rec.ID
	}

	for _, e := range removed {
		if _, err := l.db.ExecContext(ctx,
			`INSERT INTO removal_log (cycle_id, key, label) VALUES (?,?,?)`,
			rec.ID, e.Key, e.Label); err != nil {
			l.logger.Warn("history: record removal failed", "error", err, "key", e.Key)
		}
	}
	return rec.ID
}

// RecentCycles returns the newest cycle records, most recent first.
func (l *Log) RecentCycles(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, layouts,
		       added, removed, saved, snapshot_path, error
		FROM cycle_log ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent cycles: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var started, finished int64
		var saved int
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.Layouts,
			&r.Added, &r.Removed, &saved, &r.SnapshotPath, &r.Error); err != nil {
			return nil, fmt.Errorf("history: scan cycle: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		r.Saved = saved != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Removals returns the removed layouts recorded for one cycle.
func (l *Log) Removals(ctx context.Context, cycleID string) ([]Removal, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT cycle_id, key, label FROM removal_log WHERE cycle_id = ?`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("history: removals: %w", err)
	}
	defer rows.Close()

	var out []Removal
	for rows.Next() {
		var r Removal
		if err := rows.Scan(&r.CycleID, &r.Key, &r.Label); err != nil {
			return nil, fmt.Errorf("history: scan removal: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
