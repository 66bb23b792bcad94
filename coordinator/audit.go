package coordinator

import (
	"context"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"shardfs/sqlite"
)

// AuditLog appends structural namespace mutations (mkdir, store_metadata,
// delete_file, delete_directory) to a local SQLite table for operational
// forensics. It is not consulted for recovery: the coordinator never reads
// it back on startup, so it does not reintroduce crash-safe restart.
type AuditLog struct {
	db *sqlite.Database
}

// OpenAuditLog opens (or creates) the audit database at path.
func OpenAuditLog(path string) (*AuditLog, error) {
	db, err := sqlite.Open(path, sqlite.Options{
		DriverName:  "sqlite3",
		JournalMode: "WAL",
		Synchronous: "NORMAL",
	})
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS operations (
		request_id TEXT,
		op         TEXT NOT NULL,
		path       TEXT,
		detail     TEXT,
		occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_operations_op ON operations(op);
	CREATE INDEX IF NOT EXISTS idx_operations_path ON operations(path);
	`
	if _, err := db.Exec(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit log schema: %w", err)
	}
	return &AuditLog{db: db}, nil
}

// Record appends one audit entry. Failures are non-fatal to the caller: the
// audit log is observability, not correctness, so Record swallows its own
// errors rather than returning them into the request path.
func (a *AuditLog) Record(requestID, op, path, detail string) {
	if a == nil {
		return
	}
	_, _ = a.db.Exec(context.Background(),
		`INSERT INTO operations (request_id, op, path, detail, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		requestID, op, path, detail, time.Now().UTC(),
	)
}

// Entry is one recorded audit row, as returned by Recent.
type Entry struct {
	RequestID  string
	Op         string
	Path       string
	Detail     string
	OccurredAt time.Time
}

// Recent returns the last limit audit entries, most recent first. Intended
// for operational inspection (e.g. an "audit-tail" command), not for any
// request-path decision.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := a.db.Query(ctx,
		`SELECT request_id, op, path, detail, occurred_at FROM operations ORDER BY occurred_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RequestID, &e.Op, &e.Path, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database handle.
func (a *AuditLog) Close() error {
	if a == nil {
		return nil
	}
	return a.db.Close()
}
