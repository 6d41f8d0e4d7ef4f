package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink writes entries into an insert-only table. Useful where operators
// prefer querying attempts over tailing a file.
type SQLiteSink struct {
	db *sql.DB
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	acting_user_id TEXT NOT NULL,
	target_follower_id TEXT NOT NULL,
	succeeded BOOLEAN NOT NULL,
	error_kind TEXT,
	request_id TEXT
);
`

// NewSQLiteSink opens the database and ensures the audit table exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Append inserts one entry.
func (s *SQLiteSink) Append(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO audit_log (timestamp, acting_user_id, target_follower_id, succeeded, error_kind, request_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		entry.Timestamp,
		entry.ActingUserID,
		entry.TargetFollowerID,
		entry.Succeeded,
		string(entry.ErrorKind),
		entry.RequestID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
