package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xkilldash9x/claimgate/api/schemas"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	liteDeleteRegistration = `DELETE FROM registrations WHERE identifier = ?`

	liteInsertDeregistration = `
        INSERT INTO invalid_users (id, identifier, reason, module, error_message, correlation_id, detected_at, context)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (identifier) DO NOTHING`

	liteInsertVerdict = `
        INSERT INTO validation_logs (id, identifier, module, result, context, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`
)

const liteSchema = `
CREATE TABLE IF NOT EXISTS registrations (
    identifier   TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS invalid_users (
    id             TEXT PRIMARY KEY,
    identifier     TEXT NOT NULL UNIQUE,
    reason         TEXT NOT NULL,
    module         TEXT NOT NULL,
    error_message  TEXT,
    correlation_id TEXT NOT NULL,
    detected_at    DATETIME NOT NULL,
    context        TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS validation_logs (
    id         TEXT PRIMARY KEY,
    identifier TEXT NOT NULL,
    module     TEXT NOT NULL,
    result     TEXT NOT NULL,
    context    TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validation_logs_identifier ON validation_logs(identifier);
`

// SQLite implements Repository over a local database file.
type SQLite struct {
	db   *sql.DB
	path string
	log  *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLite{db: db, path: path, log: logger.Named("store")}, nil
}

func (s *SQLite) DeleteRegistration(ctx context.Context, identifier string) (int64, error) {
	res, err := s.db.ExecContext(ctx, liteDeleteRegistration, identifier)
	if err != nil {
		return 0, fmt.Errorf("failed to delete registration: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) InsertDeregistration(ctx context.Context, rec *schemas.DeregistrationRecord) (bool, error) {
	blob := prepareDeregistration(rec)
	res, err := s.db.ExecContext(ctx, liteInsertDeregistration,
		rec.ID, rec.Identifier, rec.Reason, rec.Module, nullable(rec.ErrorMessage),
		rec.CorrelationID, rec.DetectedAt, string(blob),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert deregistration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLite) InsertVerdict(ctx context.Context, rec *schemas.VerdictRecord) error {
	result, blob, err := prepareVerdict(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, liteInsertVerdict,
		rec.ID, rec.Identifier, rec.Module, string(result), string(blob), rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}
	return nil
}

func (s *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, liteSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.log.Info("Schema is up to date.", zap.String("path", s.path))
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
