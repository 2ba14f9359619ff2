package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xkilldash9x/claimgate/api/schemas"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the store can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	pgDeleteRegistration = `DELETE FROM registrations WHERE identifier = $1`

	pgInsertDeregistration = `
        INSERT INTO invalid_users (id, identifier, reason, module, error_message, correlation_id, detected_at, context)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (identifier) DO NOTHING`

	pgInsertVerdict = `
        INSERT INTO validation_logs (id, identifier, module, result, context, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
)

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS registrations (
        identifier   TEXT PRIMARY KEY,
        display_name TEXT NOT NULL DEFAULT '',
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS invalid_users (
        id             UUID PRIMARY KEY,
        identifier     TEXT NOT NULL UNIQUE,
        reason         TEXT NOT NULL,
        module         TEXT NOT NULL,
        error_message  TEXT,
        correlation_id TEXT NOT NULL,
        detected_at    TIMESTAMPTZ NOT NULL,
        context        JSONB NOT NULL DEFAULT '{}'
    )`,
	`CREATE TABLE IF NOT EXISTS validation_logs (
        id         UUID PRIMARY KEY,
        identifier TEXT NOT NULL,
        module     TEXT NOT NULL,
        result     JSONB NOT NULL,
        context    JSONB NOT NULL DEFAULT '{}',
        created_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_validation_logs_identifier ON validation_logs (identifier)`,
}

// Postgres implements Repository over a pgx pool.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

// OpenPostgres creates a pool for url and verifies it.
func OpenPostgres(ctx context.Context, url string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an existing pool and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, log: logger.Named("store")}, nil
}

func (s *Postgres) DeleteRegistration(ctx context.Context, identifier string) (int64, error) {
	tag, err := s.pool.Exec(ctx, pgDeleteRegistration, identifier)
	if err != nil {
		return 0, fmt.Errorf("failed to delete registration: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) InsertDeregistration(ctx context.Context, rec *schemas.DeregistrationRecord) (bool, error) {
	blob := prepareDeregistration(rec)
	tag, err := s.pool.Exec(ctx, pgInsertDeregistration,
		rec.ID, rec.Identifier, rec.Reason, rec.Module, nullable(rec.ErrorMessage),
		rec.CorrelationID, rec.DetectedAt, blob,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert deregistration: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) InsertVerdict(ctx context.Context, rec *schemas.VerdictRecord) error {
	result, blob, err := prepareVerdict(rec)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, pgInsertVerdict,
		rec.ID, rec.Identifier, rec.Module, result, blob, rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}
	return nil
}

// EnsureSchema creates all tables in a single transaction.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	for _, stmt := range pgSchema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Schema is up to date.", zap.Int("statements", len(pgSchema)))
	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
