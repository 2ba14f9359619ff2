// Package store persists validation verdicts and deregistrations. Postgres is
// the production backend; SQLite serves local runs without a server.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/config"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Repository is the narrow set of writes the pipeline performs.
type Repository interface {
	// DeleteRegistration removes the registration row and reports how many
	// rows were deleted.
	DeleteRegistration(ctx context.Context, identifier string) (int64, error)
	// InsertDeregistration records an invalid identifier. It returns false
	// without error when the identifier was already deregistered.
	InsertDeregistration(ctx context.Context, rec *schemas.DeregistrationRecord) (bool, error)
	// InsertVerdict appends one row to the validation log.
	InsertVerdict(ctx context.Context, rec *schemas.VerdictRecord) error
	// EnsureSchema creates the tables when they do not exist.
	EnsureSchema(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.URL, logger)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// prepareVerdict fills generated fields and encodes the JSON columns.
func prepareVerdict(rec *schemas.VerdictRecord) (result, blob []byte, err error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	result, err = json.Marshal(rec.Result)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode verdict result: %w", err)
	}
	return result, orEmptyObject(rec.Context), nil
}

func prepareDeregistration(rec *schemas.DeregistrationRecord) []byte {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = time.Now()
	}
	rec.DetectedAt = rec.DetectedAt.UTC()
	return orEmptyObject(rec.Context)
}

// orEmptyObject avoids inserting null or empty JSON.
func orEmptyObject(raw []byte) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return []byte("{}")
	}
	return raw
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
