package persist

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// The worlds/players schema ships inside the binary; a fresh database is
// usable with nothing but a DSN.
//
//go:embed migrations/*.sql
var schemaFS embed.FS

// Migrate brings the schema up to the newest embedded version. Goose tracks
// the applied version in its own table, so reruns are no-ops.
func (db *DB) Migrate(ctx context.Context) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(schemaFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	// goose speaks database/sql; borrow a stdlib view of the pool for the
	// duration of the run.
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	db.log.Info("schema current", zap.Int64("version", version))
	return nil
}
