package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// Migrate applies every pending schema migration for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	return migrate(ctx, s.db, s.dialect)
}

func migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var (
		dir          string
		gooseDialect goose.Dialect
	)
	switch dialect {
	case DialectSQLite:
		dir, gooseDialect = "migrations/sqlite", goose.DialectSQLite3
	case DialectPostgres:
		dir, gooseDialect = "migrations/postgres", goose.DialectPostgres
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	fsys, err := fs.Sub(migrationFiles, dir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(gooseDialect, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
