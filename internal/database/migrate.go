package database

import (
	"context"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	createMigrationsTableQuery = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
	`
	selectAppliedMigrationsQuery = `SELECT version FROM schema_migrations`
	insertMigrationQuery         = `INSERT INTO schema_migrations (version) VALUES ($1)`
)

// Migrator is the subset of *pgxpool.Pool needed to apply migrations.
type Migrator interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type migration struct {
	version string
	sql     string
}

// Migrate applies every embedded migration that is not yet recorded in
// schema_migrations, in file name order, each in its own transaction.
func Migrate(ctx context.Context, db Migrator, logger *logrus.Logger) error {
	migrations, err := loadMigrations(migrationFiles)
	if err != nil {
		return err
	}

	if _, err := db.Exec(ctx, createMigrationsTableQuery); err != nil {
		return errors.Wrap(err, "failed to create schema_migrations table")
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}

		logger.WithField("version", m.version).Info("Applying migration")
		if err := applyMigration(ctx, db, m); err != nil {
			return errors.Wrapf(err, "failed to apply migration %s", m.version)
		}
	}

	logger.Info("Migrations finished")
	return nil
}

func applyMigration(ctx context.Context, db Migrator, m migration) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if _, err := tx.Exec(ctx, insertMigrationQuery, m.version); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func appliedVersions(ctx context.Context, db Migrator) (map[string]bool, error) {
	rows, err := db.Query(ctx, selectAppliedMigrationsQuery)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, errors.Wrap(err, "failed to scan migration version")
		}
		applied[version] = true
	}
	return applied, errors.Wrap(rows.Err(), "error iterating migration rows")
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	names, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migrations")
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read migration %s", name)
		}
		migrations = append(migrations, migration{
			version: strings.TrimSuffix(path.Base(name), ".sql"),
			sql:     string(body),
		})
	}
	return migrations, nil
}
