package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// RunMigrations brings the metrics schema (batches, pull requests, workflow
// runs, incidents, repositories, teams and tokens) up to the latest embedded
// version. A database that is already current is left untouched.
func RunMigrations(db *sql.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply metrics schema: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read metrics schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("metrics schema version %d is dirty", version)
	}

	slog.Debug("metrics schema ready", "version", version)
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load embedded schema: %w", err)
	}

	target, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("open schema target: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", target)
	if err != nil {
		return nil, fmt.Errorf("create schema migrator: %w", err)
	}
	return m, nil
}
