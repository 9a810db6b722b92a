package storage

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/liamcoop/casework/migrations"
)

// NewMigrator builds a golang-migrate instance over the embedded migrations
// for the handle's dialect. Closing the migrator closes the database too.
func NewMigrator(db *DB) (*migrate.Migrate, error) {
	var (
		files  fs.FS
		dir    string
		driver database.Driver
		err    error
	)

	switch db.dialect {
	case Postgres:
		files, dir = migrations.Postgres, "postgres"
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
	case SQLite:
		files, dir = migrations.SQLite, "sqlite"
		driver, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", db.dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(db.dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// Migrate applies all pending up migrations. An up-to-date schema is not an error.
func Migrate(db *DB) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
