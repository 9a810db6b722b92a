package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"

	"github.com/liamcoop/casework/internal/logger"
	"github.com/liamcoop/casework/storage"
)

func main() {
	var databaseURL string
	var driver string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to DATABASE_URL)")
	flag.StringVar(&driver, "driver", "", "Database driver: postgres or sqlite (defaults to DATABASE_DRIVER, then postgres)")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal("database url is required: use -database or DATABASE_URL")
	}
	if driver == "" {
		driver = os.Getenv("DATABASE_DRIVER")
	}
	if driver == "" {
		driver = string(storage.Postgres)
	}

	if err := run(context.Background(), driver, databaseURL, command, flag.Args()); err != nil {
		logger.Fatal("migration failed", "command", command, "err", err)
	}
}

func run(ctx context.Context, driver, databaseURL, command string, args []string) error {
	dialect, err := storage.ParseDialect(driver)
	if err != nil {
		return err
	}

	db, err := storage.Open(ctx, dialect, databaseURL)
	if err != nil {
		return err
	}

	m, err := storage.NewMigrator(db)
	if err != nil {
		db.Close()
		return err
	}
	defer m.Close()

	switch command {
	case "up":
		logger.Info("running migrations up", "driver", dialect)
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to run, database is up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("migrations completed")

	case "down":
		logger.Info("rolling back migrations", "driver", dialect)
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
		logger.Info("rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return fmt.Errorf("force requires a version number: -command force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		logger.Info("forced version", "version", version)

	default:
		return fmt.Errorf("unknown command %q (use: up, down, version, force)", command)
	}
	return nil
}
