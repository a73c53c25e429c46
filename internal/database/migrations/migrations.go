package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"ms-raffle/internal/logger"
)

type MigrateOptions struct {
	DSN           string
	MigrationsDir string
}

// Runner applies the SQL files in MigrationsDir to a postgres database. It
// opens its own connection from DSN: closing the migrate driver closes the
// *sql.DB it was built on, so the application's pool is never handed to it.
type Runner struct {
	options  MigrateOptions
	log      *logger.Logger
	sqlDB    *sql.DB
	migrator *migrate.Migrate
}

func NewRunner(opts MigrateOptions, log *logger.Logger) *Runner {
	return &Runner{options: opts, log: log}
}

func (r *Runner) Initialize() error {
	if _, err := os.Stat(r.options.MigrationsDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", r.options.MigrationsDir)
	}

	sqlDB, err := sql.Open("postgres", r.options.DSN)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	migrator, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.options.MigrationsDir),
		"postgres", driver)
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.sqlDB = sqlDB
	r.migrator = migrator
	return nil
}

// RunMigrations applies pending migrations, forcing a dirty version back to
// clean first.
func (r *Runner) RunMigrations() error {
	if r.migrator == nil {
		if err := r.Initialize(); err != nil {
			return err
		}
	}

	version, dirty, err := r.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		r.log.Warn("MIGRATE", fmt.Sprintf("Detected dirty migration at version %d, forcing", version))
		if err := r.migrator.Force(int(version)); err != nil {
			return fmt.Errorf("failed to fix dirty migration: %w", err)
		}
	}

	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return r.logVersion()
}

// MigrateDown rolls back every applied migration.
func (r *Runner) MigrateDown() error {
	if r.migrator == nil {
		if err := r.Initialize(); err != nil {
			return err
		}
	}

	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return r.logVersion()
}

func (r *Runner) logVersion() error {
	version, _, err := r.migrator.Version()
	switch {
	case err == nil:
		r.log.Info("MIGRATE", fmt.Sprintf("Current schema version: %d", version))
	case errors.Is(err, migrate.ErrNilVersion):
		r.log.Info("MIGRATE", "No migrations applied")
	default:
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	return nil
}

// Close releases the runner's own connection.
func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	sourceErr, databaseErr := r.migrator.Close()
	r.migrator = nil
	r.sqlDB = nil
	if sourceErr != nil {
		return fmt.Errorf("error closing migrator source: %w", sourceErr)
	}
	if databaseErr != nil {
		return fmt.Errorf("error closing migrator database: %w", databaseErr)
	}
	return nil
}
