package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-raffle/internal/config"
	"ms-raffle/internal/database/migrations"
	"ms-raffle/internal/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// NormalizeDriver folds DB_DRIVER spellings such as "SQLite" or " postgres".
func NormalizeDriver(driver string) string {
	return strings.ToLower(strings.TrimSpace(driver))
}

// Open connects to the configured store, retrying the initial ping.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	cfg.Driver = NormalizeDriver(cfg.Driver)
	driverName, err := sqlDriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var sqldb *sql.DB
	for i := 0; i < retries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to %s (attempt %d/%d)", cfg.Driver, i+1, retries))

		sqldb, err = sql.Open(driverName, cfg.DSN)
		if err == nil {
			err = sqldb.PingContext(ctx)
			if err == nil {
				break
			}
			sqldb.Close()
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to %s: %v", cfg.Driver, err))
		if i < retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s after %d attempts: %w", cfg.Driver, retries, err)
	}

	var db *bun.DB
	switch driverName {
	case sqliteshim.ShimName:
		// An in-memory database lives and dies with one connection.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
		db = bun.NewDB(sqldb, pgdialect.New())
	}

	log.Info("DATABASE", fmt.Sprintf("✅ %s connection successful", cfg.Driver))
	return db, nil
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverPostgres:
		return "postgres", nil
	case DriverSQLite:
		return sqliteshim.ShimName, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// PrepareSchema brings the schema up to date: golang-migrate files on
// postgres, EnsureSchema on sqlite. The migrator dials its own connection
// from cfg.DSN and db stays open afterwards.
func PrepareSchema(ctx context.Context, db *bun.DB, cfg config.DatabaseConfig, log *logger.Logger) error {
	if NormalizeDriver(cfg.Driver) == DriverSQLite {
		return EnsureSchema(ctx, db)
	}
	if !cfg.AutoMigrate {
		log.Info("MIGRATE", "Auto migration disabled")
		return nil
	}

	runner := migrations.NewRunner(migrations.MigrateOptions{
		DSN:           cfg.DSN,
		MigrationsDir: cfg.MigrationsDir,
	}, log)
	defer func() {
		if err := runner.Close(); err != nil {
			log.Warn("MIGRATE", err.Error())
		}
	}()

	if err := runner.RunMigrations(); err != nil {
		return err
	}
	log.LogDatabase("MIGRATE", "schema", "up to date")
	return db.PingContext(ctx)
}
