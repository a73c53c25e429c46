package main

import (
	"flag"

	"github.com/joho/godotenv"

	"ms-raffle/internal/config"
	"ms-raffle/internal/database"
	"ms-raffle/internal/database/migrations"
	"ms-raffle/internal/logger"
)

func main() {
	down := flag.Bool("down", false, "roll back every applied migration")
	dir := flag.String("dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")
	flag.Parse()

	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger("raffle-migrate")
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	if database.NormalizeDriver(cfg.Database.Driver) != database.DriverPostgres {
		log.Fatal("MIGRATE", "SQL migrations only apply to postgres; sqlite builds its schema on startup")
	}

	migrationsDir := cfg.Database.MigrationsDir
	if *dir != "" {
		migrationsDir = *dir
	}

	runner := migrations.NewRunner(migrations.MigrateOptions{
		DSN:           cfg.Database.DSN,
		MigrationsDir: migrationsDir,
	}, log)
	defer runner.Close()

	var err error
	if *down {
		log.Warn("MIGRATE", "Rolling back all migrations")
		err = runner.MigrateDown()
	} else {
		err = runner.RunMigrations()
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", "Done")
}
