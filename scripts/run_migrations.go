package main

import (
	"context"
	"os"

	"github.com/safar/go-sql-marketplace/internal/config"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Fatalf("Load config: %v", err)
	}
	logger := logging.New(cfg.Log.Level, "text")

	if len(os.Args) < 2 {
		logger.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := database.MigrationDirection(os.Args[1])
	if direction != database.MigrateUp && direction != database.MigrateDown {
		logger.Fatal("Direction must be 'up' or 'down'")
	}

	db, err := database.NewConnection(context.Background(), &cfg.Database)
	if err != nil {
		logger.Fatalf("Connect to database: %v", err)
	}

	logger.WithField("dir", cfg.Database.MigrationsPath).Infof("Running migrations %s", direction)
	err = database.RunMigrations(db, cfg.Database.MigrationsPath, direction)
	db.Close()
	if err != nil {
		logger.Fatalf("Run migrations: %v", err)
	}

	logger.Infof("Migrations %s complete", direction)
}
