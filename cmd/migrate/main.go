package main

import (
	"context"
	"log"
	"os"

	"github.com/ff-einsatz/hydrantmap/internal/adapters/postgres"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/config"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}
	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		log.Fatalf("unknown command: %s", direction)
	}

	config.LoadDotEnv()
	cfg, err := config.Load("hydrantmap-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), postgres.PoolOptions(cfg.Database)...)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, direction); err != nil {
		logger.Error("migration failed", "direction", direction, "error", err)
		db.Close()
		os.Exit(1)
	}
	logger.Info("all migrations applied", "direction", direction)
}
