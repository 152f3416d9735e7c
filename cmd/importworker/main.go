package main

import (
	"context"
	"log"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/ff-einsatz/hydrantmap/internal/adapters/nats"
	"github.com/ff-einsatz/hydrantmap/internal/adapters/postgres"
	"github.com/ff-einsatz/hydrantmap/internal/core/ports"
	"github.com/ff-einsatz/hydrantmap/internal/importer"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/config"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/logging"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/telemetry"
	"github.com/ff-einsatz/hydrantmap/internal/workflows"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load("hydrantmap-importworker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), postgres.PoolOptions(cfg.Database)...)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// NATS
	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		logger.Warn("nats unavailable, import events will not be published", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	pipeline := importer.NewPipeline(
		postgres.NewClusterRepo(db),
		postgres.NewRecordRepo(db),
		publisher,
		nil,
		logger,
		importer.OptionsFromConfig(cfg),
	)

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.ImportWorkflow)
	w.RegisterActivity(&workflows.ImportActivities{Pipeline: pipeline})

	logger.Info("import worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
