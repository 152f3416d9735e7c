// Command importer reprojects a hydrant survey export and loads it into the
// cluster store.
//
//	importer [-temporal] [-dry-run] <collection> <input.csv|input.har>
//
// Exit status: 1 on usage errors, 2 when the input file is missing, 3 when
// the import fails.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"

	natsadapter "github.com/ff-einsatz/hydrantmap/internal/adapters/nats"
	"github.com/ff-einsatz/hydrantmap/internal/adapters/postgres"
	"github.com/ff-einsatz/hydrantmap/internal/core/ports"
	"github.com/ff-einsatz/hydrantmap/internal/importer"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/config"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/logging"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/telemetry"
	"github.com/ff-einsatz/hydrantmap/internal/workflows"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitMissing = 2
	exitFailed  = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("importer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	viaTemporal := fs.Bool("temporal", false, "submit the import to the import workers instead of running it here")
	dryRun := fs.Bool("dry-run", false, "write artifacts only, skip the store")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: importer [-temporal] [-dry-run] <collection> <input.csv|input.har>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 2 || fs.Arg(0) == "" {
		fs.Usage()
		return exitUsage
	}
	collection, input := fs.Arg(0), fs.Arg(1)

	config.LoadDotEnv()
	cfg, err := config.Load("hydrantmap-importer")
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitFailed
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, stderr)

	if _, err := os.Stat(input); err != nil {
		logger.Error("input file not found", "input", input, "error", err)
		return exitMissing
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	if *viaTemporal {
		return submit(ctx, cfg, logger, collection, input)
	}

	var (
		writer    ports.ClusterWriter
		records   ports.RecordRepository
		publisher ports.EventPublisher
	)
	if !*dryRun {
		db, err := postgres.New(ctx, cfg.Database.DSN(), postgres.PoolOptions(cfg.Database)...)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			return exitFailed
		}
		defer db.Close()
		writer = postgres.NewClusterRepo(db)
		records = postgres.NewRecordRepo(db)

		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			logger.Warn("nats unavailable, import event will not be published", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
		}
	}

	p := importer.NewPipeline(writer, records, publisher, nil, logger, importer.OptionsFromConfig(cfg))
	res, err := p.Run(ctx, collection, input)
	if err != nil {
		if errors.Is(err, importer.ErrInputNotFound) {
			logger.Error("input file not found", "input", input)
			return exitMissing
		}
		logger.Error("import failed", "collection", collection, "error", err)
		return exitFailed
	}
	logger.Info("artifacts written", "files", res.Artifacts)
	return exitOK
}

func submit(ctx context.Context, cfg *config.Config, logger *slog.Logger, collection, input string) int {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("temporal client", "error", err)
		return exitFailed
	}
	defer c.Close()

	wr, err := workflows.StartImport(ctx, c, cfg.Temporal.TaskQueue, workflows.ImportInput{
		Collection: collection,
		Input:      input,
	})
	if err != nil {
		logger.Error("submit import", "error", err)
		return exitFailed
	}
	logger.Info("import submitted", "workflow_id", wr.GetID(), "run_id", wr.GetRunID())

	var res importer.Result
	if err := wr.Get(ctx, &res); err != nil {
		logger.Error("import failed", "collection", collection, "error", err)
		return exitFailed
	}
	logger.Info("import finished", "run_id", res.RunID, "clusters", res.Clusters, "batches", res.Batches)
	return exitOK
}
