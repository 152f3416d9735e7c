package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ff-einsatz/hydrantmap/internal/adapters/http"
	natsadapter "github.com/ff-einsatz/hydrantmap/internal/adapters/nats"
	"github.com/ff-einsatz/hydrantmap/internal/adapters/postgres"
	"github.com/ff-einsatz/hydrantmap/internal/adapters/valkey"
	"github.com/ff-einsatz/hydrantmap/internal/core/ports"
	"github.com/ff-einsatz/hydrantmap/internal/core/usecases"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/config"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/logging"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/metrics"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/telemetry"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load("hydrantmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
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
	go reportPoolStats(ctx, db)

	deps := &http.Dependencies{
		Records:  postgres.NewRecordRepo(db),
		Viewport: usecases.ViewportConfig(cfg.Viewport),
		Sessions: http.NewSessionHub(),
		DB:       db,
	}

	// Cache
	var cache ports.CacheService
	vc, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, range cache disabled", "error", err)
	} else {
		defer vc.Close()
		cache = vc
		deps.Cache = vc
	}

	deps.Clusters = usecases.NewClusterService(postgres.NewClusterRepo(db), cache, usecases.ClusterOptions{
		Collection:       cfg.Map.Collection,
		CacheTTLSeconds:  cfg.Map.CacheTTLSeconds,
		ClusterPrecision: cfg.Geohash.ClusterPrecision,
	})

	// NATS: finished imports reset the cache and refresh live sessions
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, live refresh disabled", "error", err)
	} else {
		defer sub.Close()
		deps.NATS = sub
		if err := sub.SubscribeImportFinished(ctx, http.ImportListener(deps.Clusters, deps.Sessions)); err != nil {
			slog.Warn("import subscription failed", "error", err)
		}
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Hydrantmap API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "collection", cfg.Map.Collection)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Stat())
		}
	}
}
