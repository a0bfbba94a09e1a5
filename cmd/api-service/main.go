package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/task-manage/internal/api/handler"
	"github.com/cuongbtq/task-manage/internal/api/router"
	"github.com/cuongbtq/task-manage/internal/bootstrap"
	"github.com/cuongbtq/task-manage/internal/broker"
	"github.com/cuongbtq/task-manage/internal/job/storage"
	"github.com/cuongbtq/task-manage/internal/metrics"
	"github.com/cuongbtq/task-manage/internal/orchestrator"
	"github.com/cuongbtq/task-manage/internal/workers"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config",
		bootstrap.ConfigPath("API_SERVICE_CONFIG_PATH", "configs/api-service/config.yaml"),
		"Path to configuration file")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := bootstrap.InitPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	records := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	if cfg.Database.AutoMigrate {
		if err := records.Migrate(context.Background()); err != nil {
			return err
		}
	}

	rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	// The API only validates worker names and routes; entry points never run here.
	reg, err := workers.Registry(workers.Deps{Logger: appLogger.Logger})
	if err != nil {
		return fmt.Errorf("failed to build worker registry: %w", err)
	}

	topo, err := bootstrap.BuildTopology(&cfg.RabbitMQ, reg)
	if err != nil {
		return err
	}
	if err := bootstrap.DeclareTopology(rabbitClient, topo, appLogger.Logger); err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	m, err := metrics.New(promRegistry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	publisher := broker.NewPublisher(rabbitClient, topo, appLogger.Logger)
	creator := orchestrator.NewCreator(reg, publisher, records, m, appLogger.Logger)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:   appLogger.Logger,
		Creator:  creator,
		Records:  records,
		Registry: reg,
		Topology: topo,
		Metrics:  promRegistry,
		Database: dbClient,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.Int("workers", reg.Len()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errChan:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	appLogger.Info("Shutting down server...")

	ctx, cancel := bootstrap.ShutdownContext(cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}
