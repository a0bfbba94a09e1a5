package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/task-manage/internal/bootstrap"
	"github.com/cuongbtq/task-manage/internal/broker"
	"github.com/cuongbtq/task-manage/internal/job/storage"
	"github.com/cuongbtq/task-manage/internal/lease"
	"github.com/cuongbtq/task-manage/internal/metrics"
	"github.com/cuongbtq/task-manage/internal/orchestrator"
	"github.com/cuongbtq/task-manage/internal/workers"
	"github.com/cuongbtq/task-manage/internal/workers/dataprocess"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config",
		bootstrap.ConfigPath("WORKER_SERVICE_CONFIG_PATH", "configs/worker-service/config.yaml"),
		"Path to configuration file")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerLogger := appLogger.WithService("worker").With(slog.String("worker_id", cfg.Worker.ID))
	workerLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := bootstrap.InitPostgreSQL(&cfg.Database, workerLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	records := storage.NewStorage(dbClient.GetDB(), workerLogger.Logger)
	testData := dataprocess.NewSQLStore(dbClient.GetDB())
	if cfg.Database.AutoMigrate {
		if err := records.Migrate(context.Background()); err != nil {
			return err
		}
		if err := testData.Migrate(context.Background()); err != nil {
			return err
		}
	}

	redisClient, err := bootstrap.InitRedis(&cfg.Redis, workerLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	guard, err := lease.NewGuard(lease.NewRedisStore(redisClient), lease.Config{
		TTL:       cfg.Lease.TTL,
		KeyPrefix: cfg.Lease.KeyPrefix,
	}, workerLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create idempotency guard: %w", err)
	}

	rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, workerLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	reg, err := workers.Registry(workers.Deps{
		TestData: testData,
		Records:  records,
		Logger:   workerLogger.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build worker registry: %w", err)
	}

	topo, err := bootstrap.BuildTopology(&cfg.RabbitMQ, reg)
	if err != nil {
		return err
	}
	if err := bootstrap.DeclareTopology(rabbitClient, topo, workerLogger.Logger); err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(promRegistry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	publisher := broker.NewPublisher(rabbitClient, topo, workerLogger.Logger)
	creator := orchestrator.NewCreator(reg, publisher, records, m, workerLogger.Logger)
	resultHandler := orchestrator.NewResultHandler(reg, records, m, workerLogger.Logger)

	runtime := broker.NewRuntime(publisher, guard, m, workerLogger.Logger)
	if err := runtime.Register(orchestrator.Tasks(reg, creator, resultHandler)...); err != nil {
		return fmt.Errorf("failed to register tasks: %w", err)
	}

	queues := cfg.Worker.Queues
	if len(queues) == 0 {
		queues = topo.Queues()
	}

	workerInstance := broker.NewWorker(&broker.WorkerConfig{
		Logger: workerLogger.Logger,
		OpenChannel: func() (broker.Channel, error) {
			ch, err := rabbitClient.NewChannel()
			if err != nil {
				return nil, err
			}
			return ch, nil
		},
		Runtime:     runtime,
		Queues:      queues,
		Concurrency: cfg.Worker.Concurrency,
		Prefetch:    cfg.RabbitMQ.Consumer.PrefetchCount,
		WorkerID:    cfg.Worker.ID,
		TaskTimeout: cfg.Worker.TaskTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := workerInstance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	errChan := make(chan error, 1)
	var metricsServer *http.Server
	if cfg.Worker.MetricsPort != 0 {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			if !rabbitClient.IsConnected() {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("rabbitmq disconnected"))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
			Handler: mux,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	workerLogger.Info("Worker service started successfully",
		slog.Any("queues", queues),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		workerLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		workerLogger.Error("Metrics server error",
			slog.Any("error", err),
		)
		workerInstance.Stop()
		return err
	case <-workerInstance.Done():
		workerLogger.Error("All consumer slots exited, broker connection lost")
		if metricsServer != nil {
			metricsServer.Close()
		}
		return errors.New("worker stopped consuming: broker connection lost")
	}

	shutdownCtx, shutdownCancel := bootstrap.ShutdownContext(cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		workerLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		workerLogger.Warn("Worker shutdown timeout exceeded, canceling in-flight tasks")
		cancel()
	}

	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}

	workerLogger.Info("Worker service shutdown complete")
	return nil
}
