package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/task-manage/internal/beat"
	"github.com/cuongbtq/task-manage/internal/bootstrap"
	"github.com/cuongbtq/task-manage/internal/broker"
	"github.com/cuongbtq/task-manage/internal/config"
	"github.com/cuongbtq/task-manage/internal/workers"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config",
		bootstrap.ConfigPath("BEAT_SERVICE_CONFIG_PATH", "configs/beat-service/config.yaml"),
		"Path to configuration file")
	fireNow := flag.String("trigger", "", "Publish the named schedule once and exit")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	if err := cfg.ValidateBeatConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	beatLogger := appLogger.WithService("beat")
	beatLogger.Info("Starting beat service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.Int("schedules", len(cfg.Beat.Schedules)),
	)

	rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, beatLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	reg, err := workers.Registry(workers.Deps{Logger: beatLogger.Logger})
	if err != nil {
		return fmt.Errorf("failed to build worker registry: %w", err)
	}

	topo, err := bootstrap.BuildTopology(&cfg.RabbitMQ, reg)
	if err != nil {
		return err
	}
	if err := bootstrap.DeclareTopology(rabbitClient, topo, beatLogger.Logger); err != nil {
		return err
	}

	loc := time.UTC
	if cfg.Beat.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Beat.Timezone)
		if err != nil {
			return fmt.Errorf("invalid beat timezone: %w", err)
		}
	}

	scheduler, err := beat.New(beat.Config{
		Schedules: schedules(cfg.Beat.Schedules),
		Registry:  reg,
		Submitter: broker.NewPublisher(rabbitClient, topo, beatLogger.Logger),
		Location:  loc,
		Logger:    beatLogger.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if *fireNow != "" {
		id, err := scheduler.Trigger(context.Background(), *fireNow)
		if err != nil {
			return err
		}
		beatLogger.Info("Schedule triggered",
			slog.String("schedule", *fireNow),
			slog.String("task_id", id),
		)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scheduler.Run(ctx)

	beatLogger.Info("Beat service shutdown complete")
	return nil
}

func schedules(in []config.ScheduleConfig) []beat.Schedule {
	out := make([]beat.Schedule, len(in))
	for i, s := range in {
		out[i] = beat.Schedule{
			Name:           s.Name,
			Cron:           s.Cron,
			Worker:         s.Worker,
			TerminalStatus: s.TerminalStatus,
			Args:           s.Args,
		}
	}
	return out
}
