// Package bootstrap turns configuration sections into connected clients. It
// is shared by the api, worker and beat services.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/task-manage/internal/config"
	"github.com/cuongbtq/task-manage/internal/orchestrator"
	"github.com/cuongbtq/task-manage/internal/registry"
	"github.com/cuongbtq/task-manage/internal/topology"
	"github.com/cuongbtq/task-manage/shared/logger"
	"github.com/cuongbtq/task-manage/shared/postgresql"
	"github.com/cuongbtq/task-manage/shared/rabbitmq"
	"github.com/cuongbtq/task-manage/shared/redis"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
)

// LoadConfig loads .env when present and reads the config file at path
func LoadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// ConfigPath returns the value of envVar, or fallback when unset
func ConfigPath(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(LoggerConfig(cfg))
}

// LoggerConfig maps the logging section to logger settings
func LoggerConfig(cfg *config.LoggingConfig) *logger.Config {
	return &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}
}

// InitPostgreSQL initializes the PostgreSQL database client
func InitPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(PostgreSQLConfig(cfg), logger)
}

// PostgreSQLConfig maps the database section to client settings
func PostgreSQLConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(RabbitMQConfig(cfg), logger)
}

// RabbitMQConfig maps the rabbitmq section to client settings
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		ConfirmPublish:     cfg.Publish.Confirm,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// InitRedis initializes the lease store client
func InitRedis(cfg *config.RedisConfig, logger *slog.Logger) (*goredis.Client, error) {
	return redis.NewClient(&redis.Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
}

// BuildTopology derives the queue topology for every internal task and
// registered worker
func BuildTopology(cfg *config.RabbitMQConfig, reg *registry.Registry) (*topology.Topology, error) {
	topo, err := topology.Build(cfg.DefaultQueue, orchestrator.TaskNames(reg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build queue topology: %w", err)
	}
	return topo, nil
}

// DeclareTopology declares every exchange, queue and binding on the broker
func DeclareTopology(client *rabbitmq.Client, topo *topology.Topology, logger *slog.Logger) error {
	if err := topo.Declare(client.Channel()); err != nil {
		return fmt.Errorf("failed to declare queue topology: %w", err)
	}

	logger.Info("Queue topology declared",
		slog.Int("bindings", len(topo.Bindings())),
		slog.String("default_queue", topo.Default().Queue),
	)
	return nil
}

// ShutdownContext returns a context bounded by timeout, or 30s when unset
func ShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
