package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Lease    LeaseConfig    `yaml:"lease"`
	Worker   WorkerConfig   `yaml:"worker"`
	Beat     BeatConfig     `yaml:"beat"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and topology configuration
type RabbitMQConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	User         string           `yaml:"user"`
	Password     string           `yaml:"password"`
	VHost        string           `yaml:"vhost"`
	DefaultQueue string           `yaml:"default_queue"`
	Connection   ConnectionConfig `yaml:"connection"`
	Publish      PublishConfig    `yaml:"publish"`
	Consumer     ConsumerConfig   `yaml:"consumer"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish settings
type PublishConfig struct {
	Confirm           bool          `yaml:"confirm"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds the lease store connection settings
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LeaseConfig holds idempotency guard settings
type LeaseConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// WorkerConfig holds worker service configuration. An empty Queues list
// consumes every queue of the topology.
type WorkerConfig struct {
	ID              string        `yaml:"id"`
	Queues          []string      `yaml:"queues"`
	Concurrency     int           `yaml:"concurrency"`
	TaskTimeout     time.Duration `yaml:"task_timeout"`
	MetricsPort     int           `yaml:"metrics_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BeatConfig holds the periodic job schedule
type BeatConfig struct {
	Timezone  string           `yaml:"timezone"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

// ScheduleConfig is one periodic job submission
type ScheduleConfig struct {
	Name           string `yaml:"name"`
	Cron           string `yaml:"cron"`
	Worker         string `yaml:"worker"`
	TerminalStatus int    `yaml:"terminal_status"`
	Args           []any  `yaml:"args"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	return c.validateRabbitMQ()
}

// ValidateWorkerConfig checks the settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.MetricsPort != 0 {
		if err := validatePort("worker metrics", c.Worker.MetricsPort); err != nil {
			return err
		}
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.RabbitMQ.Consumer.PrefetchCount < 0 {
		return fmt.Errorf("rabbitmq prefetch_count must not be negative")
	}

	if c.Worker.TaskTimeout < 0 {
		return fmt.Errorf("worker task_timeout must not be negative")
	}

	if c.Lease.TTL < 0 {
		return fmt.Errorf("lease ttl must not be negative")
	}

	return nil
}

// ValidateBeatConfig checks the settings the beat service depends on. Beat
// only publishes creator requests, so it needs no database.
func (c *Config) ValidateBeatConfig() error {
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if len(c.Beat.Schedules) == 0 {
		return fmt.Errorf("beat requires at least one schedule")
	}

	seen := make(map[string]bool, len(c.Beat.Schedules))
	for i, s := range c.Beat.Schedules {
		if s.Name == "" {
			return fmt.Errorf("beat schedule %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("beat schedule %s: duplicate name", s.Name)
		}
		seen[s.Name] = true

		if s.Cron == "" {
			return fmt.Errorf("beat schedule %s: cron is required", s.Name)
		}
		if s.Worker == "" {
			return fmt.Errorf("beat schedule %s: worker is required", s.Name)
		}
	}

	if c.Beat.Timezone != "" {
		if _, err := time.LoadLocation(c.Beat.Timezone); err != nil {
			return fmt.Errorf("invalid beat timezone %q: %w", c.Beat.Timezone, err)
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if err := validatePort("database", c.Database.Port); err != nil {
		return err
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	switch c.Database.Driver {
	case "", "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	return validatePort("rabbitmq", c.RabbitMQ.Port)
}

func (c *Config) validateRedis() error {
	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	return validatePort("redis", c.Redis.Port)
}

func validatePort(name string, port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", name, port, MinPort, MaxPort)
	}
	return nil
}
