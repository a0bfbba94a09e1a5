package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("TASK_MANAGE_TEST_DB_PASSWORD", "s3cret")

	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
			assert.Equal(t, "pgx", cfg.Database.Driver)
			assert.Equal(t, "s3cret", cfg.Database.Password)
			assert.Equal(t, "task_manage", cfg.RabbitMQ.DefaultQueue)
			assert.True(t, cfg.RabbitMQ.Publish.Confirm)
			assert.Equal(t, 1, cfg.RabbitMQ.Consumer.PrefetchCount)
			assert.Equal(t, 10*time.Minute, cfg.Lease.TTL)
			assert.Equal(t, []string{"task.result_handler", "task.db.insert_test_data"}, cfg.Worker.Queues)
			require.Len(t, cfg.Beat.Schedules, 1)
			assert.Equal(t, "0 2 * * *", cfg.Beat.Schedules[0].Cron)
			assert.Equal(t, 10, cfg.Beat.Schedules[0].TerminalStatus)
			assert.Equal(t, []any{100}, cfg.Beat.Schedules[0].Args)

			assert.NoError(t, cfg.ValidateAPIConfig())
			assert.NoError(t, cfg.ValidateWorkerConfig())
			assert.NoError(t, cfg.ValidateBeatConfig())
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "task_manage",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Worker: WorkerConfig{
			Concurrency:     2,
			ShutdownTimeout: 30 * time.Second,
		},
		Beat: BeatConfig{
			Schedules: []ScheduleConfig{
				{Name: "count", Cron: "*/5 * * * *", Worker: "task.db.count_test_data", TerminalStatus: 10},
			},
		},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(c *Config)
		errString string
	}{
		{name: "valid config", modify: func(c *Config) {}},
		{name: "invalid server port - too low", modify: func(c *Config) { c.Server.Port = 0 }, errString: "invalid server port"},
		{name: "invalid server port - too high", modify: func(c *Config) { c.Server.Port = 70000 }, errString: "invalid server port"},
		{name: "empty database host", modify: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
		{name: "empty database name", modify: func(c *Config) { c.Database.Database = "" }, errString: "database name is required"},
		{name: "unsupported driver", modify: func(c *Config) { c.Database.Driver = "mysql" }, errString: "unsupported database driver"},
		{name: "empty rabbitmq host", modify: func(c *Config) { c.RabbitMQ.Host = "" }, errString: "rabbitmq host is required"},
		{name: "invalid rabbitmq port", modify: func(c *Config) { c.RabbitMQ.Port = -1 }, errString: "invalid rabbitmq port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(c *Config)
		errString string
	}{
		{name: "valid config", modify: func(c *Config) {}},
		{name: "missing redis", modify: func(c *Config) { c.Redis.Host = "" }, errString: "redis host is required"},
		{name: "zero concurrency", modify: func(c *Config) { c.Worker.Concurrency = 0 }, errString: "worker concurrency must be greater than 0"},
		{name: "invalid metrics port", modify: func(c *Config) { c.Worker.MetricsPort = 70000 }, errString: "invalid worker metrics port"},
		{name: "missing shutdown timeout", modify: func(c *Config) { c.Worker.ShutdownTimeout = 0 }, errString: "worker shutdown_timeout"},
		{name: "negative prefetch", modify: func(c *Config) { c.RabbitMQ.Consumer.PrefetchCount = -1 }, errString: "prefetch_count"},
		{name: "negative lease ttl", modify: func(c *Config) { c.Lease.TTL = -time.Second }, errString: "lease ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateBeatConfig(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(c *Config)
		errString string
	}{
		{name: "valid config", modify: func(c *Config) {}},
		{name: "no schedules", modify: func(c *Config) { c.Beat.Schedules = nil }, errString: "at least one schedule"},
		{name: "missing cron", modify: func(c *Config) { c.Beat.Schedules[0].Cron = "" }, errString: "cron is required"},
		{name: "missing worker", modify: func(c *Config) { c.Beat.Schedules[0].Worker = "" }, errString: "worker is required"},
		{
			name: "duplicate name",
			modify: func(c *Config) {
				c.Beat.Schedules = append(c.Beat.Schedules, c.Beat.Schedules[0])
			},
			errString: "duplicate name",
		},
		{name: "invalid timezone", modify: func(c *Config) { c.Beat.Timezone = "Mars/Olympus" }, errString: "invalid beat timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.ValidateBeatConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
