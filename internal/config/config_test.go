package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
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
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "postgres", cfg.Database.Driver)
				assert.Equal(t, "reports_db", cfg.Database.Database)
				assert.Equal(t, "reports_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "batch_requests", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "batch.progress", cfg.RabbitMQ.Progress.RoutingKey)
				assert.Equal(t, "report-api-service", cfg.App.Name)
				assert.Equal(t, 5, cfg.Engine.MaxAttempts)
				assert.Equal(t, 90*time.Second, cfg.Engine.AttemptTimeout)
				assert.Equal(t, "entry.1000003", cfg.Form.Entries["student_name"])
				assert.Equal(t, "0 18 * * 5", cfg.Worker.Schedule)

				assert.NoError(t, cfg.ValidateAPIConfig())
				assert.NoError(t, cfg.ValidateWorkerConfig())
			}
		})
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load("testdata/minimal_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "data/reports.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Engine.Concurrency)
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Engine.BaseBackoff)
	assert.Equal(t, time.Minute, cfg.Engine.MaxBackoff)
	assert.Equal(t, 2*time.Minute, cfg.Engine.AttemptTimeout)
	assert.Equal(t, "batch.request", cfg.RabbitMQ.RoutingKey)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.False(t, cfg.RabbitMQ.Enabled)

	assert.NoError(t, cfg.ValidateAPIConfig())
}

// validConfig returns a config that passes every validator
func validConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			Database: "reports_db",
		},
		RabbitMQ: RabbitMQConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    5672,
			Exchange: ExchangeConfig{
				Name: "reports_exchange",
			},
			Queue: QueueConfig{
				Name: "batch_requests",
			},
		},
		Form: FormConfig{
			URL:     "https://docs.google.com/forms/d/e/abc/viewform",
			Entries: map[string]string{"student_name": "entry.1"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "invalid database port",
			mutate:    func(c *Config) { c.Database.Port = -1 },
			wantErr:   true,
			errString: "invalid database port",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "unsupported driver",
			mutate:    func(c *Config) { c.Database.Driver = "mysql" },
			wantErr:   true,
			errString: "unsupported database driver",
		},
		{
			name: "sqlite needs a path",
			mutate: func(c *Config) {
				c.Database.Driver = "sqlite3"
				c.Database.Path = ""
			},
			wantErr:   true,
			errString: "database path is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name: "rabbitmq disabled skips its checks",
			mutate: func(c *Config) {
				c.RabbitMQ.Enabled = false
				c.RabbitMQ.Host = ""
			},
			wantErr: false,
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "form url without scheme",
			mutate:    func(c *Config) { c.Form.URL = "docs.google.com/forms/abc" },
			wantErr:   true,
			errString: "form url must start with",
		},
		{
			name:      "no form entries",
			mutate:    func(c *Config) { c.Form.Entries = nil },
			wantErr:   true,
			errString: "form entries are required",
		},
		{
			name:      "max backoff below base",
			mutate:    func(c *Config) { c.Engine.MaxBackoff = time.Second },
			wantErr:   true,
			errString: "max_backoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "schedule only",
			mutate:  func(c *Config) { c.RabbitMQ.Enabled = false; c.Worker.Schedule = "@daily" },
			wantErr: false,
		},
		{
			name:      "invalid schedule",
			mutate:    func(c *Config) { c.Worker.Schedule = "every friday" },
			wantErr:   true,
			errString: "invalid worker schedule",
		},
		{
			name:      "nothing to consume",
			mutate:    func(c *Config) { c.RabbitMQ.Enabled = false },
			wantErr:   true,
			errString: "rabbitmq enabled or a schedule",
		},
		{
			name:      "zero batch concurrency",
			mutate:    func(c *Config) { c.Worker.BatchConcurrency = 0 },
			wantErr:   true,
			errString: "batch_concurrency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
