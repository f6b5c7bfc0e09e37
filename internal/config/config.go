package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/robfig/cron/v3"
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
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Engine   EngineConfig   `yaml:"engine"`
	Form     FormConfig     `yaml:"form"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds SQL database configuration. Driver "sqlite3" uses
// Path; driver "postgres" uses the connection fields.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
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

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Progress   ProgressConfig   `yaml:"progress"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ProgressConfig holds where job progress events are published
type ProgressConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Queue      string `yaml:"queue"`
	RoutingKey string `yaml:"routing_key"`
	BufferSize int    `yaml:"buffer_size"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	TimeFormat   string `yaml:"time_format"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// EngineConfig holds batch engine and retry settings
type EngineConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// FormConfig holds the target form and how profile fields map onto it
type FormConfig struct {
	URL         string            `yaml:"url"`
	SuccessText string            `yaml:"success_text"`
	MinInterval time.Duration     `yaml:"min_interval"`
	Entries     map[string]string `yaml:"entries"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	BatchConcurrency int           `yaml:"batch_concurrency"`
	Schedule         string        `yaml:"schedule"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()

	return &config, nil
}

// ApplyDefaults fills unset fields with their defaults
func (c *Config) ApplyDefaults() {
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Driver == "sqlite3" && c.Database.Path == "" {
		c.Database.Path = "data/reports.db"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "direct"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "batch.request"
	}
	if c.RabbitMQ.Progress.RoutingKey == "" {
		c.RabbitMQ.Progress.RoutingKey = "batch.progress"
	}
	if c.RabbitMQ.Connection.RetryAttempts <= 0 {
		c.RabbitMQ.Connection.RetryAttempts = 5
	}
	if c.RabbitMQ.Connection.RetryInterval <= 0 {
		c.RabbitMQ.Connection.RetryInterval = 2 * time.Second
	}
	if c.RabbitMQ.Consumer.Tag == "" {
		c.RabbitMQ.Consumer.Tag = "report-worker"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Engine.Concurrency <= 0 {
		c.Engine.Concurrency = 3
	}
	if c.Engine.MaxAttempts <= 0 {
		c.Engine.MaxAttempts = 3
	}
	if c.Engine.BaseBackoff <= 0 {
		c.Engine.BaseBackoff = 5 * time.Second
	}
	if c.Engine.MaxBackoff <= 0 {
		c.Engine.MaxBackoff = time.Minute
	}
	if c.Engine.AttemptTimeout <= 0 {
		c.Engine.AttemptTimeout = 2 * time.Minute
	}

	if c.Worker.BatchConcurrency <= 0 {
		c.Worker.BatchConcurrency = 1
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// ValidateAPIConfig checks the settings used by the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.ValidateEngineConfig(); err != nil {
		return err
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateWorkerConfig checks the settings used by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.BatchConcurrency <= 0 {
		return fmt.Errorf("worker batch_concurrency must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Worker.Schedule != "" {
		if _, err := cron.ParseStandard(c.Worker.Schedule); err != nil {
			return fmt.Errorf("invalid worker schedule %q: %w", c.Worker.Schedule, err)
		}
	}

	if !c.RabbitMQ.Enabled && c.Worker.Schedule == "" {
		return fmt.Errorf("worker needs rabbitmq enabled or a schedule")
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return c.ValidateEngineConfig()
}

// ValidateEngineConfig checks the database, engine and form settings
// needed to run batches
func (c *Config) ValidateEngineConfig() error {
	if err := c.ValidateDatabaseConfig(); err != nil {
		return err
	}

	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine concurrency must be greater than 0")
	}

	if c.Engine.MaxAttempts <= 0 {
		return fmt.Errorf("engine max_attempts must be greater than 0")
	}

	if c.Engine.BaseBackoff <= 0 {
		return fmt.Errorf("engine base_backoff must be greater than 0")
	}

	if c.Engine.MaxBackoff < c.Engine.BaseBackoff {
		return fmt.Errorf("engine max_backoff must not be below base_backoff")
	}

	if c.Engine.AttemptTimeout <= 0 {
		return fmt.Errorf("engine attempt_timeout must be greater than 0")
	}

	if c.Form.URL == "" {
		return fmt.Errorf("form url is required")
	}

	u, err := url.Parse(c.Form.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("form url must start with http:// or https://")
	}

	if len(c.Form.Entries) == 0 {
		return fmt.Errorf("form entries are required")
	}

	return nil
}

// ValidateDatabaseConfig checks the driver specific database settings
func (c *Config) ValidateDatabaseConfig() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}

	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}

		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}

		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}

	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
