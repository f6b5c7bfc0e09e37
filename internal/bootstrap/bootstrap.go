// Package bootstrap builds the shared runtime of the services and the CLI
// from a loaded configuration.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/cuongbtq/report-autofill/internal/config"
	"github.com/cuongbtq/report-autofill/internal/engine"
	"github.com/cuongbtq/report-autofill/internal/metrics"
	"github.com/cuongbtq/report-autofill/internal/notify"
	"github.com/cuongbtq/report-autofill/internal/retry"
	"github.com/cuongbtq/report-autofill/internal/storage"
	"github.com/cuongbtq/report-autofill/internal/submitter"
	"github.com/cuongbtq/report-autofill/shared/database"
	"github.com/cuongbtq/report-autofill/shared/logger"
	"github.com/cuongbtq/report-autofill/shared/rabbitmq"
)

// Services holds the stores and the engine built from one configuration
type Services struct {
	DB       *database.Client
	Profiles *storage.ProfileStore
	Recorder *storage.SubmissionRecorder
	Engine   *engine.Engine
}

// Close releases the database connection
func (s *Services) Close() error {
	return s.DB.Close()
}

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   cfg.TimeFormat,
	}

	return logger.New(loggerCfg)
}

// InitDatabase opens the database and applies pending migrations. SQLite
// is always migrated; PostgreSQL only with auto_migrate.
func InitDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	dbConfig := &database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
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

	client, err := database.NewClient(dbConfig, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Driver == database.DriverSQLite || cfg.AutoMigrate {
		if err := storage.RunMigrations(client.GetDB()); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	return client, nil
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	progressQueue := ""
	if cfg.Progress.Enabled {
		progressQueue = cfg.Progress.Queue
	}

	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		ProgressQueueName:  progressQueue,
		ProgressRoutingKey: cfg.Progress.RoutingKey,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// InitProgress returns the JobUpdate publisher, or nil when progress events
// are disabled
func InitProgress(cfg *config.RabbitMQConfig, client *rabbitmq.Client, logger *slog.Logger) *notify.ProgressPublisher {
	if client == nil || !cfg.Progress.Enabled {
		return nil
	}

	return notify.NewProgressPublisher(&notify.Config{
		Logger:     logger,
		Publisher:  client,
		RoutingKey: client.ProgressRoutingKey(),
		BufferSize: cfg.Progress.BufferSize,
	})
}

// RetryPolicy converts the engine settings into a retry policy
func RetryPolicy(cfg *config.EngineConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseBackoff,
		MaxDelay:    cfg.MaxBackoff,
	}
}

// InitSubmitter builds the form submitter
func InitSubmitter(cfg *config.FormConfig, logger *slog.Logger) (*submitter.FormSubmitter, error) {
	return submitter.NewFormSubmitter(&submitter.Config{
		Logger:       logger,
		FormURL:      cfg.URL,
		FieldEntries: cfg.Entries,
		SuccessText:  cfg.SuccessText,
		MinInterval:  cfg.MinInterval,
	})
}

// InitStores opens the database and builds the profile store and the
// submission recorder. Engine stays nil until InitEngine.
func InitStores(cfg *config.DatabaseConfig, logger *slog.Logger) (*Services, error) {
	db, err := InitDatabase(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Services{
		DB:       db,
		Profiles: storage.NewProfileStore(db.GetDB(), logger),
		Recorder: storage.NewSubmissionRecorder(db.GetDB(), logger),
	}, nil
}

// InitEngine builds the form submitter and the batch engine over the stores
func (s *Services) InitEngine(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, observers ...engine.Observer) error {
	formSubmitter, err := InitSubmitter(&cfg.Form, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize form submitter: %w", err)
	}

	eng, err := engine.NewEngine(&engine.Config{
		Logger:         logger,
		Profiles:       s.Profiles,
		Recorder:       s.Recorder,
		Submitter:      formSubmitter,
		Policy:         RetryPolicy(&cfg.Engine),
		Concurrency:    cfg.Engine.Concurrency,
		AttemptTimeout: cfg.Engine.AttemptTimeout,
		Metrics:        m,
		Observers:      observers,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	s.Engine = eng
	return nil
}

// InitServices opens the database and wires the stores, the submitter and
// the engine
func InitServices(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, observers ...engine.Observer) (*Services, error) {
	services, err := InitStores(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if err := services.InitEngine(cfg, logger, m, observers...); err != nil {
		services.Close()
		return nil, err
	}

	return services, nil
}
