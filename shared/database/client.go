package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLite DSN parameters
const (
	sqliteBusyTimeout = "5000"
	sqliteSynchronous = "NORMAL"
	sqliteJournalMode = "WAL"
)

// Config holds database connection configuration
type Config struct {
	Driver          string
	Path            string // SQLite file path
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Client represents a SQL database client
type Client struct {
	db     *sqlx.DB
	config *Config
	logger *slog.Logger
}

// NewClient opens the configured database and verifies the connection
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	dsn, err := BuildDSN(config)
	if err != nil {
		return nil, err
	}

	logger.Info("Connecting to database",
		slog.String("driver", config.Driver),
		slog.String("host", config.Host),
		slog.String("database", databaseName(config)),
	)

	db, err := sqlx.Open(config.Driver, dsn)
	if err != nil {
		logger.Error("Failed to open database",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	applyPoolSettings(db, config)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("Failed to ping database",
			slog.Any("error", err),
		)
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := &Client{
		db:     db,
		config: config,
		logger: logger,
	}

	logger.Info("Successfully connected to database",
		slog.String("driver", config.Driver),
		slog.Int("max_open_conns", db.Stats().MaxOpenConnections),
	)

	return client, nil
}

// BuildDSN renders the driver-specific data source name
func BuildDSN(config *Config) (string, error) {
	switch config.Driver {
	case DriverSQLite:
		if config.Path == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		params := url.Values{}
		params.Set("_journal_mode", sqliteJournalMode)
		params.Set("_busy_timeout", sqliteBusyTimeout)
		params.Set("_synchronous", sqliteSynchronous)
		params.Set("_foreign_keys", "on")
		params.Set("_txlock", "immediate")
		return config.Path + "?" + params.Encode(), nil

	case DriverPostgres:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host,
			config.Port,
			config.User,
			config.Password,
			config.Database,
			config.SSLMode,
		), nil

	default:
		return "", fmt.Errorf("unsupported database driver %q", config.Driver)
	}
}

// applyPoolSettings sizes the pool. SQLite gets a single connection so
// writers never contend for the file lock.
func applyPoolSettings(db *sqlx.DB, config *Config) {
	if config.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(time.Hour)
		return
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
}

func databaseName(config *Config) string {
	if config.Driver == DriverSQLite {
		return config.Path
	}
	return config.Database
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// Driver returns the configured driver name
func (c *Client) Driver() string {
	return c.config.Driver
}

// Close closes the database connection
func (c *Client) Close() error {
	c.logger.Info("Closing database connection")

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("Database connection closed successfully")
	return nil
}

// Ping checks the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Stats returns database statistics
func (c *Client) Stats() string {
	stats := c.db.Stats()
	return fmt.Sprintf(
		"MaxOpenConns: %d, OpenConns: %d, InUse: %d, Idle: %d, WaitCount: %d, WaitDuration: %s",
		stats.MaxOpenConnections,
		stats.OpenConnections,
		stats.InUse,
		stats.Idle,
		stats.WaitCount,
		stats.WaitDuration,
	)
}

// HealthCheck performs a health check on the database
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Try a simple query
	var result int
	err := c.db.GetContext(ctx, &result, "SELECT 1")
	if err != nil {
		return fmt.Errorf("database query health check failed: %w", err)
	}

	return nil
}
