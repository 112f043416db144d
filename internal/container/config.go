// Package container provides dependency injection and lifecycle management
// for the procurement tracker.
package container

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Threshold amounts for executive approval
	Thresholds ThresholdConfig

	// Activity store and sweeper
	Activity ActivityConfig

	// Export configuration
	Export ExportConfig

	// Dispatcher configuration
	Dispatcher DispatcherConfig

	// Server configuration
	Server ServerConfig
}

// DispatcherConfig holds event dispatcher settings.
type DispatcherConfig struct {
	// CloseTimeout bounds how long Close waits for in-flight handlers
	CloseTimeout time.Duration
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits for the lock
	BusyTimeout time.Duration

	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string
}

// ThresholdConfig holds the executive approval thresholds.
type ThresholdConfig struct {
	Works             decimal.Decimal
	GoodsServices     decimal.Decimal
	ReferenceCurrency string
}

// ActivityConfig holds last-seen tracking settings.
type ActivityConfig struct {
	// RedisEnabled selects the Redis store over the in-memory one
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	TTL           time.Duration
	SweepInterval time.Duration
}

// ExportConfig holds spreadsheet export settings.
type ExportConfig struct {
	SheetName string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/procurement.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Thresholds: ThresholdConfig{
			Works:             decimal.NewFromInt(5_000_000),
			GoodsServices:     decimal.NewFromInt(3_000_000),
			ReferenceCurrency: "JMD",
		},
		Activity: ActivityConfig{
			RedisAddr:     "localhost:6379",
			KeyPrefix:     "procurement:",
			TTL:           24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Export: ExportConfig{
			SheetName: "Lots",
		},
		Dispatcher: DispatcherConfig{
			CloseTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if !c.Thresholds.Works.IsPositive() || !c.Thresholds.GoodsServices.IsPositive() {
		return fmt.Errorf("thresholds must be positive")
	}
	if c.Activity.RedisEnabled && c.Activity.RedisAddr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}
	return nil
}
