package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	KurrentDB   KurrentDBConfig
	Auth        AuthConfig
	Dispatch    DispatchConfig
	Fulfillment FulfillmentConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// DataDir holds the reminder snapshot when no database is configured
	DataDir string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB), used for
// the append-only adherence event stream.
type KurrentDBConfig struct {
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

// DispatchConfig holds settings for the due-dose notification dispatcher.
type DispatchConfig struct {
	// Enabled controls whether the background dispatcher runs
	Enabled bool
	// Lookahead is the window scanned for upcoming doses
	Lookahead time.Duration
	// PollInterval is how often the feed is re-scanned
	PollInterval time.Duration
	// Workers is the delivery worker count
	Workers int
	// BufferSize is the delivery queue capacity
	BufferSize int
}

// FulfillmentConfig holds settings for the pharmacy POS restock adapter.
type FulfillmentConfig struct {
	// Enabled controls whether the POS adapter runs
	Enabled bool
	// SQL Server connection settings for the POS database
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// PollInterval is how often fulfilled orders are polled
	PollInterval time.Duration
	// OrdersTable is the fulfilled-orders view to poll
	OrdersTable string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:    getEnvInt("SERVER_PORT", 8080),
			Env:     getEnv("ENV", "development"),
			DataDir: getEnv("DATA_DIR", "data"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "mercury"),
			Password: getEnv("DB_PASSWORD", "mercury"),
			Database: getEnv("DB_NAME", "mercury"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Dispatch: DispatchConfig{
			Enabled:      getEnvBool("DISPATCH_ENABLED", true),
			Lookahead:    getEnvDuration("DISPATCH_LOOKAHEAD", 24*time.Hour),
			PollInterval: getEnvDuration("DISPATCH_POLL_INTERVAL", time.Minute),
			Workers:      getEnvInt("DISPATCH_WORKERS", 4),
			BufferSize:   getEnvInt("DISPATCH_BUFFER_SIZE", 1000),
		},
		Fulfillment: FulfillmentConfig{
			Enabled:      getEnvBool("FULFILLMENT_ENABLED", false),
			Host:         getEnv("POS_DB_HOST", "localhost"),
			Port:         getEnvInt("POS_DB_PORT", 1433),
			User:         getEnv("POS_DB_USER", "mercury"),
			Password:     getEnv("POS_DB_PASSWORD", ""),
			Database:     getEnv("POS_DB_NAME", "mercurypos"),
			SSLMode:      getEnv("POS_DB_SSLMODE", "disable"),
			PollInterval: getEnvDuration("POS_POLL_INTERVAL", 30*time.Second),
			OrdersTable:  getEnv("POS_ORDERS_TABLE", "dbo.FulfilledOrders"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
