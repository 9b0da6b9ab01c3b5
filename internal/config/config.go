package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"lease-cashflow/cashflow-backend/internal/projection"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Projection ProjectionConfig `json:"projection"`
	Storage    StorageConfig    `json:"storage"`
	Logging    LoggingConfig    `json:"logging"`
	Monitoring MonitoringConfig `json:"monitoring"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	MaxUploadSize int64         `json:"max_upload_size"`
}

// DatabaseConfig represents database configuration. An empty Host disables
// persistence to Postgres and runs are kept in memory.
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// ProjectionConfig holds cash flow projection defaults. Runs older than
// RetentionDays are purged on RetentionSchedule (cron syntax); zero keeps
// runs forever.
type ProjectionConfig struct {
	DefaultEscalationPercent float64       `json:"default_escalation_percent"`
	MaxEscalationPercent     float64       `json:"max_escalation_percent"`
	RoundingMode             string        `json:"rounding_mode"`
	ValidationMode           string        `json:"validation_mode"`
	Workers                  int           `json:"workers"`
	RunCacheTTL              time.Duration `json:"run_cache_ttl"`
	RetentionDays            int           `json:"retention_days"`
	RetentionSchedule        string        `json:"retention_schedule"`
}

// StorageConfig holds S3 archive configuration. An empty Bucket disables
// archiving.
type StorageConfig struct {
	Bucket       string        `json:"bucket"`
	Region       string        `json:"region"`
	Prefix       string        `json:"prefix"`
	Endpoint     string        `json:"endpoint"`
	PresignTTL   time.Duration `json:"presign_ttl"`
	UsePathStyle bool          `json:"use_path_style"`
}

// LoggingConfig
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json, console
}

// MonitoringConfig
type MonitoringConfig struct {
	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  60 * time.Second,
			MaxUploadSize: 10 << 20,
		},
		Database: DatabaseConfig{
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "lease_cashflow",
			SSLMode:        "disable",
			MaxConnections: 10,
			MaxIdleConns:   2,
			MaxLifetime:    30 * time.Minute,
		},
		Projection: ProjectionConfig{
			DefaultEscalationPercent: 0,
			MaxEscalationPercent:     20,
			RoundingMode:             string(projection.RoundHalfEven),
			ValidationMode:           string(projection.ValidationLenient),
			Workers:                  4,
			RunCacheTTL:              5 * time.Minute,
			RetentionSchedule:        "0 3 * * *",
		},
		Storage: StorageConfig{
			Region:     "me-central-1",
			Prefix:     "projections",
			PresignTTL: 15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: true,
			MetricsPath:    "/metrics",
		},
	}
}

// LoadConfig loads configuration from file, a .env file and environment
// variables, in increasing order of precedence
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// .env is optional
	_ = godotenv.Load()

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DATABASE_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			config.Database.Port = p
		}
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if rounding := os.Getenv("PROJECTION_ROUNDING_MODE"); rounding != "" {
		config.Projection.RoundingMode = rounding
	}
	if validation := os.Getenv("PROJECTION_VALIDATION_MODE"); validation != "" {
		config.Projection.ValidationMode = validation
	}
	if esc := os.Getenv("PROJECTION_DEFAULT_ESCALATION_PERCENT"); esc != "" {
		if v, err := strconv.ParseFloat(esc, 64); err == nil {
			config.Projection.DefaultEscalationPercent = v
		}
	}
	if bucket := os.Getenv("STORAGE_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
	}
	if region := os.Getenv("STORAGE_REGION"); region != "" {
		config.Storage.Region = region
	}
	if endpoint := os.Getenv("STORAGE_ENDPOINT"); endpoint != "" {
		config.Storage.Endpoint = endpoint
	}
	if days := os.Getenv("PROJECTION_RETENTION_DAYS"); days != "" {
		if v, err := strconv.Atoi(days); err == nil {
			config.Projection.RetentionDays = v
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if _, err := projection.ParseRoundingMode(c.Projection.RoundingMode); err != nil {
		return err
	}
	if _, err := projection.ParseValidationMode(c.Projection.ValidationMode); err != nil {
		return err
	}
	if c.Projection.MaxEscalationPercent < 0 {
		return fmt.Errorf("max_escalation_percent must not be negative")
	}
	if c.Projection.DefaultEscalationPercent < 0 || c.Projection.DefaultEscalationPercent > c.Projection.MaxEscalationPercent {
		return fmt.Errorf("default_escalation_percent must be within [0, %g]", c.Projection.MaxEscalationPercent)
	}
	if c.Projection.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// Enabled reports whether a Postgres database is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
