package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Catalog source kinds.
const (
	CatalogSourceFile     = "file"
	CatalogSourceDatabase = "database"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Catalog       CatalogConfig
	Storage       StorageConfig
	Extraction    ExtractionConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	BaseURL            string
	RateLimitPerSecond int
	RateLimitBurst     int
	CORSOrigins        []string
	ShutdownTimeout    time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

// CatalogConfig controls where the product catalog comes from and how
// matches are ranked.
type CatalogConfig struct {
	Path            string
	Source          string
	SyncSchedule    string
	TopN            int
	SearchIndexPath string
}

type StorageConfig struct {
	LocalPath string
}

// ExtractionConfig configures the OpenAI-compatible line item extractor.
// An empty APIKey disables extraction.
type ExtractionConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables, after loading a
// .env file from the working directory when there is one.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8000),
			BaseURL:            getEnv("BASE_URL", "http://localhost:8000"),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 100),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 200),
			CORSOrigins:        getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "fastener_match"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
		Catalog: CatalogConfig{
			Path:            getEnv("CATALOG_PATH", "onsite_documents/unique_fastener_catalog.csv"),
			Source:          strings.ToLower(getEnv("CATALOG_SOURCE", CatalogSourceFile)),
			SyncSchedule:    os.Getenv("CATALOG_SYNC_SCHEDULE"),
			TopN:            getEnvAsInt("MATCH_TOP_N", 5),
			SearchIndexPath: getEnv("SEARCH_INDEX_PATH", ""),
		},
		Storage: StorageConfig{
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./uploads"),
		},
		Extraction: ExtractionConfig{
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:      getEnv("OPENAI_MODEL", "gpt-4.1"),
			Timeout:    getEnvAsDuration("EXTRACTION_TIMEOUT", 2*time.Minute),
			MaxRetries: getEnvAsInt("EXTRACTION_MAX_RETRIES", 3),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	if _, ok := os.LookupEnv("CATALOG_SYNC_SCHEDULE"); !ok {
		cfg.Catalog.SyncSchedule = "0 3 * * *"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values Load cannot default its way out of.
func (c *Config) Validate() error {
	if c.Catalog.TopN < 1 {
		return errors.New("MATCH_TOP_N must be at least 1")
	}

	switch c.Catalog.Source {
	case CatalogSourceFile, CatalogSourceDatabase:
	default:
		return fmt.Errorf("CATALOG_SOURCE must be %q or %q, got %q", CatalogSourceFile, CatalogSourceDatabase, c.Catalog.Source)
	}

	if c.Extraction.MaxRetries < 0 {
		return errors.New("EXTRACTION_MAX_RETRIES must not be negative")
	}

	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
