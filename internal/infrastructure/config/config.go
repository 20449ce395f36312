package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	CacheBackendMemory = "memory"
	CacheBackendTheine = "theine"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Models   ModelsConfig
	Eager    EagerConfig
	Cache    CacheConfig
	Log      LogConfig
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int // Port for Prometheus metrics HTTP server
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Backend  string // postgres or memory
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ModelsConfig points at the HCL model declarations
type ModelsConfig struct {
	File     string
	SeedDemo bool // Insert the demo graph on startup
}

// EagerConfig bounds eager loading
type EagerConfig struct {
	MaxConcurrency    int // Sibling fetches per level, 0 = unlimited
	MaxRecursionDepth int // Re-applications of name.^ that may find records, 0 = loader default
}

// CacheConfig represents parsed expression cache configuration
type CacheConfig struct {
	Enabled        bool
	Backend        string // memory or theine
	MaxMemoryBytes int64 // Maximum memory usage in bytes (e.g., 16777216 = 16MB)
	Metrics        bool
	TTLMinutes     int // Time-to-live for cache entries in minutes
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string
	Format string // console or json
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot)

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 50051)
	viper.SetDefault("METRICS_PORT", 9090)

	viper.SetDefault("DB_BACKEND", BackendPostgres)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "relgraph")
	viper.SetDefault("DB_NAME", "relgraph_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	viper.SetDefault("MODELS_FILE", filepath.Join(projectRoot, "models.hcl"))
	viper.SetDefault("SEED_DEMO", false)

	viper.SetDefault("EAGER_MAX_CONCURRENCY", 8)
	viper.SetDefault("EAGER_MAX_RECURSION_DEPTH", 32)

	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_BACKEND", CacheBackendMemory)
	viper.SetDefault("CACHE_MAX_MEMORY_BYTES", 16*1024*1024) // 16MB
	viper.SetDefault("CACHE_METRICS", true)
	viper.SetDefault("CACHE_TTL_MINUTES", 30)

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "console")

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	backend := viper.GetString("DB_BACKEND")
	if backend != BackendPostgres && backend != BackendMemory {
		return nil, fmt.Errorf("DB_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, backend)
	}

	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if backend == BackendPostgres && dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	config := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("SERVER_HOST"),
			Port:        viper.GetInt("SERVER_PORT"),
			MetricsPort: viper.GetInt("METRICS_PORT"),
		},
		Database: DatabaseConfig{
			Backend:  backend,
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Models: ModelsConfig{
			File:     viper.GetString("MODELS_FILE"),
			SeedDemo: viper.GetBool("SEED_DEMO"),
		},
		Eager: EagerConfig{
			MaxConcurrency:    viper.GetInt("EAGER_MAX_CONCURRENCY"),
			MaxRecursionDepth: viper.GetInt("EAGER_MAX_RECURSION_DEPTH"),
		},
		Cache: CacheConfig{
			Enabled:        viper.GetBool("CACHE_ENABLED"),
			Backend:        viper.GetString("CACHE_BACKEND"),
			MaxMemoryBytes: viper.GetInt64("CACHE_MAX_MEMORY_BYTES"),
			Metrics:        viper.GetBool("CACHE_METRICS"),
			TTLMinutes:     viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
	}

	if config.Eager.MaxConcurrency < 0 || config.Eager.MaxRecursionDepth < 0 {
		return nil, fmt.Errorf("EAGER_MAX_CONCURRENCY and EAGER_MAX_RECURSION_DEPTH must not be negative")
	}
	if b := config.Cache.Backend; b != CacheBackendMemory && b != CacheBackendTheine {
		return nil, fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheBackendMemory, CacheBackendTheine, b)
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
