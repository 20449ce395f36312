package config

import (
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard configuration",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "testuser",
				Password: "testpass",
				Database: "testdb",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable",
		},
		{
			name: "production configuration",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "produser",
				Password: "securepass123",
				Database: "proddb",
				SSLMode:  "require",
			},
			want: "host=db.example.com port=5433 user=produser password=securepass123 dbname=proddb sslmode=require",
		},
		{
			name: "IPv6 host",
			cfg: DatabaseConfig{
				Host:     "::1",
				Port:     5432,
				User:     "user",
				Password: "pass",
				Database: "db",
				SSLMode:  "disable",
			},
			want: "host=::1 port=5432 user=user password=pass dbname=db sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ConnectionString(); got != tt.want {
				t.Errorf("DatabaseConfig.ConnectionString() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitConfig(t *testing.T) {
	tests := []struct {
		name string
		env  string
	}{
		{name: "default dev environment", env: ""},
		{name: "explicit dev environment", env: "dev"},
		{name: "test environment", env: "test"},
		{name: "prod environment", env: "prod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()

			if err := InitConfig(tt.env); err != nil {
				t.Fatalf("InitConfig() error = %v", err)
			}

			if viper.GetString("SERVER_HOST") != "0.0.0.0" {
				t.Errorf("InitConfig() SERVER_HOST = %v, want 0.0.0.0", viper.GetString("SERVER_HOST"))
			}
			if viper.GetInt("SERVER_PORT") != 50051 {
				t.Errorf("InitConfig() SERVER_PORT = %v, want 50051", viper.GetInt("SERVER_PORT"))
			}
			if viper.GetString("DB_USER") != "relgraph" {
				t.Errorf("InitConfig() DB_USER = %v, want relgraph", viper.GetString("DB_USER"))
			}
			if !strings.HasSuffix(viper.GetString("MODELS_FILE"), "models.hcl") {
				t.Errorf("InitConfig() MODELS_FILE = %v, want a models.hcl path", viper.GetString("MODELS_FILE"))
			}
		})
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		wantErrMsg  string
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "postgres with password",
			setup: func() {
				viper.Set("DB_PASSWORD", "testpassword")
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Database.Backend != BackendPostgres {
					t.Errorf("Load() Database.Backend = %v, want postgres", cfg.Database.Backend)
				}
				if cfg.Database.Port != 15432 {
					t.Errorf("Load() Database.Port = %v, want 15432", cfg.Database.Port)
				}
				if cfg.Database.Password != "testpassword" {
					t.Errorf("Load() Database.Password = %v, want testpassword", cfg.Database.Password)
				}
				if cfg.Eager.MaxConcurrency != 8 {
					t.Errorf("Load() Eager.MaxConcurrency = %v, want 8", cfg.Eager.MaxConcurrency)
				}
				if cfg.Eager.MaxRecursionDepth != 32 {
					t.Errorf("Load() Eager.MaxRecursionDepth = %v, want 32", cfg.Eager.MaxRecursionDepth)
				}
				if !cfg.Cache.Enabled || cfg.Cache.Backend != CacheBackendMemory || cfg.Cache.TTLMinutes != 30 {
					t.Errorf("Load() Cache = %+v, want enabled with 30 minute TTL", cfg.Cache)
				}
				if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
					t.Errorf("Load() Log = %+v, want info/console", cfg.Log)
				}
			},
		},
		{
			name:       "postgres without password",
			setup:      func() {},
			wantErrMsg: "DB_PASSWORD is required (set via environment variable or .env file)",
		},
		{
			name: "memory backend needs no password",
			setup: func() {
				viper.Set("DB_BACKEND", BackendMemory)
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Database.Backend != BackendMemory {
					t.Errorf("Load() Database.Backend = %v, want memory", cfg.Database.Backend)
				}
			},
		},
		{
			name: "unknown cache backend",
			setup: func() {
				viper.Set("DB_BACKEND", BackendMemory)
				viper.Set("CACHE_BACKEND", "redis")
			},
			wantErrMsg: `CACHE_BACKEND must be "memory" or "theine", got "redis"`,
		},
		{
			name: "theine cache backend",
			setup: func() {
				viper.Set("DB_BACKEND", BackendMemory)
				viper.Set("CACHE_BACKEND", CacheBackendTheine)
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Cache.Backend != CacheBackendTheine {
					t.Errorf("Load() Cache.Backend = %v, want theine", cfg.Cache.Backend)
				}
			},
		},
		{
			name: "unknown backend",
			setup: func() {
				viper.Set("DB_BACKEND", "sqlite")
			},
			wantErrMsg: `DB_BACKEND must be "postgres" or "memory", got "sqlite"`,
		},
		{
			name: "negative eager limits",
			setup: func() {
				viper.Set("DB_BACKEND", BackendMemory)
				viper.Set("EAGER_MAX_RECURSION_DEPTH", -1)
			},
			wantErrMsg: "EAGER_MAX_CONCURRENCY and EAGER_MAX_RECURSION_DEPTH must not be negative",
		},
		{
			name: "custom server and eager config",
			setup: func() {
				viper.Set("DB_BACKEND", BackendMemory)
				viper.Set("SERVER_PORT", 8080)
				viper.Set("EAGER_MAX_CONCURRENCY", 2)
				viper.Set("EAGER_MAX_RECURSION_DEPTH", 16)
				viper.Set("MODELS_FILE", "/etc/relgraph/models.hcl")
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 8080 {
					t.Errorf("Load() Server.Port = %v, want 8080", cfg.Server.Port)
				}
				if cfg.Eager.MaxConcurrency != 2 || cfg.Eager.MaxRecursionDepth != 16 {
					t.Errorf("Load() Eager = %+v, want 2/16", cfg.Eager)
				}
				if cfg.Models.File != "/etc/relgraph/models.hcl" {
					t.Errorf("Load() Models.File = %v", cfg.Models.File)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_BACKEND", "")
			t.Setenv("DB_PASSWORD", "")
			t.Setenv("CACHE_BACKEND", "")
			viper.Reset()
			defer viper.Reset()

			if err := InitConfig("unittest"); err != nil {
				t.Fatalf("InitConfig() error = %v", err)
			}
			tt.setup()

			cfg, err := Load()
			if tt.wantErrMsg != "" {
				if err == nil {
					t.Fatalf("Load() error = nil, want %v", tt.wantErrMsg)
				}
				if err.Error() != tt.wantErrMsg {
					t.Errorf("Load() error = %v, want %v", err.Error(), tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	// Save original working directory
	originalWd, _ := os.Getwd()
	defer os.Chdir(originalWd)

	// This test assumes we're running from within the project
	root, err := findProjectRoot()
	if err != nil {
		t.Errorf("findProjectRoot() error = %v, want nil", err)
		return
	}

	// Verify go.mod exists in the returned root
	goModPath := root + "/go.mod"
	if _, err := os.Stat(goModPath); os.IsNotExist(err) {
		t.Errorf("findProjectRoot() returned %v, but go.mod does not exist at %v", root, goModPath)
	}
}
