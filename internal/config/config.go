package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete server and CLI configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	Ledger   LedgerConfig   `yaml:"ledger"`
}

// ServerConfig contains listener addresses and the shared API token
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"` // empty disables the HTTP gateway
	APIToken string `yaml:"api_token"`
}

// DatabaseConfig selects the SQL driver and connection
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // "postgres" or "sqlite"
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// LogConfig contains logger parameters
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig tunes the security read-through cache
type CacheConfig struct {
	SecurityTTL     time.Duration `yaml:"security_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// LedgerConfig holds accounting defaults
type LedgerConfig struct {
	BaseCurrency string `yaml:"base_currency"`
}

// Default returns a configuration that runs against a local SQLite file
func Default() Config {
	return Config{
		Server: ServerConfig{
			GRPCAddr: ":50051",
			HTTPAddr: ":8080",
			APIToken: "secret-token",
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "ledger.db",
			MaxOpenConns: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Cache: CacheConfig{
			SecurityTTL:     5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		Ledger: LedgerConfig{
			BaseCurrency: "USD",
		},
	}
}

// Load builds the configuration from defaults, an optional .env file, an optional
// YAML file and finally the environment
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.GRPCAddr = getEnv("LEDGER_GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.HTTPAddr = getEnv("LEDGER_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.APIToken = getEnv("LEDGER_API_TOKEN", c.Server.APIToken)
	c.Database.Driver = getEnv("LEDGER_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("LEDGER_DB_DSN", c.Database.DSN)
	c.Log.Level = getEnv("LEDGER_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LEDGER_LOG_FORMAT", c.Log.Format)
	c.Ledger.BaseCurrency = getEnv("LEDGER_BASE_CURRENCY", c.Ledger.BaseCurrency)

	if v, ok := os.LookupEnv("LEDGER_DB_MAX_OPEN_CONNS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LEDGER_DB_MAX_OPEN_CONNS %q: %w", v, err)
		}
		c.Database.MaxOpenConns = n
	}
	if v, ok := os.LookupEnv("LEDGER_CACHE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LEDGER_CACHE_TTL %q: %w", v, err)
		}
		c.Cache.SecurityTTL = d
	}
	return nil
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns cannot be negative")
	}
	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("server.grpc_addr is required")
	}
	if c.Cache.SecurityTTL < 0 || c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("cache durations cannot be negative")
	}
	code := strings.ToUpper(strings.TrimSpace(c.Ledger.BaseCurrency))
	if money.GetCurrency(code) == nil {
		return fmt.Errorf("ledger.base_currency %q is not a known currency", c.Ledger.BaseCurrency)
	}
	c.Ledger.BaseCurrency = code
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}
