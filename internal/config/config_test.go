package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "USD", cfg.Ledger.BaseCurrency)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	content := `
server:
  grpc_addr: ":6000"
database:
  driver: postgres
  dsn: postgres://ledger@localhost/ledger?sslmode=disable
  max_open_conns: 8
cache:
  security_ttl: 30s
ledger:
  base_currency: eur
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LEDGER_GRPC_ADDR", ":7000")
	t.Setenv("LEDGER_CACHE_TTL", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.GRPCAddr)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr, "defaults survive partial files")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Database.MaxOpenConns)
	assert.Equal(t, time.Minute, cfg.Cache.SecurityTTL)
	assert.Equal(t, "EUR", cfg.Ledger.BaseCurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "Unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, errMsg: "database.driver"},
		{name: "Empty DSN", mutate: func(c *Config) { c.Database.DSN = "" }, errMsg: "database.dsn"},
		{name: "Unknown currency", mutate: func(c *Config) { c.Ledger.BaseCurrency = "ZZZ" }, errMsg: "base_currency"},
		{name: "Missing gRPC address", mutate: func(c *Config) { c.Server.GRPCAddr = "" }, errMsg: "grpc_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_InvalidEnvDuration(t *testing.T) {
	t.Setenv("LEDGER_CACHE_TTL", "soon")
	_, err := Load("")
	assert.Error(t, err)
}
