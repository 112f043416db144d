package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/procurement.db", cfg.Database.Path)
	assert.Equal(t, "5000000", cfg.Thresholds.Works)
	assert.Equal(t, "3000000", cfg.Thresholds.GoodsServices)
	assert.Equal(t, "JMD", cfg.Thresholds.ReferenceCurrency)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Activity.TTL)
	assert.Equal(t, "Lots", cfg.Export.SheetName)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
database:
  path: /tmp/procurement-test.db
thresholds:
  works: "7500000"
activity:
  ttl: 2h
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/procurement-test.db", cfg.Database.Path)
	assert.Equal(t, "7500000", cfg.Thresholds.Works)
	assert.Equal(t, "3000000", cfg.Thresholds.GoodsServices)
	assert.Equal(t, 2*time.Hour, cfg.Activity.TTL)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_PATH=/var/lib/procurement.db\n"), 0o600))

	t.Setenv("DATABASE_PATH", "")
	os.Unsetenv("DATABASE_PATH")

	require.NoError(t, LoadDotEnv(path))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/procurement.db", cfg.Database.Path)

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"no database path", func(c *Config) { c.Database.Path = "" }},
		{"non numeric threshold", func(c *Config) { c.Thresholds.Works = "lots" }},
		{"zero threshold", func(c *Config) { c.Thresholds.GoodsServices = "0" }},
		{"bad currency", func(c *Config) { c.Thresholds.ReferenceCurrency = "JA" }},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"zero ttl", func(c *Config) { c.Activity.TTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cc := cfg.ToContainerConfig()
	assert.Equal(t, "5000000", cc.Thresholds.Works.String())
	assert.Equal(t, "3000000", cc.Thresholds.GoodsServices.String())
	assert.Equal(t, cfg.Database.Path, cc.Database.Path)
	assert.Equal(t, "procurement:", cc.Activity.KeyPrefix)
	require.NoError(t, cc.Validate())
}
