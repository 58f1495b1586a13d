package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fundwizard/pkg/draft"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fundwizard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackingMemory, cfg.Drafts.Backing)
	assert.Equal(t, 30*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, "@every 5m", cfg.Schedule.SessionSweepCron)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9090"
account_id: acc-1
remote:
  base_url: https://funds.example.com
  guard:
    timeout: 4s
simulate:
  kinds: [capital-request]
executor:
  timeout: 20s
drafts:
  backing: sqlite
  sql:
    dsn: /tmp/drafts.db
views:
  redis:
    enabled: true
    addr: redis:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "acc-1", cfg.AccountID)
	assert.Equal(t, "https://funds.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 4*time.Second, cfg.Remote.Guard.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, BackingSQLite, cfg.Drafts.Backing)
	assert.Equal(t, "/tmp/drafts.db", cfg.Drafts.SQL.DSN)
	assert.True(t, cfg.Views.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Views.Redis.Config.Addr)

	// untouched nested defaults survive
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "drafts", cfg.Drafts.Layer.Name)

	kinds, err := cfg.SimulatedKinds()
	require.NoError(t, err)
	assert.Equal(t, []draft.Kind{draft.KindCapitalRequest}, kinds)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FUNDWIZARD_ADDR", ":7070")
	t.Setenv("FUNDWIZARD_REMOTE_URL", "http://remote")
	t.Setenv("FUNDWIZARD_SIMULATE", "contribution, fund-creation,")
	t.Setenv("FUNDWIZARD_DRAFT_BACKING", "REDIS")
	t.Setenv("FUNDWIZARD_REDIS_ADDR", "cache:6379")
	t.Setenv("FUNDWIZARD_SUBMIT_TIMEOUT", "12s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "http://remote", cfg.Remote.BaseURL)
	assert.Equal(t, []string{"contribution", "fund-creation"}, cfg.Simulate.Kinds)
	assert.Equal(t, BackingRedis, cfg.Drafts.Backing)
	assert.Equal(t, "cache:6379", cfg.Drafts.Redis.Addr)
	assert.Equal(t, "cache:6379", cfg.Views.Redis.Config.Addr)
	assert.Equal(t, 12*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_BadInput(t *testing.T) {
	_, err := Load(writeFile(t, "server: [unclosed"))
	assert.Error(t, err)

	t.Setenv("FUNDWIZARD_SUBMIT_TIMEOUT", "soon")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no addr", func(c *Config) { c.Server.Addr = "" }},
		{"no remote", func(c *Config) { c.Remote.BaseURL = "" }},
		{"zero timeout", func(c *Config) { c.Executor.Timeout = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad simulate kind", func(c *Config) { c.Simulate.Kinds = []string{"loan"} }},
		{"unknown backing", func(c *Config) { c.Drafts.Backing = "etcd" }},
		{"postgres without dsn", func(c *Config) {
			c.Drafts.Backing = BackingPostgres
			c.Drafts.SQL.DSN = ""
		}},
		{"redis without addr", func(c *Config) {
			c.Drafts.Backing = BackingRedis
			c.Drafts.Redis.Addr = ""
		}},
		{"default ttl above cap", func(c *Config) { c.Drafts.Layer.DefaultTTL = 30 * 24 * time.Hour }},
		{"view redis without addr", func(c *Config) {
			c.Views.Redis.Enabled = true
			c.Views.Redis.Config.Addr = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBackingDurable(t *testing.T) {
	assert.False(t, BackingMemory.Durable())
	assert.True(t, BackingRedis.Durable())
	assert.True(t, BackingSQLite.Durable())
}
