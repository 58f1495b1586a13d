// Package config loads the fundwizard configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/cache/memory"
	"fundwizard/pkg/cache/redis"
	"fundwizard/pkg/cache/sqlstore"
	"fundwizard/pkg/chain"
	"fundwizard/pkg/draft"
	"fundwizard/pkg/executor"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/remote"
	"fundwizard/pkg/resilience"

	"gopkg.in/yaml.v3"
)

// Backing selects where drafts and receipts live.
type Backing string

const (
	BackingMemory   Backing = "memory"
	BackingRedis    Backing = "redis"
	BackingSQLite   Backing = "sqlite"
	BackingPostgres Backing = "postgres"
)

// Durable reports whether entries survive a restart.
func (b Backing) Durable() bool {
	return b != BackingMemory
}

// Config holds all application configuration.
type Config struct {
	Logging logging.Config `yaml:"logging"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	// AccountID scopes fund listings to the signed-in account.
	AccountID string `yaml:"account_id"`

	Remote remote.Config `yaml:"remote"`

	// Simulate lists kinds whose submissions are answered locally instead of
	// by the fund service.
	Simulate struct {
		Kinds []string      `yaml:"kinds"`
		Delay time.Duration `yaml:"delay"`
	} `yaml:"simulate"`

	Executor executor.Config `yaml:"executor"`

	Drafts struct {
		Backing Backing           `yaml:"backing"`
		Layer   cache.LayerConfig `yaml:"layer"`
		Guard   resilience.Config `yaml:"guard"`
		Memory  memory.Config     `yaml:"memory"`
		Redis   redis.Config      `yaml:"redis"`
		SQL     sqlstore.Config   `yaml:"sql"`
	} `yaml:"drafts"`

	Views struct {
		Layer  cache.LayerConfig `yaml:"layer"`
		Chain  chain.Config      `yaml:"chain"`
		Memory memory.Config     `yaml:"memory"`
		// Redis adds a shared second view layer when enabled.
		Redis struct {
			Enabled bool         `yaml:"enabled"`
			Config  redis.Config `yaml:",inline"`
		} `yaml:"redis"`
	} `yaml:"views"`

	Schedule struct {
		// SessionSweepCron forgets wizard sessions idle for SessionIdle.
		SessionSweepCron string        `yaml:"session_sweep_cron"`
		SessionIdle      time.Duration `yaml:"session_idle"`
		// DraftSweepCron purges expired rows from a SQL draft backing.
		DraftSweepCron string `yaml:"draft_sweep_cron"`
	} `yaml:"schedule"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Logging:  logging.DefaultConfig(),
		Remote:   remote.DefaultConfig(),
		Executor: executor.DefaultConfig(),
	}

	cfg.Server.Addr = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 45 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Simulate.Delay = 800 * time.Millisecond

	cfg.Drafts.Backing = BackingMemory
	cfg.Drafts.Layer = cache.LayerConfig{Name: "drafts", DefaultTTL: 24 * time.Hour, MaxTTL: 7 * 24 * time.Hour}
	cfg.Drafts.Guard = resilience.DefaultLayerConfig()
	cfg.Drafts.Memory = memory.Config{Name: "drafts", MaxSize: 10_000, CleanupInterval: time.Minute}
	cfg.Drafts.Redis = redis.DefaultConfig()
	cfg.Drafts.SQL = sqlstore.DefaultConfig()

	cfg.Views.Layer = cache.LayerConfig{Name: "views", DefaultTTL: 5 * time.Minute, MaxTTL: time.Hour}
	cfg.Views.Chain = chain.DefaultConfig()
	cfg.Views.Memory = memory.Config{Name: "views-l1", MaxSize: 1_000, CleanupInterval: 30 * time.Second}
	cfg.Views.Redis.Config = redis.DefaultConfig()
	cfg.Views.Redis.Config.Name = "views-l2"
	cfg.Views.Redis.Config.KeyPrefix = "fundwizard:views:"

	cfg.Schedule.SessionSweepCron = "@every 5m"
	cfg.Schedule.SessionIdle = time.Hour
	cfg.Schedule.DraftSweepCron = "@every 15m"

	return cfg
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Logging = logging.ApplyEnv(c.Logging)

	if v := os.Getenv("FUNDWIZARD_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("FUNDWIZARD_ACCOUNT_ID"); v != "" {
		c.AccountID = v
	}
	if v := os.Getenv("FUNDWIZARD_REMOTE_URL"); v != "" {
		c.Remote.BaseURL = v
	}
	if v := os.Getenv("FUNDWIZARD_SIMULATE"); v != "" {
		c.Simulate.Kinds = splitList(v)
	}
	if v := os.Getenv("FUNDWIZARD_DRAFT_BACKING"); v != "" {
		c.Drafts.Backing = Backing(strings.ToLower(v))
	}
	if v := os.Getenv("FUNDWIZARD_REDIS_ADDR"); v != "" {
		c.Drafts.Redis.Addr = v
		c.Views.Redis.Config.Addr = v
	}
	if v := os.Getenv("FUNDWIZARD_REDIS_PASSWORD"); v != "" {
		c.Drafts.Redis.Password = v
		c.Views.Redis.Config.Password = v
	}
	if v := os.Getenv("FUNDWIZARD_SQL_DSN"); v != "" {
		c.Drafts.SQL.DSN = v
	}
	if v := os.Getenv("FUNDWIZARD_SUBMIT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FUNDWIZARD_SUBMIT_TIMEOUT: %w", err)
		}
		c.Executor.Timeout = d
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SimulatedKinds parses Simulate.Kinds.
func (c *Config) SimulatedKinds() ([]draft.Kind, error) {
	kinds := make([]draft.Kind, 0, len(c.Simulate.Kinds))
	for _, s := range c.Simulate.Kinds {
		k, err := draft.ParseKind(s)
		if err != nil {
			return nil, fmt.Errorf("simulate.kinds: %w", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Validate checks that the configuration can build a running service.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("executor.timeout must be positive")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := c.SimulatedKinds(); err != nil {
		return err
	}

	switch c.Drafts.Backing {
	case BackingMemory:
	case BackingRedis:
		if c.Drafts.Redis.Addr == "" && len(c.Drafts.Redis.ClusterAddrs) == 0 {
			return fmt.Errorf("drafts.redis.addr is required for the redis backing")
		}
	case BackingSQLite, BackingPostgres:
		if c.Drafts.SQL.DSN == "" {
			return fmt.Errorf("drafts.sql.dsn is required for the %s backing", c.Drafts.Backing)
		}
	default:
		return fmt.Errorf("drafts.backing %q is not one of memory, redis, sqlite, postgres", c.Drafts.Backing)
	}

	if err := c.Drafts.Layer.Validate(); err != nil {
		return fmt.Errorf("drafts.layer: %w", err)
	}
	if err := c.Views.Layer.Validate(); err != nil {
		return fmt.Errorf("views.layer: %w", err)
	}
	if c.Views.Redis.Enabled && c.Views.Redis.Config.Addr == "" && len(c.Views.Redis.Config.ClusterAddrs) == 0 {
		return fmt.Errorf("views.redis.addr is required when enabled")
	}
	return nil
}
