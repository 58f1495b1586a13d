package redis

import (
	"context"
	"fmt"
	"time"

	"fundwizard/pkg/cache"

	"github.com/redis/rueidis"
)

// Cache is a cache.Layer backed by Redis through rueidis. Drafts kept here
// survive a process restart, which gives every wizard kind the same durable
// option.
type Cache struct {
	client rueidis.Client
	name   string
	config Config
}

// Config configures the Redis connection.
type Config struct {
	Name string `yaml:"name"`
	// Addr is the single-node address, e.g. "localhost:6379".
	Addr string `yaml:"addr"`
	// ClusterAddrs enables cluster mode when set. Cluster mode only supports DB 0.
	ClusterAddrs []string `yaml:"cluster_addrs"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	// KeyPrefix namespaces every key this layer writes.
	KeyPrefix    string        `yaml:"key_prefix"`
	DefaultTTL   time.Duration `yaml:"default_ttl"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// Sentinel mode is enabled when SentinelAddrs is set.
	SentinelMasterSet string   `yaml:"sentinel_master_set"`
	SentinelAddrs     []string `yaml:"sentinel_addrs"`
}

// DefaultConfig returns a single-node localhost configuration.
func DefaultConfig() Config {
	return Config{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "fundwizard:",
		DefaultTTL:   24 * time.Hour,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// New connects and pings the server.
func New(config Config) (*Cache, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 24 * time.Hour
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case len(config.SentinelAddrs) > 0:
		initAddress = config.SentinelAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, fmt.Errorf("redis: no addresses configured (set addr, cluster_addrs or sentinel_addrs)")
	}

	opts := rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
	}
	if len(config.SentinelAddrs) > 0 {
		opts.Sentinel = rueidis.SentinelOption{MasterSet: config.SentinelMasterSet}
	}

	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &Cache{
		client: client,
		name:   config.Name,
		config: config,
	}, nil
}

func (r *Cache) key(k string) string {
	return r.config.KeyPrefix + k
}

// Get returns the stored payload.
func (r *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	resp := r.client.Do(ctx, r.client.B().Get().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, cache.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get: failed to read response: %w", err)
	}
	return data, nil
}

// Set stores value with an expiry. ttl <= 0 uses DefaultTTL.
func (r *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}

	cmd := r.client.B().Set().Key(r.key(key)).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *Cache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if err := r.client.Do(ctx, r.client.B().Del().Key(r.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// DeleteMulti removes keys with a single DEL.
func (r *Cache) DeleteMulti(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}

	if err := r.client.Do(ctx, r.client.B().Del().Key(full...).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete multi: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Cache) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// FlushDB empties the selected database. Tests only.
func (r *Cache) FlushDB(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Flushdb().Build()).Error(); err != nil {
		return fmt.Errorf("redis flushdb: %w", err)
	}
	return nil
}

// Name returns the configured layer name.
func (r *Cache) Name() string {
	return r.name
}

// Close closes the client.
func (r *Cache) Close() error {
	r.client.Close()
	return nil
}
