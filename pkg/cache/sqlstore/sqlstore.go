package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"fundwizard/pkg/cache"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL driver and its placeholder and blob syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Store is a cache.Layer over a single key/value table. SQLite gives a
// durable local draft store for a single process; Postgres lets several API
// replicas share drafts.
type Store struct {
	db      *sql.DB
	dialect Dialect
	config  Config

	// sqlite serialises writers; the mutex avoids SQLITE_BUSY under load.
	mu sync.Mutex
}

// Config configures a Store.
type Config struct {
	Name    string  `yaml:"name"`
	Dialect Dialect `yaml:"dialect"`
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN        string        `yaml:"dsn"`
	Table      string        `yaml:"table"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// DefaultConfig returns a sqlite store in the working directory.
func DefaultConfig() Config {
	return Config{
		Name:       "sql",
		Dialect:    DialectSQLite,
		DSN:        "fundwizard.db",
		Table:      "kv_entries",
		DefaultTTL: 24 * time.Hour,
	}
}

// Open connects, pings and migrates.
func Open(config Config) (*Store, error) {
	if config.Name == "" {
		config.Name = "sql"
	}
	if config.Table == "" {
		config.Table = "kv_entries"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 24 * time.Hour
	}
	if !validIdentifier(config.Table) {
		return nil, fmt.Errorf("sqlstore: invalid table name %q", config.Table)
	}

	var driver string
	switch config.Dialect {
	case DialectSQLite, "":
		config.Dialect = DialectSQLite
		driver = "sqlite"
	case DialectPostgres:
		driver = "postgres"
	default:
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", config.Dialect)
	}

	db, err := sql.Open(driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", config.Dialect, err)
	}

	if config.Dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", config.Dialect, err)
	}

	s := &Store{db: db, dialect: config.Dialect, config: config}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	blob := "BLOB"
	if s.dialect == DialectPostgres {
		blob = "BYTEA"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      %s NOT NULL,
			expires_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, s.config.Table, blob),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires_at ON %s(expires_at)`, s.config.Table, s.config.Table),
	}

	if s.dialect == DialectSQLite {
		stmts = append([]string{"PRAGMA journal_mode=WAL"}, stmts...)
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ph returns the n-th (1-based) placeholder for the dialect.
func (s *Store) ph(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Get returns the payload, lazily dropping it when expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT value, expires_at FROM %s WHERE key = %s`, s.config.Table, s.ph(1))

	var (
		value     []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sql get: %w", err)
	}

	if time.Now().UnixMilli() > expiresAt {
		_ = s.Delete(ctx, key)
		return nil, cache.ErrKeyNotFound
	}

	return value, nil
}

// Set upserts the payload.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	now := time.Now()
	query := fmt.Sprintf(`INSERT INTO %s (key, value, expires_at, updated_at) VALUES (%s, %s, %s, %s)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		s.config.Table, s.ph(1), s.ph(2), s.ph(3), s.ph(4))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, query, key, value, now.Add(ttl).UnixMilli(), now.UnixMilli()); err != nil {
		return fmt.Errorf("sql set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE key = %s`, s.config.Table, s.ph(1))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("sql delete: %w", err)
	}
	return nil
}

// DeleteMulti removes keys in one statement.
func (s *Store) DeleteMulti(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = s.ph(i + 1)
		args[i] = k
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE key IN (%s)`, s.config.Table, strings.Join(placeholders, ", "))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sql delete multi: %w", err)
	}
	return nil
}

// Sweep deletes every expired row and reports how many were removed.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at < %s`, s.config.Table, s.ph(1))

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sql sweep: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Name returns the configured layer name.
func (s *Store) Name() string {
	return s.config.Name
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
