package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fundwizard/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Config{
		Name:    "drafts",
		Dialect: DialectSQLite,
		DSN:     filepath.Join(t.TempDir(), "drafts.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "draft:s1:capital-request")
	assert.True(t, cache.IsNotFound(err))

	require.NoError(t, s.Set(ctx, "draft:s1:capital-request", []byte(`{"reason":"reforma da sede"}`), time.Hour))

	got, err := s.Get(ctx, "draft:s1:capital-request")
	require.NoError(t, err)
	assert.JSONEq(t, `{"reason":"reforma da sede"}`, string(got))

	require.NoError(t, s.Set(ctx, "draft:s1:capital-request", []byte(`{"reason":"nova"}`), time.Hour))
	got, err = s.Get(ctx, "draft:s1:capital-request")
	require.NoError(t, err)
	assert.JSONEq(t, `{"reason":"nova"}`, string(got), "upsert should overwrite")

	require.NoError(t, s.Delete(ctx, "draft:s1:capital-request"))
	_, err = s.Get(ctx, "draft:s1:capital-request")
	assert.True(t, cache.IsNotFound(err))
}

func TestStore_SurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "durable.db")
	ctx := context.Background()

	first, err := Open(Config{Dialect: DialectSQLite, DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, first.Close())

	second, err := Open(Config{Dialect: DialectSQLite, DSN: dsn})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestStore_ExpiryAndSweep(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("1"), 10*time.Millisecond))
	require.NoError(t, s.Set(ctx, "long", []byte("2"), time.Hour))

	time.Sleep(30 * time.Millisecond)

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, "short")
	assert.True(t, cache.IsNotFound(err))

	_, err = s.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestStore_DeleteMulti(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	for _, k := range []string{"funds:list", "funds:detail:f1", "funds:detail:f2"} {
		require.NoError(t, s.Set(ctx, k, []byte("{}"), time.Hour))
	}

	require.NoError(t, cache.DeleteMany(ctx, s, []string{"funds:list", "funds:detail:f1"}))

	_, err := s.Get(ctx, "funds:list")
	assert.True(t, cache.IsNotFound(err))
	_, err = s.Get(ctx, "funds:detail:f2")
	assert.NoError(t, err)
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(Config{Dialect: "oracle", DSN: "x"})
	assert.Error(t, err)

	_, err = Open(Config{Dialect: DialectSQLite, DSN: filepath.Join(t.TempDir(), "x.db"), Table: "drop table;"})
	assert.Error(t, err)
}

func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("FUNDWIZARD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FUNDWIZARD_TEST_POSTGRES_DSN not set")
	}

	s, err := Open(Config{Dialect: DialectPostgres, DSN: dsn, Table: "kv_entries_test"})
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "draft:pg:contribution", []byte(`{"fundId":"f1"}`), time.Minute))
	got, err := s.Get(ctx, "draft:pg:contribution")
	require.NoError(t, err)
	assert.JSONEq(t, `{"fundId":"f1"}`, string(got))
	require.NoError(t, s.DeleteMulti(ctx, []string{"draft:pg:contribution"}))
}
