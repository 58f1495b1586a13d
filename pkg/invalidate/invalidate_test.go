package invalidate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fundwizard/pkg/cache/memory"
	"fundwizard/pkg/chain"
	metricsmem "fundwizard/pkg/metrics/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDeleter struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (d *recordingDeleter) Delete(_ context.Context, keys ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, append([]string(nil), keys...))
	return d.err
}

func TestScopeKeys(t *testing.T) {
	tests := []struct {
		scope   Scope
		want    string
		wantErr bool
	}{
		{ListScope(), "funds:list", false},
		{DetailScope("f1"), "funds:detail:f1", false},
		{HistoryScope("f1"), "funds:history:f1", false},
		{HomeScope(), "nav:home", false},
		{Scope{Kind: FundDetail}, "", true},
		{Scope{Kind: "balance"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			key, err := tt.scope.Key()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}

	assert.Equal(t, ListKey(), "funds:list")
	assert.Equal(t, DetailKey("f1"), "funds:detail:f1")
	assert.Equal(t, HistoryKey("f1"), "funds:history:f1")
	assert.Equal(t, HomeKey(), "nav:home")
}

func TestInvalidate_DeletesKeysOnceAndNotifiesInOrder(t *testing.T) {
	target := &recordingDeleter{}
	collector := metricsmem.New()
	inv := New(target, collector, nil)

	var order []string
	var got []Scope
	inv.Watch(func(_ context.Context, scopes []Scope) {
		order = append(order, "first")
		got = scopes
	})
	inv.Watch(func(context.Context, []Scope) { order = append(order, "second") })

	inv.Invalidate(context.Background(), ListScope(), DetailScope("f1"), ListScope())

	require.Len(t, target.calls, 1)
	assert.Equal(t, []string{"funds:list", "funds:detail:f1"}, target.calls[0])
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, []Scope{ListScope(), DetailScope("f1")}, got)

	total, failed := collector.Invalidations(string(FundList))
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(0), failed)
}

func TestInvalidate_NeverFails(t *testing.T) {
	target := &recordingDeleter{err: errors.New("redis down")}
	collector := metricsmem.New()
	inv := New(target, collector, nil)

	notified := false
	inv.Watch(func(context.Context, []Scope) { panic("listener bug") })
	inv.Watch(func(context.Context, []Scope) { notified = true })

	assert.NotPanics(t, func() {
		inv.Invalidate(context.Background(), DetailScope("f1"), Scope{Kind: FundHistory})
	})

	assert.True(t, notified, "a panicking listener must not stop the others")
	_, failed := collector.Invalidations(string(FundDetail))
	assert.Equal(t, int64(1), failed)
	_, failed = collector.Invalidations(string(FundHistory))
	assert.Equal(t, int64(1), failed, "invalid scope is counted as a failure")
}

func TestInvalidate_NoScopes(t *testing.T) {
	target := &recordingDeleter{}
	New(target, nil, nil).Invalidate(context.Background())
	assert.Empty(t, target.calls)
}

func TestWatch_Cancel(t *testing.T) {
	inv := New(nil, nil, nil)

	calls := 0
	cancel := inv.Watch(func(context.Context, []Scope) { calls++ })
	inv.Invalidate(context.Background(), HomeScope())
	cancel()
	cancel()
	inv.Invalidate(context.Background(), HomeScope())

	assert.Equal(t, 1, calls)
}

func TestInvalidate_ClearsChainViews(t *testing.T) {
	mem := memory.New(memory.Config{Name: "views"})
	c, err := chain.New(chain.DefaultConfig(), nil, nil, mem)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	loads := 0
	load := func(context.Context) ([]byte, error) {
		loads++
		return []byte(`[]`), nil
	}

	_, err = c.GetOrLoad(ctx, ListKey(), time.Minute, load)
	require.NoError(t, err)
	require.NoError(t, c.Flush(time.Second))

	_, err = c.GetOrLoad(ctx, ListKey(), time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 1, loads, "second read is served from the view cache")

	New(c, nil, nil).Invalidate(ctx, ListScope())

	_, err = c.GetOrLoad(ctx, ListKey(), time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads, "invalidated view is re-fetched")
}
