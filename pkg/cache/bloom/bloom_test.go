package bloom

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/cache/mock"
)

func TestLayer_WriteThenRead(t *testing.T) {
	inner := mock.NewMapLayer("receipts")
	bl := New(inner, 100, 0.01)
	defer bl.Close()

	ctx := context.Background()
	if err := bl.Set(ctx, "receipt:tok-1", []byte(`{"status":"concluded"}`), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := bl.Get(ctx, "receipt:tok-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"status":"concluded"}` {
		t.Errorf("unexpected payload %s", got)
	}
}

func TestLayer_RejectsUnknownKeysWithoutTouchingInner(t *testing.T) {
	inner := mock.NewMapLayer("receipts")
	bl := New(inner, 1000, 0.001)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = bl.Set(ctx, fmt.Sprintf("receipt:tok-%d", i), []byte("{}"), time.Hour)
	}

	_, err := bl.Get(ctx, "receipt:never-submitted")
	if !cache.IsNotFound(err) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if inner.GetCalls() != 0 {
		t.Errorf("inner layer should not be queried, got %d calls", inner.GetCalls())
	}

	stats := bl.Stats()
	if stats.BloomRejected != 1 || stats.TotalQueries != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestLayer_DeleteFallsThrough(t *testing.T) {
	inner := mock.NewMapLayer("receipts")
	bl := New(inner, 100, 0.01)
	ctx := context.Background()

	_ = bl.Set(ctx, "k", []byte("v"), time.Hour)
	_ = bl.Delete(ctx, "k")

	if _, err := bl.Get(ctx, "k"); !cache.IsNotFound(err) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
	if bl.Stats().FalsePositives != 1 {
		t.Errorf("deleted key should count as a false positive, got %+v", bl.Stats())
	}
}

func TestLayer_SeedAndReset(t *testing.T) {
	inner := mock.NewMapLayer("receipts")
	_ = inner.Set(context.Background(), "restored", []byte("v"), 0)

	bl := New(inner, 100, 0.01)
	ctx := context.Background()

	if _, err := bl.Get(ctx, "restored"); !cache.IsNotFound(err) {
		t.Fatalf("unseeded key should be rejected, got %v", err)
	}

	bl.Seed("restored")
	if _, err := bl.Get(ctx, "restored"); err != nil {
		t.Fatalf("seeded key should reach the inner layer: %v", err)
	}

	bl.Reset()
	if bl.Stats().TotalQueries != 0 {
		t.Error("Reset should clear counters")
	}
	if _, err := bl.Get(ctx, "restored"); !cache.IsNotFound(err) {
		t.Errorf("Reset should clear the filter, got %v", err)
	}
}

func TestLayer_Name(t *testing.T) {
	bl := New(mock.NewLayer("memory"), 0, 0)
	if bl.Name() != "bloom(memory)" {
		t.Errorf("unexpected name %q", bl.Name())
	}
}

func TestLayer_CancelledContext(t *testing.T) {
	bl := New(mock.NewMapLayer("m"), 10, 0.01)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := bl.Get(ctx, "k"); err == nil {
		t.Error("expected context error on Get")
	}
	if err := bl.Set(ctx, "k", nil, 0); err == nil {
		t.Error("expected context error on Set")
	}
}
