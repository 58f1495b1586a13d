package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/cache/memory"
	"fundwizard/pkg/cache/mock"
	"fundwizard/pkg/metrics"
	metricsmem "fundwizard/pkg/metrics/memory"
)

func TestLayer_RoundTrip(t *testing.T) {
	mem := memory.New(memory.Config{Name: "drafts"})
	l := NewLayer(mem, DefaultLayerConfig(), nil, nil)
	defer l.Close()

	ctx := context.Background()

	if l.Name() != "drafts" {
		t.Errorf("Name = %q, want drafts", l.Name())
	}

	if err := l.Set(ctx, "draft:s1:contribution", []byte(`{"fundId":"f1"}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := l.Get(ctx, "draft:s1:contribution")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"fundId":"f1"}` {
		t.Errorf("Get = %s", got)
	}

	if err := l.Delete(ctx, "draft:s1:contribution"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := l.Get(ctx, "draft:s1:contribution"); !cache.IsNotFound(err) {
		t.Errorf("expected miss after delete, got %v", err)
	}
}

func TestLayer_MissesDoNotTrip(t *testing.T) {
	inner := mock.NewLayer("drafts")
	l := NewLayer(inner, tripAfter(3), nil, nil)

	for i := 0; i < 100; i++ {
		if _, err := l.Get(context.Background(), "absent"); !cache.IsNotFound(err) {
			t.Fatalf("call %d: expected miss, got %v", i, err)
		}
	}

	if l.Guard().State() != metrics.CircuitClosed {
		t.Fatalf("breaker opened on misses")
	}
	if inner.GetCalls() != 100 {
		t.Errorf("GetCalls = %d, want 100", inner.GetCalls())
	}
}

func TestLayer_FailuresOpenCircuit(t *testing.T) {
	down := errors.New("connection refused")
	inner := mock.NewFailingLayer("redis", down)
	collector := metricsmem.New()
	l := NewLayer(inner, tripAfter(2), collector, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Set(ctx, "k", []byte("v"), 0); !errors.Is(err, down) {
			t.Fatalf("expected backend error, got %v", err)
		}
	}

	if err := l.Set(ctx, "k", []byte("v"), 0); !cache.IsCircuitOpen(err) {
		t.Fatalf("expected circuit open, got %v", err)
	}
	if inner.SetCalls() != 2 {
		t.Errorf("SetCalls = %d, want 2", inner.SetCalls())
	}

	lm := collector.Layer("redis")
	if lm == nil || lm.Errors != 3 {
		t.Errorf("expected 3 recorded errors, got %+v", lm)
	}
}

func TestLayer_DeleteMultiUsesInnerLayer(t *testing.T) {
	inner := mock.NewMapLayer("views")
	l := NewLayer(inner, DefaultLayerConfig(), nil, nil)
	ctx := context.Background()

	for _, k := range []string{"funds:list", "funds:detail:f1"} {
		if err := inner.Set(ctx, k, []byte("x"), 0); err != nil {
			t.Fatal(err)
		}
	}

	if err := l.DeleteMulti(ctx, []string{"funds:list", "funds:detail:f1"}); err != nil {
		t.Fatalf("DeleteMulti: %v", err)
	}
	if _, err := inner.Get(ctx, "funds:list"); !cache.IsNotFound(err) {
		t.Error("funds:list should be gone")
	}
	if inner.DeleteCalls() != 2 {
		t.Errorf("DeleteCalls = %d, want 2", inner.DeleteCalls())
	}
}
