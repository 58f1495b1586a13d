package wizard

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"fundwizard/pkg/cache/memory"
	"fundwizard/pkg/draft"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	mem := memory.New(memory.Config{Name: "drafts"})
	t.Cleanup(func() { mem.Close() })
	return NewManager(mem, time.Hour, nil, nil)
}

func TestManager_StoreIsReusedPerSessionAndKind(t *testing.T) {
	m := newManager(t)

	a := m.Store("s1", draft.KindContribution)
	b := m.Store("s1", draft.KindContribution)
	c := m.Store("s1", draft.KindCapitalRequest)

	if a != b {
		t.Error("same session and kind should share a store")
	}
	if a == c {
		t.Error("different kinds need different stores")
	}
	if m.Sessions() != 1 {
		t.Errorf("Sessions = %d, want 1", m.Sessions())
	}
}

func TestManager_BeginOverwritesPreviousDraft(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	st := m.Store("s1", draft.KindContribution)
	fund := "f1"
	st.Update(ctx, draft.Patch{FundID: &fund})

	_, d := m.Begin(ctx, "s1", draft.KindContribution)
	if d.FundID != "" {
		t.Errorf("Begin should start from a fresh draft, got %+v", d)
	}

	got, ok := st.Get(ctx)
	if !ok || got.FundID != "" {
		t.Errorf("previous draft should be overwritten, got %+v (ok=%v)", got, ok)
	}
}

func TestManager_AbandonAndEnd(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	fund := "f1"

	m.Store("s1", draft.KindContribution).Update(ctx, draft.Patch{FundID: &fund})
	m.Store("s1", draft.KindCapitalRequest).Update(ctx, draft.Patch{FundID: &fund})

	m.Abandon(ctx, "s1", draft.KindContribution)
	if _, ok := m.Store("s1", draft.KindContribution).Get(ctx); ok {
		t.Error("abandoned draft should be absent")
	}
	if _, ok := m.Store("s1", draft.KindCapitalRequest).Get(ctx); !ok {
		t.Error("abandon must not touch other kinds")
	}

	m.End(ctx, "s1")
	if m.Sessions() != 0 {
		t.Errorf("Sessions = %d after End", m.Sessions())
	}
	if _, ok := m.Store("s1", draft.KindCapitalRequest).Get(ctx); ok {
		t.Error("End should clear every draft of the session")
	}

	m.End(ctx, "unknown")
}

func TestManager_Sweep(t *testing.T) {
	m := newManager(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Store("old", draft.KindContribution)
	now = now.Add(45 * time.Minute)
	m.Store("recent", draft.KindContribution)
	now = now.Add(20 * time.Minute)

	if n := m.Sweep(time.Hour); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if m.Sessions() != 1 {
		t.Errorf("Sessions = %d, want 1", m.Sessions())
	}
}

func TestManager_SweptStoreSharesLockWithReplacement(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	key := draft.Key("s1", draft.KindContribution)
	before := m.lockFor(key)

	held := m.Store("s1", draft.KindContribution)
	fund := "f1"
	held.Update(ctx, draft.Patch{FundID: &fund})

	now = now.Add(2 * time.Hour)
	if n := m.Sweep(time.Hour); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}
	if m.lockFor(key) != before {
		t.Fatal("lock for a key must survive a sweep")
	}

	fresh := m.Store("s1", draft.KindContribution)
	if fresh == held {
		t.Fatal("sweep should drop the old store")
	}

	var wg sync.WaitGroup
	var token string
	wg.Add(2)
	go func() {
		defer wg.Done()
		tok, err := held.EnsureToken(ctx)
		if err != nil {
			t.Errorf("EnsureToken: %v", err)
		}
		token = tok
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			method := fmt.Sprintf("m%d", i)
			fresh.Update(ctx, draft.Patch{PaymentMethod: &method})
		}
	}()
	wg.Wait()

	d, ok := fresh.Get(ctx)
	if !ok {
		t.Fatal("draft should exist")
	}
	if d.IdempotencyToken != token {
		t.Errorf("token = %q, want %q", d.IdempotencyToken, token)
	}
	if d.PaymentMethod != "m49" {
		t.Errorf("PaymentMethod = %q, want m49", d.PaymentMethod)
	}
	if d.FundID != "f1" {
		t.Errorf("FundID = %q, want f1", d.FundID)
	}
}
