package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, hit, _ := m.Get(ctx, "missing"); hit {
		t.Error("expected miss for unknown key")
	}

	if err := m.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, hit, err := m.Get(ctx, "k")
	if err != nil || !hit || value != "v" {
		t.Errorf("expected hit with v, got %q hit=%v err=%v", value, hit, err)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.Set(ctx, "k", "v", 5*time.Millisecond)
	if _, hit, _ := m.Get(ctx, "k"); !hit {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(10 * time.Millisecond)
	if _, hit, _ := m.Get(ctx, "k"); hit {
		t.Error("expected miss after expiry")
	}
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.Set(ctx, "k", "v", 0)
	_ = m.ListPush(ctx, "k", "item")
	_ = m.Delete(ctx, "k")

	if _, hit, _ := m.Get(ctx, "k"); hit {
		t.Error("expected value deleted")
	}
	if n, _ := m.ListLen(ctx, "k"); n != 0 {
		t.Errorf("expected list deleted, len %d", n)
	}
}

func TestMemory_ListTrim(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// Pushes prepend, mirroring LPUSH ordering
	for _, v := range []string{"a", "b", "c", "d"} {
		_ = m.ListPush(ctx, "q", v)
	}

	if err := m.ListTrim(ctx, "q", 0, 1); err != nil {
		t.Fatalf("ListTrim failed: %v", err)
	}
	if n, _ := m.ListLen(ctx, "q"); n != 2 {
		t.Errorf("expected 2 kept, got %d", n)
	}

	// Inverted range drops the list
	if err := m.ListTrim(ctx, "q", 5, 1); err != nil {
		t.Fatalf("ListTrim failed: %v", err)
	}
	if n, _ := m.ListLen(ctx, "q"); n != 0 {
		t.Errorf("expected empty list, got %d", n)
	}
}

func TestMemory_ListTrimNegativeIndices(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c", "d"} {
		_ = m.ListPush(ctx, "q", v)
	}

	// Keep everything, Redis-style 0..-1
	if err := m.ListTrim(ctx, "q", 0, -1); err != nil {
		t.Fatalf("ListTrim failed: %v", err)
	}
	if n, _ := m.ListLen(ctx, "q"); n != 4 {
		t.Errorf("expected all 4 kept, got %d", n)
	}
}

func TestMemory_Expire(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.Set(ctx, "k", "v", 0)
	_ = m.Expire(ctx, "k", 5*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	if _, hit, _ := m.Get(ctx, "k"); hit {
		t.Error("expected miss after Expire ttl elapsed")
	}

	// Expiring a missing key is a no-op
	if err := m.Expire(ctx, "missing", time.Second); err != nil {
		t.Errorf("Expire on missing key: %v", err)
	}
}
