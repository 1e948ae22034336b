package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPutGetClose(t *testing.T) {
	table := New[string](30*time.Minute, zerolog.Nop())

	table.Put("s1", "handle-1")
	got, ok := table.Get("s1")
	if !ok || got != "handle-1" {
		t.Fatalf("Get() = %q, %v; want handle-1, true", got, ok)
	}

	if !table.Close("s1") {
		t.Fatal("Close() should report the session existed")
	}
	if table.Close("s1") {
		t.Fatal("Close() on a removed session should report false")
	}
	if _, ok := table.Get("s1"); ok {
		t.Fatal("Get() after Close() should miss")
	}
}

func TestIdleSessionsExpire(t *testing.T) {
	table := New[int](30*time.Minute, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	table.now = func() time.Time { return now }

	table.Put("s1", 1)

	now = now.Add(31 * time.Minute)
	if _, ok := table.Get("s1"); ok {
		t.Fatal("idle session past TTL should be evicted on Get")
	}
	if table.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", table.Len())
	}
}

func TestTouchExtendsLifetime(t *testing.T) {
	table := New[int](30*time.Minute, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	table.now = func() time.Time { return now }

	table.Put("s1", 1)

	now = now.Add(20 * time.Minute)
	table.Touch("s1")

	now = now.Add(20 * time.Minute)
	if _, ok := table.Get("s1"); !ok {
		t.Fatal("touched session should survive past its original deadline")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	table := New[int](0, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	table.now = func() time.Time { return now }

	table.Put("s1", 1)
	now = now.Add(1000 * time.Hour)
	if _, ok := table.Get("s1"); !ok {
		t.Fatal("ttl<=0 disables expiry")
	}
}
