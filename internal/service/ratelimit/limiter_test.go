package ratelimit

import (
	"testing"
	"time"
)

func TestAllowConsumesBucket(t *testing.T) {
	l := New()

	for i := 0; i < 3; i++ {
		if !l.Allow("client-a", 3, 0) {
			t.Fatalf("request %d should pass with capacity 3", i+1)
		}
	}
	if l.Allow("client-a", 3, 0) {
		t.Fatal("fourth request should be rejected with empty bucket")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New()

	if !l.Allow("client-a", 1, 0) {
		t.Fatal("first request for client-a should pass")
	}
	if l.Allow("client-a", 1, 0) {
		t.Fatal("client-a bucket should be empty")
	}
	if !l.Allow("client-b", 1, 0) {
		t.Fatal("client-b should have its own bucket")
	}
}

func TestAllowRefills(t *testing.T) {
	l := New()

	if !l.Allow("client-a", 1, 1000) {
		t.Fatal("first request should pass")
	}
	// At 1000 tokens/sec a few milliseconds is enough to refill.
	time.Sleep(5 * time.Millisecond)
	if !l.Allow("client-a", 1, 1000) {
		t.Fatal("bucket should have refilled")
	}
}

func TestPruneDropsIdleBuckets(t *testing.T) {
	l := New()
	l.Allow("stale", 1, 0)
	l.m["stale"].last = time.Now().Add(-time.Hour)
	l.Allow("fresh", 1, 0)

	if n := l.Prune(30 * time.Minute); n != 1 {
		t.Fatalf("Prune removed %d buckets, want 1", n)
	}
	if _, ok := l.m["stale"]; ok {
		t.Fatal("stale bucket should be gone")
	}
	if _, ok := l.m["fresh"]; !ok {
		t.Fatal("fresh bucket should survive")
	}
}
