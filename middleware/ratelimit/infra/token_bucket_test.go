package infra

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketStore_BurstThenReject(t *testing.T) {
	s := NewTokenBucketStore(time.Minute, 2, WithCleanupEvery(0))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if q, _ := s.Take(ctx, "k", t0); !q.Allowed {
			t.Fatalf("expected request %d admitted", i+1)
		}
	}
	q, _ := s.Take(ctx, "k", t0)
	if q.Allowed {
		t.Fatalf("expected third immediate request rejected")
	}
	// 2 tokens/min => próximo token em 30s
	if wait := q.ResetAt.Sub(t0); wait < 29*time.Second || wait > 31*time.Second {
		t.Fatalf("expected next token in ~30s, got %s", wait)
	}
}

func TestTokenBucketStore_RefillsOverTime(t *testing.T) {
	s := NewTokenBucketStore(time.Minute, 1, WithCleanupEvery(0))
	ctx := context.Background()

	if q, _ := s.Take(ctx, "k", t0); !q.Allowed {
		t.Fatalf("expected first admitted")
	}
	if q, _ := s.Take(ctx, "k", t0.Add(time.Minute)); !q.Allowed {
		t.Fatalf("expected admission after refill")
	}
}

func TestTokenBucketStore_CleanupRemovesIdleEntries(t *testing.T) {
	s := NewTokenBucketStore(time.Minute, 1, WithIdleTTL(time.Minute), WithCleanupEvery(0))
	ctx := context.Background()

	before := s.limiter("k", t0)
	_, _ = s.Take(ctx, "k", t0)
	s.Cleanup(t0.Add(2 * time.Minute))

	after := s.limiter("k", t0.Add(2*time.Minute))
	if before == after {
		t.Fatalf("expected limiter to be recreated after cleanup")
	}
}
