package infra

import (
	"context"
	"math"
	"sync"
	"time"

	"api-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// TokenBucketStore é a alternativa ao WindowStore baseada em token-bucket
// (x/time/rate), com cache por chave e limpeza periódica de chaves ociosas.
//
// max tokens por janela: rps = max/janela, burst = max.
type TokenBucketStore struct {
	mu      sync.Mutex
	entries map[string]*bucketEntry
	rps     rate.Limit
	burst   int
	cfg     storeConfig
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewTokenBucketStore(window time.Duration, max int, opts ...StoreOption) *TokenBucketStore {
	rps := rate.Inf
	if window > 0 {
		rps = rate.Limit(float64(max) / window.Seconds())
	}
	return &TokenBucketStore{
		entries: make(map[string]*bucketEntry),
		rps:     rps,
		burst:   max,
		cfg:     newStoreConfig(opts),
	}
}

func (s *TokenBucketStore) RPS() float64 { return float64(s.rps) }
func (s *TokenBucketStore) Burst() int   { return s.burst }

// Take implementa domain.LimiterStore.
func (s *TokenBucketStore) Take(_ context.Context, key domain.Key, now time.Time) (domain.Quota, error) {
	lim := s.limiter(string(key), now)

	q := domain.Quota{Limit: s.burst}
	q.Allowed = lim.AllowN(now, 1)

	tokens := lim.TokensAt(now)
	q.Remaining = int(math.Max(0, math.Floor(tokens)))
	q.ResetAt = now
	if tokens < 1 && s.rps > 0 && s.rps != rate.Inf {
		wait := (1 - tokens) / float64(s.rps)
		q.ResetAt = now.Add(time.Duration(wait * float64(time.Second)).Round(time.Millisecond))
	}
	return q, nil
}

func (s *TokenBucketStore) limiter(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup remove buckets sem uso há mais que o idle TTL.
func (s *TokenBucketStore) Cleanup(now time.Time) {
	cutoff := now.Add(-s.cfg.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

func (s *TokenBucketStore) StartJanitor(ctx context.Context) {
	startJanitor(ctx, s.cfg.cleanupEvery, s.Cleanup)
}
