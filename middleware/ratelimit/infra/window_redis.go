package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"api-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// takeScript faz leitura, reset e incremento da janela atomicamente no Redis.
// Retorna {allowed, count, pttl}.
var takeScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = redis.call('PTTL', KEYS[1])
if current >= max then
  if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], window)
    ttl = window
  end
  return {0, current, ttl}
end
local count = redis.call('INCR', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
return {1, count, ttl}
`)

// RedisWindowStore é o limiter de janela fixa compartilhado entre réplicas do gateway.
//
// A chave expira sozinha no fim da janela (PEXPIRE), então não há janitor.
type RedisWindowStore struct {
	rdb    redis.UniversalClient
	size   time.Duration
	max    int
	prefix string
}

func NewRedisWindowStore(rdb redis.UniversalClient, size time.Duration, max int, opts ...StoreOption) *RedisWindowStore {
	cfg := newStoreConfig(opts)
	return &RedisWindowStore{
		rdb:    rdb,
		size:   size,
		max:    max,
		prefix: strings.Trim(cfg.prefix, ":"),
	}
}

// Take implementa domain.LimiterStore.
func (s *RedisWindowStore) Take(ctx context.Context, key domain.Key, now time.Time) (domain.Quota, error) {
	res, err := takeScript.Run(ctx, s.rdb, []string{s.prefix + ":" + string(key)}, s.max, s.size.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.Quota{}, fmt.Errorf("redis window take: %w", err)
	}
	if len(res) != 3 {
		return domain.Quota{}, fmt.Errorf("redis window take: unexpected reply %v", res)
	}

	q := domain.Quota{
		Allowed: res[0] == 1,
		Limit:   s.max,
		ResetAt: now.Add(time.Duration(res[2]) * time.Millisecond),
	}
	if q.Allowed {
		q.Remaining = s.max - int(res[1])
	}
	return q, nil
}
