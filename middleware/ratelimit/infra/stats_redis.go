package infra

import (
	"context"
	"strings"
	"time"

	"api-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// Granularidade das séries temporais de decisões.
const (
	BucketMinute = "minute"
	BucketHour   = "hour"
	BucketNone   = "none"
)

var bucketLayouts = map[string]string{
	BucketMinute: "200601021504",
	BucketHour:   "2006010215",
}

// RedisStatsStore agrega decisões do rate limit em hashes Redis com os campos
// "allowed" e "denied":
//
//	<prefix>:total               cumulativo, sem expiração
//	<prefix>:route:<rota>        por rótulo de rota (cardinalidade controlada)
//	<prefix>:<bucket>:<instante> série temporal, expira após ttl
//	<prefix>:key:<chave>         por cliente, opcional, expira após ttl
type RedisStatsStore struct {
	rdb       redis.UniversalClient
	prefix    string
	ttl       time.Duration
	layout    string
	bucket    string
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket aceita BucketMinute, BucketHour ou BucketNone; valores
// desconhecidos desligam a série temporal.
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.bucket = strings.ToLower(strings.TrimSpace(bucket))
		s.layout = bucketLayouts[s.bucket]
	}
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: BucketMinute,
		layout: bucketLayouts[BucketMinute],
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type statsHash struct {
	key     string
	expires bool
}

// hashes lista os hashes que um evento incrementa.
func (s *RedisStatsStore) hashes(ev domain.StatsEvent, at time.Time) []statsHash {
	out := []statsHash{{key: s.prefix + ":total"}}

	if route := strings.TrimSpace(ev.Route); route != "" {
		out = append(out, statsHash{key: s.prefix + ":route:" + route})
	}
	if s.layout != "" {
		out = append(out, statsHash{key: s.prefix + ":" + s.bucket + ":" + at.UTC().Format(s.layout), expires: true})
	}
	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			out = append(out, statsHash{key: s.prefix + ":key:" + k, expires: true})
		}
	}
	return out
}

// Record implementa domain.StatsStore com um único round-trip (pipeline).
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, h := range s.hashes(ev, at) {
			pipe.HIncrBy(ctx, h.key, field, 1)
			if h.expires && s.ttl > 0 {
				pipe.Expire(ctx, h.key, s.ttl)
			}
		}
		return nil
	})
	return err
}
