package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"api-gateway/internal/config"
	"api-gateway/internal/health"
	gwlog "api-gateway/internal/log"
	"api-gateway/internal/metrics"
	"api-gateway/internal/proxy"
	"api-gateway/internal/route"
	"api-gateway/internal/server"
	"api-gateway/middleware/ratelimit"
	"api-gateway/middleware/ratelimit/domain"
	"api-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code; deferred cleanup runs before main exits.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := gwlog.New("info", gwlog.FormatJSON)
		bootLogger.Fatal().Err(err).Msg("config error")
	}
	logger := gwlog.New(cfg.LogLevel, cfg.LogFormat)

	table, err := cfg.RouteTable()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid routes")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var closers []func() error
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn().Err(err).Msg("close failed")
			}
		}
	}()

	recorder := metrics.NewRecorder()
	dispatcher := proxy.NewDispatcher(table, proxy.Options{
		Timeout: cfg.ProxyTimeout,
		Logger:  logger.With().Str("component", "proxy").Logger(),
	})
	prober := health.NewProber(&http.Client{}, cfg.HealthTimeout, logger.With().Str("component", "health").Logger())

	apiMiddleware := []func(http.Handler) http.Handler{}
	if cfg.RateLimit.Enabled {
		store, closeStore, err := newLimiterStore(ctx, cfg.RateLimit, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("rate limit store")
		}
		if closeStore != nil {
			closers = append(closers, closeStore)
		}

		stats := domain.StatsStore(recorder)
		if cfg.RateStats.Enabled {
			rdb, err := connectRedis(cfg.RateStats.Redis)
			if err != nil {
				logger.Fatal().Err(err).Msg("redis stats ping error")
			}
			closers = append(closers, rdb.Close)
			stats = domain.MultiStats{recorder, infra.NewRedisStatsStore(
				rdb,
				infra.WithStatsPrefix(cfg.RateStats.Prefix),
				infra.WithStatsTTL(cfg.RateStats.TTL),
				infra.WithStatsBucket(cfg.RateStats.Bucket),
				infra.WithStatsTrackKeys(cfg.RateStats.TrackKeys),
			)}
		}

		rlLogger := logger.With().Str("component", "ratelimit").Logger()
		apiMiddleware = append(apiMiddleware, ratelimit.Middleware(ratelimit.Options{
			Store:               store,
			Stats:               stats,
			KeyHeader:           cfg.RateLimit.KeyHeader,
			TrustXForwardedFor:  cfg.RateLimit.TrustXFF,
			AddRateLimitHeaders: cfg.RateLimit.AddHeaders,
			Label:               routeLabel(table),
			Logger:              &rlLogger,
		}))
	}
	apiMiddleware = append(apiMiddleware, ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		AcquireTimeout: cfg.Concurrency.Timeout,
	}))

	srv := server.New(server.Options{
		Table:         table,
		Dispatcher:    dispatcher,
		Prober:        prober,
		Recorder:      recorder,
		APIMiddleware: apiMiddleware,
		Logger:        logger,
		WriteTimeout:  cfg.ProxyTimeout + 10*time.Second,
	})

	logger.Info().
		Bool("enabled", cfg.RateLimit.Enabled).
		Str("store", cfg.RateLimit.Store).
		Dur("window", cfg.RateLimit.Window).
		Int("max", cfg.RateLimit.Max).
		Str("key_header", cfg.RateLimit.KeyHeader).
		Bool("trust_xff", cfg.RateLimit.TrustXFF).
		Msg("rate limit")
	logger.Info().
		Int("max", cfg.Concurrency.Max).
		Dur("acquire_timeout", cfg.Concurrency.Timeout).
		Msg("concurrency")
	for _, rt := range table.Routes() {
		logger.Info().Str("prefix", rt.Prefix).Str("target", rt.Target.String()).Str("service", rt.Name).Msg("route")
	}

	if err := srv.Run(ctx, cfg.ListenAddr(), cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("gateway did not stop cleanly")
		return 1
	}
	logger.Info().Msg("gateway stopped")
	return 0
}

// janitor is implemented by the in-process stores that evict idle keys.
type janitor interface {
	StartJanitor(ctx context.Context)
}

func newLimiterStore(ctx context.Context, rl config.RateLimit, logger zerolog.Logger) (domain.LimiterStore, func() error, error) {
	var store domain.LimiterStore
	var closeFn func() error

	switch rl.Store {
	case config.StoreRedis:
		rdb, err := connectRedis(rl.Redis)
		if err != nil {
			return nil, nil, err
		}
		store = infra.NewRedisWindowStore(rdb, rl.Window, rl.Max)
		closeFn = rdb.Close
	case config.StoreTokenBucket:
		store = infra.NewTokenBucketStore(rl.Window, rl.Max, infra.WithIdleTTL(rl.Window))
	default:
		store = infra.NewWindowStore(rl.Window, rl.Max)
	}

	if j, ok := store.(janitor); ok {
		j.StartJanitor(ctx)
	}
	logger.Debug().Str("store", rl.Store).Msg("rate limit store ready")
	return store, closeFn, nil
}

func connectRedis(r config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", r.Addr, err)
	}
	return rdb, nil
}

// routeLabel labels rate limit stats with the resolved route prefix.
func routeLabel(table *route.Table) func(*http.Request) string {
	return func(r *http.Request) string {
		if rt, ok := table.Resolve(r.URL.Path); ok {
			return rt.Prefix
		}
		return metrics.UnmatchedRoute
	}
}
