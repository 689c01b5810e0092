package infra

import "time"

type storeConfig struct {
	cleanupEvery time.Duration
	idleTTL      time.Duration
	prefix       string
}

type StoreOption func(*storeConfig)

// WithCleanupEvery define o intervalo do janitor. 0 desliga a limpeza periódica.
func WithCleanupEvery(d time.Duration) StoreOption {
	return func(c *storeConfig) { c.cleanupEvery = d }
}

// WithIdleTTL define por quanto tempo um token bucket ocioso é mantido.
func WithIdleTTL(d time.Duration) StoreOption {
	return func(c *storeConfig) { c.idleTTL = d }
}

// WithKeyPrefix define o prefixo das chaves no Redis.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) { c.prefix = prefix }
}

func newStoreConfig(opts []StoreOption) storeConfig {
	c := storeConfig{
		cleanupEvery: 2 * time.Minute,
		idleTTL:      15 * time.Minute,
		prefix:       "ratelimit:window",
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
