package infra

import (
	"context"
	"sync"
	"time"

	"api-gateway/middleware/ratelimit/domain"
)

// WindowStore é o limiter de janela fixa em memória.
//
// Cada chave tem um domain.Window criado sob demanda. Reset da janela e
// incremento acontecem sob o mesmo lock, então requisições simultâneas na
// virada da janela nunca contam em dobro nem se perdem.
type WindowStore struct {
	mu      sync.Mutex
	entries map[string]*domain.Window
	size    time.Duration
	max     int
	cfg     storeConfig
}

func NewWindowStore(size time.Duration, max int, opts ...StoreOption) *WindowStore {
	return &WindowStore{
		entries: make(map[string]*domain.Window),
		size:    size,
		max:     max,
		cfg:     newStoreConfig(opts),
	}
}

func (s *WindowStore) Size() time.Duration         { return s.size }
func (s *WindowStore) Max() int                    { return s.max }
func (s *WindowStore) CleanupEvery() time.Duration { return s.cfg.cleanupEvery }

// Take implementa domain.LimiterStore. Só requisições admitidas incrementam o contador.
func (s *WindowStore) Take(_ context.Context, key domain.Key, now time.Time) (domain.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.entries[string(key)]
	if !ok {
		w = &domain.Window{}
		s.entries[string(key)] = w
	}
	if w.Expired(now, s.size) {
		w.Start = now
		w.Count = 0
	}

	q := domain.Quota{Limit: s.max, ResetAt: w.ResetAt(s.size)}
	if w.Count >= s.max {
		return q, nil
	}

	w.Count++
	q.Allowed = true
	q.Remaining = s.max - w.Count
	return q, nil
}

// Len retorna o número de chaves rastreadas.
func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove as janelas que já expiraram em now.
func (s *WindowStore) Cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, w := range s.entries {
		if w.Expired(now, s.size) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa janelas expiradas periodicamente.
// Pare cancelando o contexto.
func (s *WindowStore) StartJanitor(ctx context.Context) {
	startJanitor(ctx, s.cfg.cleanupEvery, s.Cleanup)
}

func startJanitor(ctx context.Context, every time.Duration, cleanup func(time.Time)) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				cleanup(now)
			}
		}
	}()
}
