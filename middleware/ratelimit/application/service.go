package application

import (
	"context"
	"time"

	"api-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit (admit/reject).
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

// Decide consulta o store para a chave no instante now.
//
// Falha do store é fail-open: a request é admitida e o erro é devolvido
// para o chamador registrar.
func (s Service) Decide(ctx context.Context, key domain.Key, now time.Time) (domain.Decision, error) {
	if s.Store == nil {
		return domain.Decision{Allowed: true}, nil
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	q, err := s.Store.Take(ctx, key, now)
	if err != nil {
		return domain.Decision{Allowed: true}, err
	}

	dec := domain.Decision{
		Allowed:   q.Allowed,
		Limit:     q.Limit,
		Remaining: q.Remaining,
		ResetAt:   q.ResetAt,
	}
	if q.Allowed {
		return dec, nil
	}

	dec.RetryAfter = s.RetryAfter
	if !q.ResetAt.IsZero() {
		if wait := q.ResetAt.Sub(now); wait > 0 {
			dec.RetryAfter = wait
		}
	}
	return dec, nil
}
