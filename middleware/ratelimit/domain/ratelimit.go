package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// Quota é o resultado de uma tentativa de consumo em um LimiterStore.
//
// ResetAt indica quando a janela atual termina (ou quando o próximo token fica
// disponível, no caso de token bucket).
type Quota struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// LimiterStore decide e contabiliza em um único passo atômico por chave.
//
// A implementação pode ser janela fixa (memória ou Redis), token bucket, etc.
// Take nunca deve contar duas vezes a mesma requisição nem perder incrementos
// quando várias requisições da mesma chave chegam na virada da janela.
type LimiterStore interface {
	Take(ctx context.Context, key Key, now time.Time) (Quota, error)
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
