package domain

import "time"

// Window é o estado de uma chave no algoritmo de janela fixa.
type Window struct {
	Start time.Time
	Count int
}

// Expired informa se a janela iniciada em Start já terminou em now.
func (w Window) Expired(now time.Time, size time.Duration) bool {
	return w.Start.IsZero() || now.Sub(w.Start) >= size
}

// ResetAt é o instante em que a janela termina.
func (w Window) ResetAt(size time.Duration) time.Time {
	return w.Start.Add(size)
}
