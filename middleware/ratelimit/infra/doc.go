// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: janela fixa por chave em memória, com janitor
//   - RedisWindowStore: janela fixa compartilhada via script Lua no Redis
//   - TokenBucketStore: token bucket por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - RedisStatsStore: estatísticas de decisão em Redis
package infra
