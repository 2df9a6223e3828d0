// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore: sliding log atômico via script Lua (multi-instância)
//   - MemoryCounterStore: o mesmo algoritmo em memória (processo único, testes)
//   - RedisVisitorStore / MemoryVisitorStore: registro de visitantes
//   - RedisStatsStore / PrometheusStatsStore / MemoryStatsStore: estatísticas
//   - ThrottleStore: token bucket por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
package infra
