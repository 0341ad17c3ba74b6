// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisWindow: janela deslizante (sorted set + script Lua) no Redis compartilhado
//   - LocalEstimator: contador local por ciclo fixo, usado em modo degradado
//   - StoreBreaker: circuito CLOSED/OPEN/HALF_OPEN na frente do Redis (golang.org/x/time/rate)
//   - PrometheusStats, RedisStatsStore, MemoryStatsStore, AsyncStats: métricas
//   - SemaphorePool: semáforo para limite de concorrência (golang.org/x/sync/semaphore)
package infra
