// Package ratelimit fornece adapters HTTP (net/http) para controle de admissão e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (Gate: quota -> Redis -> fallback local; acquire/timeout)
//   - infra: implementações concretas (janela deslizante no Redis, estimador local,
//     circuit breaker, métricas Prometheus/Redis, semáforo)
//   - ratelimit (este pacote): middlewares HTTP + extração de cliente/classe +
//     tradução da decisão para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai o cliente (header/XFF/RemoteAddr) e a classe de rota (header)
//  2. Chama o Gate para obter a decisão
//  3. Escreve X-RateLimit-* (e X-RateLimit-Degraded em modo degradado)
//  4. Se bloqueado, responde 429 com Retry-After (rate limit) ou 503 (concorrência)
//  5. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como REDIS_ADDR, STORE_TIMEOUT, QUOTA_FILE, JITTER_MAX e CONCURRENCY_MAX.
package ratelimit
