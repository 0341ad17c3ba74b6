// Package application contém os casos de uso (regras de aplicação) para admissão
// de requests e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http nem Redis.
// Ex.: Gate.Evaluate(ctx, req) retorna uma Decision (allow/deny + metadados de quota)
// e um *domain.QuotaExceededError quando o request deve ser rejeitado.
package application
