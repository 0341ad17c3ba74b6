package domain

// Camada de domínio do controle de admissão.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQuotaExceeded é o único erro que deve chegar ao cliente final.
	ErrQuotaExceeded = errors.New("rate limit exceeded")
	// ErrStoreUnavailable cobre timeout, conexão recusada e erro de protocolo
	// do store compartilhado. É recuperado localmente pelo modo degradado.
	ErrStoreUnavailable = errors.New("shared store unavailable")
	// ErrInvalidConfig é fatal na inicialização.
	ErrInvalidConfig = errors.New("invalid rate limit configuration")
)

// Request é o que o pipeline do gateway entrega para avaliação.
// A identidade do cliente é opaca: este subsistema não autentica.
type Request struct {
	ClientID string
	Class    RouteClass
}

type Decision struct {
	Allowed bool
	// Remaining pode ser negativo em uma rejeição; quem exibe faz o clamp.
	Remaining int
	Limit     int
	ResetAt   time.Time
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
	// Degraded marca decisões tomadas sem o store compartilhado.
	Degraded bool
	// Occupancy é a quantidade de entradas na janela depois da decisão.
	Occupancy int
	Class     RouteClass
}

// Accountant faz o count-and-admit contra o store compartilhado.
// Qualquer falha do store deve ser retornada como erro (nunca como rejeição).
type Accountant interface {
	Admit(ctx context.Context, key ClientKey, q Quota, now time.Time) (Decision, error)
}

// Estimator é o limitador local usado quando o store não responde.
type Estimator interface {
	Admit(key ClientKey, q Quota, now time.Time) Decision
}

// QuotaExceededError carrega a orientação de retry para o pipeline.
type QuotaExceededError struct {
	Class      RouteClass
	RetryAfter time.Duration
	Decision   Decision
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: class=%s retry_after=%s", ErrQuotaExceeded, e.Class, e.RetryAfter)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }
