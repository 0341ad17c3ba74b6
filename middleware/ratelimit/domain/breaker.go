package domain

import "time"

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker decide se o store compartilhado deve ser consultado.
//
// Allow retorna false enquanto o circuito está aberto. Quem recebeu true
// deve reportar o resultado com Success ou Failure; Failure retorna true
// quando a chamada abriu o circuito (transição CLOSED/HALF_OPEN -> OPEN).
type Breaker interface {
	Allow(now time.Time) bool
	Success(now time.Time) (closed bool)
	Failure(now time.Time) (opened bool)
	State() BreakerState
}
