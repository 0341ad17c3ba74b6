package infra

import (
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// DefaultProbeInterval é o intervalo entre sondas ao Redis com o circuito aberto.
const DefaultProbeInterval = 5 * time.Second

// StoreBreaker implementa domain.Breaker.
//
//	CLOSED    -> OPEN      na primeira falha
//	OPEN      -> HALF_OPEN quando o limiter de sondas libera (1 a cada ProbeInterval)
//	HALF_OPEN -> CLOSED    se a sonda der certo
//	HALF_OPEN -> OPEN      se a sonda falhar
//
// Em HALF_OPEN só a sonda consulta o store; o resto segue degradado.
type StoreBreaker struct {
	mu            sync.Mutex
	state         domain.BreakerState
	probeInterval time.Duration
	probes        *rate.Limiter
}

func NewStoreBreaker(probeInterval time.Duration) *StoreBreaker {
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}
	return &StoreBreaker{
		state:         domain.BreakerClosed,
		probeInterval: probeInterval,
	}
}

func (b *StoreBreaker) ProbeInterval() time.Duration { return b.probeInterval }

func (b *StoreBreaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.BreakerClosed:
		return true
	case domain.BreakerOpen:
		if b.probes.AllowN(now, 1) {
			b.state = domain.BreakerHalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// Success só fecha o circuito a partir da sonda; respostas atrasadas de
// chamadas anteriores à abertura não contam.
func (b *StoreBreaker) Success(time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != domain.BreakerHalfOpen {
		return false
	}
	b.state = domain.BreakerClosed
	b.probes = nil
	return true
}

func (b *StoreBreaker) Failure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == domain.BreakerOpen {
		return false
	}
	b.state = domain.BreakerOpen
	// consome o token inicial: a primeira sonda só sai depois de um intervalo inteiro
	b.probes = rate.NewLimiter(rate.Every(b.probeInterval), 1)
	b.probes.AllowN(now, 1)
	return true
}

func (b *StoreBreaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
