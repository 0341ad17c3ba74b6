package infra

import (
	"context"
	"math"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// DefaultDegradedFactor reduz a quota de cada instância pela metade: sem visibilidade
// entre instâncias, cada uma aplica o limite sozinha.
const DefaultDegradedFactor = 0.5

// LocalEstimator é o limitador de fallback (domain.Estimator): um contador por
// ClientKey que zera em ciclos fixos de relógio de parede com a duração da janela.
// Nada é persistido; um restart zera tudo.
type LocalEstimator struct {
	mu           sync.Mutex
	entries      map[domain.ClientKey]*localEntry
	factor       float64
	jitterMax    time.Duration
	jitter       JitterFunc
	cleanupEvery time.Duration
}

type localEntry struct {
	cycle  int64
	window time.Duration
	count  int
}

type EstimatorOption func(*LocalEstimator)

// WithDegradedFactor aceita valores em (0, 1]; fora disso mantém o padrão.
func WithDegradedFactor(f float64) EstimatorOption {
	return func(e *LocalEstimator) {
		if f > 0 && f <= 1 {
			e.factor = f
		}
	}
}

func WithEstimatorJitter(max time.Duration, fn JitterFunc) EstimatorOption {
	return func(e *LocalEstimator) {
		e.jitterMax = max
		if fn != nil {
			e.jitter = fn
		}
	}
}

func WithCleanupEvery(d time.Duration) EstimatorOption {
	return func(e *LocalEstimator) { e.cleanupEvery = d }
}

func NewLocalEstimator(opts ...EstimatorOption) *LocalEstimator {
	e := &LocalEstimator{
		entries:      make(map[domain.ClientKey]*localEntry),
		factor:       DefaultDegradedFactor,
		jitterMax:    5 * time.Second,
		jitter:       UniformJitter,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReducedLimit é floor(limit * factor), nunca abaixo de 1 para que o modo
// degradado não vire um bloqueio total de quotas pequenas.
func ReducedLimit(limit int, factor float64) int {
	r := int(math.Floor(float64(limit) * factor))
	if r < 1 {
		return 1
	}
	return r
}

func (e *LocalEstimator) ReducedLimit(limit int) int { return ReducedLimit(limit, e.factor) }

// Admit implementa domain.Estimator. Toda decisão sai com Degraded=true.
func (e *LocalEstimator) Admit(key domain.ClientKey, q domain.Quota, now time.Time) domain.Decision {
	limit := e.ReducedLimit(q.Limit)
	cycle := now.UnixNano() / int64(q.Window)
	resetAt := time.Unix(0, (cycle+1)*int64(q.Window))

	e.mu.Lock()
	ent, ok := e.entries[key]
	if !ok || ent.cycle != cycle || ent.window != q.Window {
		ent = &localEntry{cycle: cycle, window: q.Window}
		e.entries[key] = ent
	}
	count := ent.count
	admitted := count < limit
	if admitted {
		ent.count++
	}
	e.mu.Unlock()

	dec := domain.Decision{
		Allowed:   admitted,
		Remaining: limit - (count + 1),
		Limit:     limit,
		ResetAt:   resetAt,
		Degraded:  true,
		Occupancy: count,
		Class:     key.Class,
	}
	if admitted {
		dec.Occupancy = count + 1
		return dec
	}
	dec.RetryAfter = retryAfter(q.Window, e.jitterMax, e.jitter)
	return dec
}

// Len retorna quantas chaves estão em memória.
func (e *LocalEstimator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Cleanup remove contadores de ciclos já encerrados.
func (e *LocalEstimator) Cleanup(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for k, ent := range e.entries {
		if now.UnixNano()/int64(ent.window) != ent.cycle {
			delete(e.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa contadores expirados periodicamente.
// Pare cancelando o contexto.
func (e *LocalEstimator) StartJanitor(ctx context.Context) {
	if e.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(e.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				e.Cleanup(now)
			}
		}
	}()
}
