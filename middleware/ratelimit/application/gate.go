package application

import (
	"context"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// DefaultStoreTimeout limita o round trip ao store compartilhado.
const DefaultStoreTimeout = 250 * time.Millisecond

var (
	errCircuitOpen  = fmt.Errorf("%w: circuit open", domain.ErrStoreUnavailable)
	errNoAccountant = fmt.Errorf("%w: no accountant configured", domain.ErrStoreUnavailable)
)

// Gate orquestra a admissão: quota -> store compartilhado -> fallback local -> métricas.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Os campos são lidos a cada chamada e não devem ser alterados depois que o
// Gate passa a receber tráfego.
type Gate struct {
	Quotas     domain.QuotaTable
	Accountant domain.Accountant
	Estimator  domain.Estimator
	// Breaker nil significa consultar o store sempre.
	Breaker domain.Breaker
	Stats   domain.StatsStore

	Clock        clockwork.Clock
	StoreTimeout time.Duration
	Log          logrus.FieldLogger
}

type storeResult struct {
	dec domain.Decision
	err error
}

func (g Gate) Evaluate(ctx context.Context, req domain.Request) (domain.Decision, error) {
	if g.Clock == nil {
		g.Clock = clockwork.NewRealClock()
	}
	if g.Log == nil {
		g.Log = logrus.StandardLogger()
	}
	if g.StoreTimeout <= 0 {
		g.StoreTimeout = DefaultStoreTimeout
	}

	class := req.Class
	if !class.Known() {
		class = domain.ClassPublic
	}
	quota := g.Quotas.Lookup(class)
	key := domain.ClientKey{Class: class, Client: req.ClientID}
	now := g.Clock.Now()

	dec, err := g.admitShared(ctx, key, quota, now)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Decision{}, ctxErr
		}
		dec = g.admitDegraded(key, quota, now)
	}
	dec.Class = class

	g.record(ctx, key, dec, now)

	if !dec.Allowed {
		g.Log.WithFields(logrus.Fields{
			"route_class": class,
			"client":      key.Client,
			"degraded":    dec.Degraded,
		}).Debug("admission: quota exceeded")
		return dec, &domain.QuotaExceededError{Class: class, RetryAfter: dec.RetryAfter, Decision: dec}
	}
	return dec, nil
}

// admitShared roda o round trip em uma goroutine própria: se o request de
// entrada for cancelado, a chamada ao store termina mesmo assim (o contador
// compartilhado fica correto) e o resultado é descartado.
func (g Gate) admitShared(ctx context.Context, key domain.ClientKey, q domain.Quota, now time.Time) (domain.Decision, error) {
	if g.Accountant == nil {
		return domain.Decision{}, errNoAccountant
	}
	if g.Breaker != nil && !g.Breaker.Allow(now) {
		return domain.Decision{}, errCircuitOpen
	}

	done := make(chan storeResult, 1)
	go func() {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.StoreTimeout)
		defer cancel()

		dec, err := g.Accountant.Admit(storeCtx, key, q, now)
		g.reportStore(key, err)
		done <- storeResult{dec: dec, err: err}
	}()

	select {
	case r := <-done:
		return r.dec, r.err
	case <-ctx.Done():
		return domain.Decision{}, ctx.Err()
	}
}

func (g Gate) reportStore(key domain.ClientKey, err error) {
	at := g.Clock.Now()
	if err == nil {
		if g.Breaker != nil && g.Breaker.Success(at) {
			g.Log.Info("admission: shared store recovered, leaving degraded mode")
		}
		return
	}

	entry := g.Log.WithError(err).WithField("client_key", key.String())
	if g.Breaker == nil || g.Breaker.Failure(at) {
		entry.Warn("admission: shared store unavailable, using degraded local limits")
		return
	}
	entry.Debug("admission: shared store probe failed")
}

func (g Gate) admitDegraded(key domain.ClientKey, q domain.Quota, now time.Time) domain.Decision {
	if g.Estimator == nil {
		return domain.Decision{
			Allowed:   true,
			Remaining: q.Limit,
			Limit:     q.Limit,
			ResetAt:   now.Add(q.Window),
			Degraded:  true,
		}
	}
	dec := g.Estimator.Admit(key, q, now)
	dec.Degraded = true
	return dec
}

// record é best-effort: erro do sink nunca muda a decisão.
func (g Gate) record(ctx context.Context, key domain.ClientKey, dec domain.Decision, at time.Time) {
	if g.Stats == nil {
		return
	}
	if err := g.Stats.Record(context.WithoutCancel(ctx), domain.StatsEvent{
		Key:       key,
		Class:     key.Class,
		Allowed:   dec.Allowed,
		Degraded:  dec.Degraded,
		Occupancy: dec.Occupancy,
		At:        at,
	}); err != nil {
		g.Log.WithError(err).Debug("admission: stats record failed")
	}
}
