package infra

import (
	"context"
	"errors"
	"sync/atomic"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/sirupsen/logrus"
)

// ErrStatsDropped é retornado quando o buffer do AsyncStats está cheio.
var ErrStatsDropped = errors.New("stats event dropped: buffer full")

// AsyncStats tira um sink lento (ex.: Redis) do caminho da decisão.
// Record nunca bloqueia: enfileira ou descarta.
type AsyncStats struct {
	next    domain.StatsStore
	events  chan domain.StatsEvent
	dropped atomic.Int64
	log     logrus.FieldLogger
}

func NewAsyncStats(next domain.StatsStore, buffer int, log logrus.FieldLogger) *AsyncStats {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AsyncStats{
		next:   next,
		events: make(chan domain.StatsEvent, buffer),
		log:    log,
	}
}

func (s *AsyncStats) Record(_ context.Context, ev domain.StatsEvent) error {
	select {
	case s.events <- ev:
		return nil
	default:
		s.dropped.Add(1)
		return ErrStatsDropped
	}
}

func (s *AsyncStats) Dropped() int64 { return s.dropped.Load() }

// Run consome a fila até o ctx encerrar. Erros do sink são só logados.
func (s *AsyncStats) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if err := s.next.Record(ctx, ev); err != nil {
				s.log.WithError(err).Debug("admission stats: sink write failed")
			}
		}
	}
}

// MultiStats repassa o evento para todos os sinks.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
