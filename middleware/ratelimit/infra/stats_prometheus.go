package infra

import (
	"context"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "admission"

// PrometheusStats é o sink principal: contador de rejeições e gauge de ocupação
// por classe de rota. Só faz operações em memória, então pode rodar síncrono.
type PrometheusStats struct {
	exceeded  *prometheus.CounterVec
	occupancy *prometheus.GaugeVec
	decisions *prometheus.CounterVec
}

func NewPrometheusStats(reg prometheus.Registerer) (*PrometheusStats, error) {
	s := &PrometheusStats{
		exceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "quota_exceeded_total",
			Help:      "Requests rejected because the route class quota was exhausted.",
		}, []string{"route_class"}),
		occupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "window_occupancy",
			Help:      "Latest observed number of entries in a client window, per route class.",
		}, []string{"route_class"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decisions_total",
			Help:      "Admission decisions by route class, outcome and mode.",
		}, []string{"route_class", "outcome", "mode"}),
	}
	for _, c := range []prometheus.Collector{s.exceeded, s.occupancy, s.decisions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	class := string(ev.Class)

	outcome, mode := "allowed", "shared"
	if !ev.Allowed {
		outcome = "rejected"
		s.exceeded.WithLabelValues(class).Inc()
	}
	if ev.Degraded {
		mode = "degraded"
	}
	s.decisions.WithLabelValues(class, outcome, mode).Inc()
	s.occupancy.WithLabelValues(class).Set(float64(ev.Occupancy))
	return nil
}

// RegisterBreakerGauge expõe o estado do circuito (0 closed, 1 open, 2 half_open).
func RegisterBreakerGauge(reg prometheus.Registerer, b domain.Breaker) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "store_breaker_state",
		Help:      "Shared store circuit state: 0 closed, 1 open, 2 half_open.",
	}, func() float64 { return float64(b.State()) }))
}

// RegisterDroppedStats expõe quantos eventos o AsyncStats descartou.
func RegisterDroppedStats(reg prometheus.Registerer, name string, s *AsyncStats) error {
	return reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "stats_dropped_total",
		Help:        "Stats events dropped because the async sink buffer was full.",
		ConstLabels: prometheus.Labels{"sink": name},
	}, func() float64 { return float64(s.Dropped()) }))
}
