package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão de admissão.
//
// Ele é propositalmente "agnóstico de HTTP". Class é o rótulo usado nas
// métricas; Key é opcional e só deve ser persistida com controle de
// cardinalidade.
type StatsEvent struct {
	Key      ClientKey
	Class    RouteClass
	Allowed  bool
	Degraded bool
	// Occupancy é a última contagem observada da janela.
	Occupancy int

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem registrar em Prometheus, Redis, memória, etc.
// O gate trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
