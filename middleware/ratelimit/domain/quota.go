package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RouteClass é a classificação grosseira de tráfego que decide qual quota se aplica.
type RouteClass string

const (
	ClassPublic       RouteClass = "PUBLIC"
	ClassUser         RouteClass = "USER"
	ClassProfessional RouteClass = "PROFESSIONAL"
	ClassSystem       RouteClass = "SYSTEM"
)

var knownClasses = map[RouteClass]struct{}{
	ClassPublic:       {},
	ClassUser:         {},
	ClassProfessional: {},
	ClassSystem:       {},
}

// ParseRouteClass normaliza o valor vindo do pipeline.
// Qualquer valor desconhecido (inclusive vazio) vira PUBLIC: tráfego mal
// classificado recebe a quota mais restritiva, nunca uma quota ilimitada.
func ParseRouteClass(s string) RouteClass {
	c := RouteClass(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownClasses[c]; ok {
		return c
	}
	return ClassPublic
}

// Known informa se a classe faz parte do conjunto reconhecido.
func (c RouteClass) Known() bool {
	_, ok := knownClasses[c]
	return ok
}

type Quota struct {
	Limit  int
	Window time.Duration
}

func (q Quota) Valid() bool { return q.Limit > 0 && q.Window > 0 }

// QuotaTable é somente leitura depois de construída.
type QuotaTable struct {
	quotas map[RouteClass]Quota
}

// NewQuotaTable valida e copia as quotas. PUBLIC é obrigatória porque é o
// fallback de Lookup.
func NewQuotaTable(quotas map[RouteClass]Quota) (QuotaTable, error) {
	if _, ok := quotas[ClassPublic]; !ok {
		return QuotaTable{}, fmt.Errorf("%w: quota for %s is required", ErrInvalidConfig, ClassPublic)
	}

	out := make(map[RouteClass]Quota, len(quotas))
	for c, q := range quotas {
		if !c.Known() {
			return QuotaTable{}, fmt.Errorf("%w: unknown route class %q", ErrInvalidConfig, string(c))
		}
		if !q.Valid() {
			return QuotaTable{}, fmt.Errorf("%w: quota for %s must have limit > 0 and window > 0 (got limit=%d window=%s)",
				ErrInvalidConfig, c, q.Limit, q.Window)
		}
		out[c] = q
	}
	return QuotaTable{quotas: out}, nil
}

// DefaultQuotaTable é usada quando nenhum arquivo de quotas é configurado.
func DefaultQuotaTable() QuotaTable {
	t, err := NewQuotaTable(map[RouteClass]Quota{
		ClassPublic:       {Limit: 60, Window: time.Minute},
		ClassUser:         {Limit: 300, Window: time.Minute},
		ClassProfessional: {Limit: 1200, Window: time.Minute},
		ClassSystem:       {Limit: 6000, Window: time.Minute},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup sempre retorna uma quota definida.
func (t QuotaTable) Lookup(c RouteClass) Quota {
	if q, ok := t.quotas[c]; ok {
		return q
	}
	return t.quotas[ClassPublic]
}

func (t QuotaTable) Classes() []RouteClass {
	out := make([]RouteClass, 0, len(t.quotas))
	for c := range t.quotas {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ClientKey particiona o uso de quota: uma janela deslizante por (classe, cliente).
type ClientKey struct {
	Class  RouteClass
	Client string
}

func (k ClientKey) String() string { return string(k.Class) + ":" + k.Client }
