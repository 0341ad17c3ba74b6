package infra

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"gopkg.in/yaml.v3"
)

// Formato do arquivo de quotas:
//
//	quotas:
//	  PUBLIC:       {limit: 60, window: 1m}
//	  USER:         {limit: 300, window: 1m}
type quotaFile struct {
	Quotas map[string]quotaEntry `yaml:"quotas"`
}

type quotaEntry struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

func LoadQuotaTable(path string) (domain.QuotaTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.QuotaTable{}, fmt.Errorf("%w: open quota file: %w", domain.ErrInvalidConfig, err)
	}
	defer f.Close()
	return ParseQuotaTable(f)
}

// ParseQuotaTable é estrito: campos desconhecidos, classes desconhecidas e
// durações inválidas são erro de configuração.
func ParseQuotaTable(r io.Reader) (domain.QuotaTable, error) {
	var qf quotaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&qf); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.QuotaTable{}, fmt.Errorf("%w: quota file is empty", domain.ErrInvalidConfig)
		}
		return domain.QuotaTable{}, fmt.Errorf("%w: decode quota file: %w", domain.ErrInvalidConfig, err)
	}

	quotas := make(map[domain.RouteClass]domain.Quota, len(qf.Quotas))
	for name, e := range qf.Quotas {
		class := domain.RouteClass(strings.ToUpper(strings.TrimSpace(name)))
		window, err := time.ParseDuration(strings.TrimSpace(e.Window))
		if err != nil {
			return domain.QuotaTable{}, fmt.Errorf("%w: window for %s: %w", domain.ErrInvalidConfig, class, err)
		}
		quotas[class] = domain.Quota{Limit: e.Limit, Window: window}
	}
	return domain.NewQuotaTable(quotas)
}

// WriteQuotaTable grava a tabela efetiva no mesmo formato aceito por ParseQuotaTable.
func WriteQuotaTable(w io.Writer, t domain.QuotaTable) error {
	qf := quotaFile{Quotas: make(map[string]quotaEntry)}
	for _, c := range t.Classes() {
		q := t.Lookup(c)
		qf.Quotas[string(c)] = quotaEntry{Limit: q.Limit, Window: q.Window.String()}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(qf); err != nil {
		return err
	}
	return enc.Close()
}
