package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:8081")
	t.Setenv("STORE_TIMEOUT", "100ms")
	t.Setenv("DEGRADED_FACTOR", "0.25")
	t.Setenv("TRUST_XFF", "true")

	cfg, err := loadConfig(newViper())
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, 100*time.Millisecond, cfg.StoreTimeout)
	require.Equal(t, 0.25, cfg.DegradedFactor)
	require.True(t, cfg.TrustXFF)
	require.Equal(t, 5*time.Second, cfg.ProbeInterval)
	require.Equal(t, 5*time.Second, cfg.JitterMax)
	require.Equal(t, "X-Route-Class", cfg.RouteClassHeader)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing upstream":  {},
		"relative upstream": {"UPSTREAM_URL": "localhost:8081"},
		"bad log level":     {"UPSTREAM_URL": "http://u", "LOG_LEVEL": "chatty"},
		"zero timeout":      {"UPSTREAM_URL": "http://u", "STORE_TIMEOUT": "0s"},
		"factor above one":  {"UPSTREAM_URL": "http://u", "DEGRADED_FACTOR": "1.5"},
		"negative db":       {"UPSTREAM_URL": "http://u", "REDIS_DB": "-1"},
		"negative jitter":   {"UPSTREAM_URL": "http://u", "JITTER_MAX": "-1s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := loadConfig(newViper())
			require.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upstream_url: http://upstream:9000\njitter_max: 2s\n"), 0o600))
	t.Setenv("JITTER_MAX", "3s")

	v := newViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	require.Equal(t, "http://upstream:9000", cfg.UpstreamURL)
	require.Equal(t, 3*time.Second, cfg.JitterMax)
}

func TestConfig_QuotaTable(t *testing.T) {
	table, err := config{}.quotaTable()
	require.NoError(t, err)
	require.Equal(t, 60, table.Lookup(domain.ClassPublic).Limit)

	_, err = config{QuotaFile: filepath.Join(t.TempDir(), "nope.yaml")}.quotaTable()
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}
