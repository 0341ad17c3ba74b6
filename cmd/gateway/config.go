package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// As chaves são snake_case para que AutomaticEnv case com as variáveis de
// ambiente de sempre (LISTEN_ADDR, UPSTREAM_URL, REDIS_ADDR, ...).
type config struct {
	ListenAddr  string
	UpstreamURL string
	MetricsAddr string
	LogLevel    string

	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	RedisPoolSize        int
	RedisDialTimeout     time.Duration
	RedisIOTimeout       time.Duration
	RedisConnectAttempts int
	RedisConnectBackoff  time.Duration
	WindowPrefix         string

	StoreTimeout     time.Duration
	ClientIDHeader   string
	RouteClassHeader string
	TrustXFF         bool
	QuotaFile        string
	JitterMax        time.Duration
	ProbeInterval    time.Duration
	DegradedFactor   float64

	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration

	StatsEnabled   bool
	StatsPrefix    string
	StatsTTL       time.Duration
	StatsBucket    string
	StatsTrackKeys bool
	StatsBuffer    int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("upstream_url", "")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log_level", "info")

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_pool_size", 0)
	v.SetDefault("redis_dial_timeout", 500*time.Millisecond)
	v.SetDefault("redis_io_timeout", 200*time.Millisecond)
	v.SetDefault("redis_connect_attempts", 3)
	v.SetDefault("redis_connect_backoff", 200*time.Millisecond)
	v.SetDefault("window_prefix", "ratelimit:window")

	v.SetDefault("store_timeout", application.DefaultStoreTimeout)
	v.SetDefault("client_id_header", "")
	v.SetDefault("route_class_header", "X-Route-Class")
	v.SetDefault("trust_xff", false)
	v.SetDefault("quota_file", "")
	v.SetDefault("jitter_max", 5*time.Second)
	v.SetDefault("probe_interval", infra.DefaultProbeInterval)
	v.SetDefault("degraded_factor", infra.DefaultDegradedFactor)

	v.SetDefault("concurrency_max", 100)
	v.SetDefault("concurrency_timeout", time.Duration(0))

	v.SetDefault("rate_stats_enabled", false)
	v.SetDefault("rate_stats_prefix", "ratelimit:stats")
	v.SetDefault("rate_stats_ttl", 24*time.Hour)
	v.SetDefault("rate_stats_bucket", "minute")
	v.SetDefault("rate_stats_track_keys", false)
	v.SetDefault("rate_stats_buffer", 1024)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return v
}

func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		ListenAddr:  v.GetString("listen_addr"),
		UpstreamURL: strings.TrimSpace(v.GetString("upstream_url")),
		MetricsAddr: v.GetString("metrics_addr"),
		LogLevel:    v.GetString("log_level"),

		RedisAddr:            strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:        v.GetString("redis_password"),
		RedisDB:              v.GetInt("redis_db"),
		RedisPoolSize:        v.GetInt("redis_pool_size"),
		RedisDialTimeout:     v.GetDuration("redis_dial_timeout"),
		RedisIOTimeout:       v.GetDuration("redis_io_timeout"),
		RedisConnectAttempts: v.GetInt("redis_connect_attempts"),
		RedisConnectBackoff:  v.GetDuration("redis_connect_backoff"),
		WindowPrefix:         v.GetString("window_prefix"),

		StoreTimeout:     v.GetDuration("store_timeout"),
		ClientIDHeader:   v.GetString("client_id_header"),
		RouteClassHeader: v.GetString("route_class_header"),
		TrustXFF:         v.GetBool("trust_xff"),
		QuotaFile:        strings.TrimSpace(v.GetString("quota_file")),
		JitterMax:        v.GetDuration("jitter_max"),
		ProbeInterval:    v.GetDuration("probe_interval"),
		DegradedFactor:   v.GetFloat64("degraded_factor"),

		ConcurrencyMax:     v.GetInt("concurrency_max"),
		ConcurrencyTimeout: v.GetDuration("concurrency_timeout"),

		StatsEnabled:   v.GetBool("rate_stats_enabled"),
		StatsPrefix:    v.GetString("rate_stats_prefix"),
		StatsTTL:       v.GetDuration("rate_stats_ttl"),
		StatsBucket:    v.GetString("rate_stats_bucket"),
		StatsTrackKeys: v.GetBool("rate_stats_track_keys"),
		StatsBuffer:    v.GetInt("rate_stats_buffer"),
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.UpstreamURL == "" {
		return invalid("UPSTREAM_URL is required")
	}
	if u, err := url.Parse(c.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("UPSTREAM_URL must be an absolute URL, got %q", c.UpstreamURL)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return invalid("LOG_LEVEL: %v", err)
	}
	if c.RedisAddr == "" {
		return invalid("REDIS_ADDR is required")
	}
	if c.RedisDB < 0 {
		return invalid("REDIS_DB must be >= 0")
	}
	if c.StoreTimeout <= 0 {
		return invalid("STORE_TIMEOUT must be > 0")
	}
	if c.JitterMax < 0 {
		return invalid("JITTER_MAX must be >= 0")
	}
	if c.ProbeInterval <= 0 {
		return invalid("PROBE_INTERVAL must be > 0")
	}
	if c.DegradedFactor <= 0 || c.DegradedFactor > 1 {
		return invalid("DEGRADED_FACTOR must be in (0, 1], got %v", c.DegradedFactor)
	}
	if c.ConcurrencyMax < 0 {
		return invalid("CONCURRENCY_MAX must be >= 0")
	}
	if c.StatsEnabled && c.StatsBuffer <= 0 {
		return invalid("RATE_STATS_BUFFER must be > 0 when RATE_STATS_ENABLED=true")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c config) quotaTable() (domain.QuotaTable, error) {
	if c.QuotaFile == "" {
		return domain.DefaultQuotaTable(), nil
	}
	return infra.LoadQuotaTable(c.QuotaFile)
}
