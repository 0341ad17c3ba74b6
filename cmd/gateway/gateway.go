package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// gateway reúne o que o processo serve: o proxy com admissão e o endpoint de métricas.
type gateway struct {
	handler http.Handler
	metrics http.Handler
	breaker *infra.StoreBreaker
	rdb     *redis.Client
}

func (g *gateway) Close() error { return g.rdb.Close() }

// newGateway monta o pipeline. Goroutines de fundo (janitor, sink assíncrono)
// vivem até ctx ser cancelado.
func newGateway(ctx context.Context, cfg config, log logrus.FieldLogger) (*gateway, error) {
	quotas, err := cfg.quotaTable()
	if err != nil {
		return nil, err
	}

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, invalid("UPSTREAM_URL: %v", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.WithError(err).WithField("path", r.URL.Path).Warn("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	rdb, err := infra.NewRedisClient(infra.RedisConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.RedisDialTimeout,
		IOTimeout:   cfg.RedisIOTimeout,
		PoolSize:    cfg.RedisPoolSize,
	})
	if err != nil {
		return nil, err
	}

	breaker := infra.NewStoreBreaker(cfg.ProbeInterval)
	if err := infra.PingWithRetry(ctx, rdb, cfg.RedisConnectAttempts, cfg.RedisConnectBackoff, log); err != nil {
		// sobe mesmo assim: o circuito começa aberto e as sondas detectam a volta do Redis
		log.WithError(err).Warn("shared store unreachable at startup, starting in degraded mode")
		breaker.Failure(time.Now())
	}

	estimator := infra.NewLocalEstimator(
		infra.WithDegradedFactor(cfg.DegradedFactor),
		infra.WithEstimatorJitter(cfg.JitterMax, nil),
	)
	estimator.StartJanitor(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promStats, err := infra.NewPrometheusStats(reg)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	if err := infra.RegisterBreakerGauge(reg, breaker); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	sinks := infra.MultiStats{promStats}
	if cfg.StatsEnabled {
		async := infra.NewAsyncStats(infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsBucket(cfg.StatsBucket),
			infra.WithStatsTrackKeys(cfg.StatsTrackKeys),
		), cfg.StatsBuffer, log)
		if err := infra.RegisterDroppedStats(reg, "redis", async); err != nil {
			_ = rdb.Close()
			return nil, err
		}
		go async.Run(ctx)
		sinks = append(sinks, async)
	}

	gate := application.Gate{
		Quotas: quotas,
		Accountant: infra.NewRedisWindow(
			rdb,
			infra.WithWindowPrefix(cfg.WindowPrefix),
			infra.WithJitter(cfg.JitterMax, nil),
		),
		Estimator:    estimator,
		Breaker:      breaker,
		Stats:        sinks,
		Clock:        clockwork.NewRealClock(),
		StoreTimeout: cfg.StoreTimeout,
		Log:          log,
	}

	h := http.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.ConcurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.ConcurrencyTimeout,
	})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Gate:               gate,
		KeyHeader:          cfg.ClientIDHeader,
		ClassHeader:        cfg.RouteClassHeader,
		TrustXForwardedFor: cfg.TrustXFF,
		RejectStatus:       http.StatusTooManyRequests,
		Log:                log,
	})(h)

	log.WithFields(logrus.Fields{
		"upstream":      target.String(),
		"classes":       quotas.Classes(),
		"store_timeout": cfg.StoreTimeout,
		"jitter_max":    cfg.JitterMax,
		"probe":         cfg.ProbeInterval,
		"degraded":      cfg.DegradedFactor,
		"concurrency":   cfg.ConcurrencyMax,
		"stats_redis":   cfg.StatsEnabled,
		"breaker":       breaker.State().String(),
		"public_limit":  quotas.Lookup(domain.ClassPublic).Limit,
	}).Info("admission pipeline ready")

	return &gateway{
		handler: h,
		metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		breaker: breaker,
		rdb:     rdb,
	}, nil
}
