package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()

	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy)
	rdb, err := infra.NewRedisClient(infra.RedisConfig{Addr: redisAddr})
	if err != nil {
		log.WithError(err).Fatal("redis config")
	}
	defer func() { _ = rdb.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	breaker := infra.NewStoreBreaker(infra.DefaultProbeInterval)
	if err := infra.PingWithRetry(ctx, rdb, 3, 200*time.Millisecond, log); err != nil {
		breaker.Failure(time.Now())
	}

	estimator := infra.NewLocalEstimator()
	estimator.StartJanitor(ctx)
	stats := infra.NewMemoryStatsStore()

	gate := application.Gate{
		Quotas:     domain.DefaultQuotaTable(),
		Accountant: infra.NewRedisWindow(rdb),
		Estimator:  estimator,
		Breaker:    breaker,
		Stats:      stats,
		Log:        log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		t := stats.Total()
		log.WithFields(logrus.Fields{"allowed": t.Allowed, "denied": t.Denied, "degraded": t.Degraded}).Info("stats")
		w.WriteHeader(http.StatusNoContent)
	})

	h := http.Handler(mux)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Gate:               gate,
		KeyHeader:          "X-Api-Key", // ou vazio para usar IP
		ClassHeader:        "X-Route-Class",
		TrustXForwardedFor: true,
		Log:                log,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("example server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server error")
	}
}
