package infra

import (
	"context"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout time.Duration
	// IOTimeout limita leitura/escrita de cada comando.
	IOTimeout time.Duration
	PoolSize  int

	ConnectAttempts int
	ConnectBackoff  time.Duration
}

// NewRedisClient cria o pool compartilhado. Retries de comando ficam desligados:
// uma admissão que falha vai direto para o modo degradado.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: redis address is required", domain.ErrInvalidConfig)
	}
	if cfg.DB < 0 {
		return nil, fmt.Errorf("%w: redis db must be >= 0", domain.ErrInvalidConfig)
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.IOTimeout,
		WriteTimeout: cfg.IOTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   -1,
	}), nil
}

// PingWithRetry tenta estabelecer a conexão com backoff exponencial limitado.
func PingWithRetry(ctx context.Context, rdb *redis.Client, attempts int, backoff time.Duration, log logrus.FieldLogger) error {
	if attempts <= 0 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return nil
		}
		log.WithError(err).WithField("attempt", attempt).Warn("redis ping failed")
		if attempt == attempts {
			break
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff = min(backoff*2, 5*time.Second)
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
