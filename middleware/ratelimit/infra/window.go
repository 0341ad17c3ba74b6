package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Poda, contagem e inserção precisam ser uma única operação atômica no servidor;
// com MULTI + leitura no cliente dois requests concorrentes poderiam ler a mesma
// contagem e ambos passarem do limite.
//
// ARGV: window_start_ms, now_ms, limit, ttl_ms, member
// Retorno: {admitido (0|1), contagem antes da decisão}
var slidingWindowScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local count = redis.call("ZCARD", KEYS[1])
if count < tonumber(ARGV[3]) then
  redis.call("ZADD", KEYS[1], ARGV[2], ARGV[5])
  redis.call("PEXPIRE", KEYS[1], ARGV[4])
  return {1, count}
end
return {0, count}
`)

// RedisWindow implementa domain.Accountant com sliding-window log em um sorted set
// por ClientKey. Não guarda estado entre chamadas.
type RedisWindow struct {
	rdb redis.Scripter

	prefix    string
	jitterMax time.Duration
	jitter    JitterFunc
	newMember func() string
}

type WindowOption func(*RedisWindow)

func WithWindowPrefix(prefix string) WindowOption {
	return func(w *RedisWindow) { w.prefix = strings.Trim(prefix, ":") }
}

// WithJitter define o teto do jitter somado ao Retry-After e a fonte aleatória.
// fn nil mantém UniformJitter.
func WithJitter(max time.Duration, fn JitterFunc) WindowOption {
	return func(w *RedisWindow) {
		w.jitterMax = max
		if fn != nil {
			w.jitter = fn
		}
	}
}

func WithMemberFunc(fn func() string) WindowOption {
	return func(w *RedisWindow) { w.newMember = fn }
}

func NewRedisWindow(rdb redis.Scripter, opts ...WindowOption) *RedisWindow {
	w := &RedisWindow{
		rdb:       rdb,
		prefix:    "ratelimit:window",
		jitterMax: 5 * time.Second,
		jitter:    UniformJitter,
		newMember: uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *RedisWindow) Key(key domain.ClientKey) string {
	return w.prefix + ":" + key.String()
}

// Admit implementa domain.Accountant.
func (w *RedisWindow) Admit(ctx context.Context, key domain.ClientKey, q domain.Quota, now time.Time) (domain.Decision, error) {
	windowStart := now.Add(-q.Window)
	ttl := q.Window.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}

	res, err := slidingWindowScript.Run(ctx, w.rdb, []string{w.Key(key)},
		windowStart.UnixMilli(),
		now.UnixMilli(),
		q.Limit,
		ttl,
		w.newMember(),
	).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return domain.Decision{}, fmt.Errorf("%w: unexpected script reply %v", domain.ErrStoreUnavailable, res)
	}

	admitted, count := res[0] == 1, int(res[1])
	dec := domain.Decision{
		Allowed:   admitted,
		Remaining: q.Limit - (count + 1),
		Limit:     q.Limit,
		ResetAt:   now.Add(q.Window),
		Occupancy: count,
		Class:     key.Class,
	}
	if admitted {
		dec.Occupancy = count + 1
		return dec, nil
	}
	dec.RetryAfter = retryAfter(q.Window, w.jitterMax, w.jitter)
	return dec, nil
}
