package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	mr      *miniredis.Miniredis
	clock   *clockwork.FakeClock
	breaker *infra.StoreBreaker
	stats   *infra.MemoryStatsStore
	handler http.Handler
	calls   int
}

func newGatewayFixture(t *testing.T, quotas map[domain.RouteClass]domain.Quota) *gatewayFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	table, err := domain.NewQuotaTable(quotas)
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	f := &gatewayFixture{
		mr:      mr,
		clock:   clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		breaker: infra.NewStoreBreaker(5 * time.Second),
		stats:   infra.NewMemoryStatsStore(),
	}
	maxJitter := func(max time.Duration) time.Duration { return max }
	gate := application.Gate{
		Quotas:       table,
		Accountant:   infra.NewRedisWindow(rdb, infra.WithJitter(5*time.Second, maxJitter)),
		Estimator:    infra.NewLocalEstimator(infra.WithEstimatorJitter(5*time.Second, maxJitter)),
		Breaker:      f.breaker,
		Stats:        f.stats,
		Clock:        f.clock,
		StoreTimeout: 200 * time.Millisecond,
		Log:          log,
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls++
		w.WriteHeader(http.StatusOK)
	})
	f.handler = Middleware(Options{
		Gate:        gate,
		KeyHeader:   "X-Client-Id",
		ClassHeader: "X-Route-Class",
		Log:         log,
	})(next)
	return f
}

func (f *gatewayFixture) do(client, class string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set("X-Client-Id", client)
	if class != "" {
		r.Header.Set("X-Route-Class", class)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func TestMiddleware_RejectsPastQuotaAndRecoversAfterWindow(t *testing.T) {
	f := newGatewayFixture(t, map[domain.RouteClass]domain.Quota{
		domain.ClassPublic: {Limit: 3, Window: 60 * time.Second},
	})

	for i, want := range []string{"2", "1", "0"} {
		w := f.do("A", "PUBLIC")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		require.Equal(t, "3", w.Header().Get(HeaderLimit))
		require.Equal(t, want, w.Header().Get(HeaderRemaining))
		require.Empty(t, w.Header().Get(HeaderDegraded))
	}

	w := f.do("A", "PUBLIC")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get(HeaderRemaining))
	secs, err := strconv.Atoi(w.Header().Get(HeaderRetryAfter))
	require.NoError(t, err)
	require.GreaterOrEqual(t, secs, 60)
	require.LessOrEqual(t, secs, 65)
	require.Equal(t, 3, f.calls)

	// outro cliente tem janela própria
	require.Equal(t, http.StatusOK, f.do("B", "PUBLIC").Code)

	f.clock.Advance(60 * time.Second)
	w = f.do("A", "PUBLIC")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "2", w.Header().Get(HeaderRemaining))

	require.Equal(t, int64(1), f.stats.ByClass()[domain.ClassPublic].Denied)
}

func TestMiddleware_UnknownClassUsesPublicQuota(t *testing.T) {
	f := newGatewayFixture(t, map[domain.RouteClass]domain.Quota{
		domain.ClassPublic: {Limit: 2, Window: time.Minute},
		domain.ClassUser:   {Limit: 100, Window: time.Minute},
	})

	w := f.do("A", "ADMIN")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "2", w.Header().Get(HeaderLimit))

	w = f.do("A", "user")
	require.Equal(t, "100", w.Header().Get(HeaderLimit))
}

func TestMiddleware_StoreDownFallsBackToReducedLimit(t *testing.T) {
	f := newGatewayFixture(t, map[domain.RouteClass]domain.Quota{
		domain.ClassPublic: {Limit: 3, Window: time.Minute},
		domain.ClassUser:   {Limit: 10, Window: time.Minute},
	})

	require.Equal(t, http.StatusOK, f.do("A", "USER").Code)

	f.mr.Close()

	w := f.do("A", "USER")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "true", w.Header().Get(HeaderDegraded))
	require.Equal(t, "5", w.Header().Get(HeaderLimit))
	require.Equal(t, domain.BreakerOpen, f.breaker.State())

	// o orçamento local é independente do que já foi contado no Redis
	for i := 0; i < 4; i++ {
		require.Equal(t, http.StatusOK, f.do("A", "USER").Code)
	}
	w = f.do("A", "USER")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "true", w.Header().Get(HeaderDegraded))
	require.NotEmpty(t, w.Header().Get(HeaderRetryAfter))

	require.Equal(t, int64(6), f.stats.Total().Degraded)
}

type stubGate struct {
	dec domain.Decision
	err error
}

func (s stubGate) Evaluate(context.Context, domain.Request) (domain.Decision, error) {
	return s.dec, s.err
}

func TestMiddleware_RetryAfterRoundsUp(t *testing.T) {
	dec := domain.Decision{Limit: 1, Remaining: -1, RetryAfter: 2500 * time.Millisecond}
	h := Middleware(Options{Gate: stubGate{
		dec: dec,
		err: &domain.QuotaExceededError{Class: domain.ClassPublic, RetryAfter: dec.RetryAfter, Decision: dec},
	}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next must not be called")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "3", w.Header().Get(HeaderRetryAfter))
}

func TestMiddleware_UnexpectedErrorForwards(t *testing.T) {
	log, hook := test.NewNullLogger()
	called := false
	h := Middleware(Options{
		Gate: stubGate{err: errors.New("boom")},
		Log:  log,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, called)
	require.Len(t, hook.AllEntries(), 1)
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestMiddleware_CancelledRequestIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	h := Middleware(Options{Gate: stubGate{err: context.Canceled}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	require.False(t, called)
	require.Empty(t, w.Header().Get(HeaderLimit))
}

func TestMiddleware_NilGatePassesThrough(t *testing.T) {
	called := false
	h := Middleware(Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, called)
}
