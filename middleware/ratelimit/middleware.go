package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/sirupsen/logrus"
)

type KeyFunc func(r *http.Request) string

type ClassFunc func(r *http.Request) domain.RouteClass

// Evaluator é satisfeito por application.Gate.
type Evaluator interface {
	Evaluate(ctx context.Context, req domain.Request) (domain.Decision, error)
}

type Options struct {
	Gate               Evaluator
	KeyFn              KeyFunc
	KeyHeader          string
	ClassFn            ClassFunc
	ClassHeader        string
	TrustXForwardedFor bool
	RejectStatus       int
	Log                logrus.FieldLogger
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				ip, _, _ := strings.Cut(xff, ",")
				if ip = strings.TrimSpace(ip); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// DefaultClassFunc lê a classe de rota do header; ausente ou desconhecida vira PUBLIC.
func DefaultClassFunc(classHeader string) ClassFunc {
	return func(r *http.Request) domain.RouteClass {
		if classHeader == "" {
			return domain.ClassPublic
		}
		return domain.ParseRouteClass(r.Header.Get(classHeader))
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.ClassFn == nil {
		opts.ClassFn = DefaultClassFunc(opts.ClassHeader)
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	return func(next http.Handler) http.Handler {
		if opts.Gate == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := domain.Request{
				ClientID: opts.KeyFn(r),
				Class:    opts.ClassFn(r),
			}

			dec, err := opts.Gate.Evaluate(r.Context(), req)
			var exceeded *domain.QuotaExceededError
			switch {
			case err == nil:
			case errors.As(err, &exceeded):
				Annotate(w.Header(), exceeded.Decision)
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			case r.Context().Err() != nil:
				// cliente desistiu; não há para quem responder
				return
			default:
				// nenhum erro além de QuotaExceeded pode derrubar um request válido
				opts.Log.WithError(err).Warn("admission: unexpected gate error, forwarding request")
				next.ServeHTTP(w, r)
				return
			}

			Annotate(w.Header(), dec)
			next.ServeHTTP(w, r)
		})
	}
}
