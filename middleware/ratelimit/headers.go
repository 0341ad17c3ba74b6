package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
	// HeaderDegraded marca respostas decididas sem o store compartilhado.
	HeaderDegraded = "X-RateLimit-Degraded"
)

// Annotate traduz a decisão em headers. Função pura: só escreve em h.
func Annotate(h http.Header, dec domain.Decision) {
	h.Set(HeaderLimit, formatInt(dec.Limit))
	h.Set(HeaderRemaining, formatInt(max(dec.Remaining, 0)))
	if !dec.ResetAt.IsZero() {
		h.Set(HeaderReset, strconv.FormatInt(dec.ResetAt.Unix(), 10))
	}
	if dec.RetryAfter > 0 {
		h.Set(HeaderRetryAfter, formatInt(retryAfterSeconds(dec.RetryAfter)))
	}
	if dec.Degraded {
		h.Set(HeaderDegraded, "true")
	}
}

// arredonda para cima: um cliente que respeita o header nunca volta antes da hora
func retryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func formatInt(v int) string { return strconv.Itoa(v) }
