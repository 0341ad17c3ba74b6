package infra

import (
	"math/rand/v2"
	"time"
)

// JitterFunc retorna um valor em [0, max]. Injetável para testes determinísticos.
type JitterFunc func(max time.Duration) time.Duration

// UniformJitter sorteia uniformemente em [0, max].
func UniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max + 1)
}

// retryAfter espalha os retries para que clientes com janelas expirando juntas
// não voltem todos no mesmo instante.
func retryAfter(window, jitterMax time.Duration, jitter JitterFunc) time.Duration {
	if jitterMax <= 0 || jitter == nil {
		return window
	}
	j := jitter(jitterMax)
	if j < 0 {
		j = 0
	}
	if j > jitterMax {
		j = jitterMax
	}
	return window + j
}
