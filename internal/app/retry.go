package app

import (
	"context"
	crand "crypto/rand"
	"time"

	"github.com/rs/zerolog/log"

	"hostel_booking/internal/adapters/observability"
	"hostel_booking/internal/domain"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 100 * time.Millisecond
)

// withRetry reruns fn from scratch while the storage layer reports a deadlock
// or lock-wait timeout (domain.ErrTxnTransient). Business errors (validation,
// conflict, not-found) propagate on first occurrence. Once the budget is
// spent, the last transient failure surfaces as a ConcurrencyExhaustedError.
func withRetry[T any](ctx context.Context, attempts int, baseDelay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var last error
	for i := 0; i < attempts; i++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !domain.IsTransient(err) {
			return zero, err
		}
		last = err
		if i == attempts-1 {
			break
		}
		observability.ObserveTxRetry()
		log.Warn().Err(err).Int("attempt", i+1).Msg("transient storage failure, retrying")
		if !sleepCtx(ctx, backoff(i, baseDelay)) {
			return zero, ctx.Err()
		}
	}
	return zero, &domain.ConcurrencyExhaustedError{Attempts: attempts, Last: last}
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff returns base * 2^i with up to +50% concurrency-safe jitter so
// transactions that deadlocked against each other don't retry in lockstep.
func backoff(i int, base time.Duration) time.Duration {
	d := base << i
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return d
	}
	f := float64(b[0]) / 255.0
	return d + time.Duration(0.5*f*float64(d))
}
