package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/cv-matcher/internal/logger"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
)

// CallOptions bounds a single logical model call.
type CallOptions struct {
	// Timeout applies to every attempt separately.
	Timeout time.Duration
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// Limiter throttles attempts when set.
	Limiter *rate.Limiter
	// Retryable classifies provider errors. IsTemporary is used when nil.
	Retryable func(error) bool
	// NewBackOff overrides the exponential policy between attempts.
	NewBackOff func() backoff.BackOff
	Logger     *zap.Logger
}

// NewLimiter returns a limiter allowing requestsPerMinute calls, or nil for no limit.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

// Call runs fn with a per-attempt timeout, retrying retryable failures with backoff.
// Expiry of the attempt timeout is retryable; cancellation of ctx is not.
func Call[T any](ctx context.Context, opts CallOptions, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	retries := opts.MaxRetries
	if retries < 0 {
		retries = defaultMaxRetries
	}

	retryable := opts.Retryable
	if retryable == nil {
		retryable = IsTemporary
	}

	var policy backoff.BackOff
	if opts.NewBackOff != nil {
		policy = opts.NewBackOff()
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = time.Second
		exp.MaxElapsedTime = 0
		policy = exp
	}
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)

	log := logger.OrNop(opts.Logger)
	attempt := 0

	operation := func() (T, error) {
		attempt++
		var zero T

		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return zero, backoff.Permanent(fmt.Errorf("%s: waiting for rate limiter: %w", name, err))
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := fn(attemptCtx)
		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return zero, backoff.Permanent(fmt.Errorf("%s: %w", name, ctx.Err()))
		}

		if !retryable(err) {
			return zero, backoff.Permanent(fmt.Errorf("%s: %w", name, err))
		}

		return zero, fmt.Errorf("%s: %w", name, err)
	}

	notify := func(err error, wait time.Duration) {
		log.Warn("model call failed, retrying",
			zap.String("call", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	return backoff.RetryNotifyWithData(operation, policy, notify)
}

// IsTemporary reports whether err is worth another attempt: attempt timeouts,
// network timeouts and errors exposing a retryable HTTP status.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return false
}

// RetryableStatus reports whether an HTTP status code signals a transient failure.
func RetryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
