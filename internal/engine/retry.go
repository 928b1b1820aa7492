package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// RetryPolicy configures randomized exponential backoff for transient failures.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 5
	MaxAttempts int

	// BackoffBase is the lower bound of the first wait.
	// Default: 1s
	BackoffBase time.Duration

	// BackoffCap is the maximum wait between attempts.
	// Default: 5s
	BackoffCap time.Duration

	// Logger receives one warning per retried attempt. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultRetryPolicy returns the policy used by the CLI: up to 5 attempts,
// waits drawn from an exponentially growing window between 1s and 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BackoffBase: 1 * time.Second,
		BackoffCap:  5 * time.Second,
	}
}

// Validate checks if the retry policy is usable.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return configError("retry: max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BackoffBase < 0 {
		return configError("retry: negative backoff base %s", p.BackoffBase)
	}
	if p.BackoffCap < p.BackoffBase {
		return configError("retry: backoff cap %s below base %s", p.BackoffCap, p.BackoffBase)
	}
	return nil
}

// wait returns the randomized wait before attempt+1.
//
// The window doubles every attempt: [base, min(cap, base*2^attempt)].
func (p RetryPolicy) wait(attempt int, rng func() float64) time.Duration {
	upper := p.BackoffBase
	for i := 1; i < attempt && upper < p.BackoffCap; i++ {
		upper *= 2
	}
	upper = min(upper*2, p.BackoffCap)
	if upper <= p.BackoffBase {
		return p.BackoffBase
	}
	span := float64(upper - p.BackoffBase)
	return p.BackoffBase + time.Duration(rng()*span)
}

type retrying struct {
	inner  Engine
	policy RetryPolicy
	logger *slog.Logger
	rand   func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// Retrying wraps e with policy. Transient errors are retried until the budget
// is spent, then ErrExhausted is returned wrapping the last error.
// Any other error is returned immediately.
//
// An invalid policy panics, since it is a programming error caught at wiring time.
func Retrying(e Engine, policy RetryPolicy) Engine {
	if err := policy.Validate(); err != nil {
		panic(err)
	}
	logger := policy.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{
		inner:  e,
		policy: policy,
		logger: logger,
		rand:   rand.Float64, //nolint:gosec // Jitter does not need a CSPRNG.
		sleep:  sleepCtx,
	}
}

func (r *retrying) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := r.inner.Generate(ctx, prompt, opts)
		if err == nil {
			return text, nil
		}
		if !IsRetryable(err) {
			return "", err
		}
		lastErr = err

		if attempt == r.policy.MaxAttempts {
			break
		}

		d := r.policy.wait(attempt, r.rand)
		r.logger.Warn("engine call failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", d),
			slog.String("error", err.Error()),
		)
		if err := r.sleep(ctx, d); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrExhausted, r.policy.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
