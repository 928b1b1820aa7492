package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRetrying builds a retrying engine that records waits instead of sleeping.
func newTestRetrying(inner Engine, policy RetryPolicy) (*retrying, *[]time.Duration) {
	policy.Logger = quietLogger()
	r := Retrying(inner, policy).(*retrying)
	var waits []time.Duration
	r.rand = func() float64 { return 1 }
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

// failing returns an engine that fails n times with err, then answers "ok".
func failing(n int, err error) *Scripted {
	calls := 0
	return NewScripted(func(string, GenerateOptions) (string, error) {
		calls++
		if calls <= n {
			return "", err
		}
		return "ok", nil
	})
}

// TestRetrying tests retry behavior per error kind.
func TestRetrying(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BackoffBase: time.Second, BackoffCap: 5 * time.Second}

	tests := []struct {
		name      string
		inner     *Scripted
		wantText  string
		wantErr   []error
		wantCalls int
		wantWaits int
	}{
		{
			name:      "success first try",
			inner:     failing(0, nil),
			wantText:  "ok",
			wantCalls: 1,
		},
		{
			name:      "transient then success",
			inner:     failing(2, transientError(errBoom)),
			wantText:  "ok",
			wantCalls: 3,
			wantWaits: 2,
		},
		{
			name:      "config error not retried",
			inner:     failing(10, configError("bad key")),
			wantErr:   []error{ErrConfig},
			wantCalls: 1,
		},
		{
			name:      "unclassified error not retried",
			inner:     failing(10, errBoom),
			wantErr:   []error{errBoom},
			wantCalls: 1,
		},
		{
			name:      "budget exhausted",
			inner:     failing(10, transientError(errBoom)),
			wantErr:   []error{ErrExhausted, ErrTransient, errBoom},
			wantCalls: 5,
			wantWaits: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, waits := newTestRetrying(tt.inner, policy)

			text, err := r.Generate(context.Background(), "prompt", GenerateOptions{})
			if len(tt.wantErr) > 0 {
				require.Error(t, err)
				for _, want := range tt.wantErr {
					assert.ErrorIs(t, err, want)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantText, text)
			}
			assert.Equal(t, tt.wantCalls, tt.inner.CallCount())
			assert.Len(t, *waits, tt.wantWaits)
		})
	}
}

// TestRetrying_CanceledDuringBackoff tests that cancellation stops retries.
func TestRetrying_CanceledDuringBackoff(t *testing.T) {
	inner := failing(10, transientError(errBoom))
	r, _ := newTestRetrying(inner, DefaultRetryPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := r.Generate(ctx, "prompt", GenerateOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.CallCount())
}

// TestRetryPolicy_Wait tests the backoff window growth and cap.
func TestRetryPolicy_Wait(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BackoffBase: time.Second, BackoffCap: 5 * time.Second}
	upperBound := func() float64 { return 1 }
	lowerBound := func() float64 { return 0 }

	assert.Equal(t, 2*time.Second, p.wait(1, upperBound))
	assert.Equal(t, 4*time.Second, p.wait(2, upperBound))
	assert.Equal(t, 5*time.Second, p.wait(3, upperBound))
	assert.Equal(t, 5*time.Second, p.wait(10, upperBound))

	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, time.Second, p.wait(attempt, lowerBound))
	}
}

// TestRetryPolicy_Validate tests policy validation.
func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"default", DefaultRetryPolicy(), false},
		{"single attempt", RetryPolicy{MaxAttempts: 1}, false},
		{"zero attempts", RetryPolicy{}, true},
		{"negative base", RetryPolicy{MaxAttempts: 1, BackoffBase: -time.Second}, true},
		{"cap below base", RetryPolicy{MaxAttempts: 1, BackoffBase: 2 * time.Second, BackoffCap: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Panics(t, func() { Retrying(NewScripted(nil), RetryPolicy{}) })
}

// TestIsRetryable tests error classification.
func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", transientError(errBoom), true},
		{"config", configError("x"), false},
		{"plain", errBoom, false},
		{"canceled", context.Canceled, false},
		{"transient wrapping deadline", transientError(context.DeadlineExceeded), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
