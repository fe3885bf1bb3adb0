package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

// newTestExecutor records sleeps instead of waiting.
func newTestExecutor(opts Options) (*Executor, *[]time.Duration) {
	var slept []time.Duration
	e := New(opts)
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return e, &slept
}

func TestRun_SucceedsAfterTwoFailures(t *testing.T) {
	e, slept := newTestExecutor(Options{MaxRetries: 3, BaseDelay: 10 * time.Millisecond})

	calls := 0
	err := e.Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("network error")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *slept)
}

func TestRun_AlwaysFailingStopsAtMaxRetries(t *testing.T) {
	e, _ := newTestExecutor(Options{MaxRetries: 3})

	calls := 0
	err := e.Run(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, domainerrors.ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRun_NonRetryableFailsImmediately(t *testing.T) {
	e, slept := newTestExecutor(Options{MaxRetries: 5})
	fatal := errors.New("permission denied")

	calls := 0
	err := e.Run(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestRun_LinearBackoff(t *testing.T) {
	e, slept := newTestExecutor(Options{MaxRetries: 4, BaseDelay: 5 * time.Millisecond, Backoff: Linear})

	_ = e.Run(context.Background(), func(context.Context) error {
		return errors.New("timeout")
	})

	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond}, *slept)
}

func TestRunWith_BackoffOverridesBothWays(t *testing.T) {
	fail := func(context.Context) error { return errors.New("timeout") }
	base := 5 * time.Millisecond

	linear, slept := newTestExecutor(Options{MaxRetries: 3, BaseDelay: base, Backoff: Linear})
	_ = linear.RunWith(context.Background(), fail, Options{Backoff: Exponential})
	assert.Equal(t, []time.Duration{base, 2 * base}, *slept, "exponential over a linear default")

	*slept = nil
	_ = linear.Run(context.Background(), fail)
	assert.Equal(t, []time.Duration{base, base}, *slept, "unset keeps the linear default")

	exponential, slept := newTestExecutor(Options{MaxRetries: 3, BaseDelay: base})
	_ = exponential.RunWith(context.Background(), fail, Options{Backoff: Linear})
	assert.Equal(t, []time.Duration{base, base}, *slept, "linear over an exponential default")
}

func TestRun_OnRetryReceivesAttemptNumbers(t *testing.T) {
	e, _ := newTestExecutor(Options{MaxRetries: 3})

	var attempts []int
	_ = e.RunWith(context.Background(), func(context.Context) error {
		return errors.New("503 service unavailable")
	}, Options{OnRetry: func(_ error, attempt, maxRetries int) {
		assert.Equal(t, 3, maxRetries)
		attempts = append(attempts, attempt)
	}})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRun_CustomPredicate(t *testing.T) {
	e, _ := newTestExecutor(Options{MaxRetries: 3})

	calls := 0
	err := e.RunWith(context.Background(), func(context.Context) error {
		calls++
		return errors.New("anything")
	}, Options{ShouldRetry: func(error) bool { return true }})

	assert.ErrorIs(t, err, domainerrors.ErrRetriesExhausted)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func(context.Context) error {
		calls++
		return errors.New("network unreachable")
	}, Options{MaxRetries: 3, BaseDelay: time.Hour})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestValue_ReturnsResult(t *testing.T) {
	e, _ := newTestExecutor(Options{})

	calls := 0
	got, err := Value(context.Background(), e, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, statusErr(502)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network message", errors.New("Network request failed"), true},
		{"timeout message", errors.New("request timed out"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"5xx in message", errors.New("server responded 500"), true},
		{"4xx in message", errors.New("server responded 404"), false},
		{"status 503", statusErr(503), true},
		{"status 409", statusErr(409), false},
		{"wrapped status", fmt.Errorf("write: %w", statusErr(500)), true},
		{"context canceled", context.Canceled, false},
		{"plain", errors.New("duplicate key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
