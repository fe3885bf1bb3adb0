// Package retry runs remote operations with bounded attempts and backoff.
package retry

import (
	"context"
	"errors"
	"net"
	"regexp"
	"time"

	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
)

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	// BackoffUnset leaves the choice to the executor defaults, then Exponential.
	BackoffUnset Backoff = iota
	// Exponential sleeps BaseDelay * 2^attempt.
	Exponential
	// Linear sleeps BaseDelay between every attempt.
	Linear
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Options configures a Run call.
type Options struct {
	// MaxRetries is the total number of invocations, including the first.
	MaxRetries int
	BaseDelay  time.Duration
	Backoff    Backoff
	// ShouldRetry decides whether a failure is worth another attempt. Defaults to IsRetryable.
	ShouldRetry func(error) bool
	// OnRetry is called before sleeping. attempt is 1-based.
	OnRetry func(err error, attempt, maxRetries int)
}

// StatusCoder is implemented by errors that carry an HTTP-like status code.
type StatusCoder interface {
	StatusCode() int
}

// Executor runs operations with a fixed set of defaults.
type Executor struct {
	defaults Options
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates an executor. Zero fields in defaults fall back to package defaults.
func New(defaults Options) *Executor {
	return &Executor{defaults: defaults, sleep: sleepContext}
}

// Run executes op with the executor defaults.
func (e *Executor) Run(ctx context.Context, op func(context.Context) error) error {
	return e.RunWith(ctx, op, Options{})
}

// RunWith executes op, letting non-zero fields of overrides replace the executor defaults.
func (e *Executor) RunWith(ctx context.Context, op func(context.Context) error, overrides Options) error {
	return run(ctx, op, e.merge(overrides), e.sleep)
}

// Do runs op with opts and no executor, using the package defaults for zero fields.
func Do(ctx context.Context, op func(context.Context) error, opts Options) error {
	return run(ctx, op, normalize(opts), sleepContext)
}

// Value runs op through e and returns its result.
func Value[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Run(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (e *Executor) merge(o Options) Options {
	merged := e.defaults
	if o.MaxRetries > 0 {
		merged.MaxRetries = o.MaxRetries
	}
	if o.BaseDelay > 0 {
		merged.BaseDelay = o.BaseDelay
	}
	if o.Backoff != BackoffUnset {
		merged.Backoff = o.Backoff
	}
	if o.ShouldRetry != nil {
		merged.ShouldRetry = o.ShouldRetry
	}
	if o.OnRetry != nil {
		merged.OnRetry = o.OnRetry
	}
	return normalize(merged)
}

func normalize(o Options) Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.Backoff == BackoffUnset {
		o.Backoff = Exponential
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = IsRetryable
	}
	return o
}

func run(ctx context.Context, op func(context.Context) error, o Options, sleep func(context.Context, time.Duration) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if !o.ShouldRetry(err) {
			return err
		}

		if attempt+1 >= o.MaxRetries {
			return domainerrors.Wrapf(err, domainerrors.CodeRetriesExhausted, "retries exhausted after %d attempts", o.MaxRetries)
		}

		if o.OnRetry != nil {
			o.OnRetry(err, attempt+1, o.MaxRetries)
		}

		if err := sleep(ctx, o.delay(attempt)); err != nil {
			return err
		}
	}
}

func (o Options) delay(attempt int) time.Duration {
	if o.Backoff == Linear {
		return o.BaseDelay
	}
	return o.BaseDelay * time.Duration(1<<attempt)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var retryablePattern = regexp.MustCompile(`(?i)network|timeout|timed out|connection refused|connection reset|econnrefused|fetch failed|\b5\d\d\b|service unavailable|bad gateway`)

// IsRetryable is the default predicate: transport failures and 5xx responses retry,
// everything else fails on the first attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode() >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return retryablePattern.MatchString(err.Error())
}
