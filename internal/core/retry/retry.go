// Package retry drives fallible operations with exponential backoff.
//
// Operations report failures as *Error values tagged Transient or Permanent.
// Do is the only place that acts on the tag: transient failures are retried
// after min_delay * factor^(attempt-1), permanent failures stop the loop
// immediately without sleeping.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vietddude/batcher/internal/metrics"
)

const (
	DefaultMinDelay    = 2000 * time.Millisecond
	DefaultFactor      = 2.0
	DefaultMaxAttempts = 3
)

// Policy configures the exponential backoff between attempts.
type Policy struct {
	MinDelay time.Duration `yaml:"min_delay"`
	Factor   float64       `yaml:"factor"`
	// MaxAttempts bounds the total number of calls. Zero or less retries
	// until success, a permanent failure or context cancellation.
	MaxAttempts int `yaml:"max_attempts"`
}

// DefaultPolicy waits 2s then 4s and gives up after the third attempt.
var DefaultPolicy = Policy{
	MinDelay:    DefaultMinDelay,
	Factor:      DefaultFactor,
	MaxAttempts: DefaultMaxAttempts,
}

// Delay returns the sleep that precedes attempt+1, for attempt >= 1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := float64(p.MinDelay) * math.Pow(p.factor(), float64(attempt-1))
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p Policy) factor() float64 {
	if p.Factor <= 0 {
		return 1
	}
	return p.Factor
}

func (p Policy) backOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.MinDelay),
		backoff.WithMultiplier(p.factor()),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(time.Duration(math.MaxInt64)),
		backoff.WithMaxElapsedTime(0),
	)
	if p.MaxAttempts <= 0 {
		return exp
	}
	return backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1))
}

// Operation is one self-contained attempt.
type Operation[T any] func(ctx context.Context) (T, error)

// Timer is the sleep primitive used between attempts.
type Timer = backoff.Timer

type options struct {
	name   string
	notify func(err error, next time.Duration)
	timer  Timer
}

// Option customises a single Do call.
type Option func(*options)

// WithName labels log lines and metrics for the retried operation.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithNotify is called with the failure and the upcoming delay before every sleep.
func WithNotify(fn func(err error, next time.Duration)) Option {
	return func(o *options) { o.notify = fn }
}

// WithTimer replaces the wall-clock timer used for backoff sleeps.
func WithTimer(t Timer) Option {
	return func(o *options) { o.timer = t }
}

// Do calls op until it succeeds, fails permanently, or the attempt budget is
// spent. The returned error is always an *Error: the last classified failure,
// or a permanent wrap of the context error when ctx ends first. Errors that
// op returns without a classification are treated as transient. A panic in
// op is recovered and counted as a transient failure.
func Do[T any](ctx context.Context, p Policy, op Operation[T], opts ...Option) (T, error) {
	o := options{name: "operation"}
	for _, opt := range opts {
		opt(&o)
	}

	attempt := 0
	attemptFn := func() (T, error) {
		attempt++
		v, err := call(ctx, op)
		if err == nil {
			return v, nil
		}
		var classified *Error
		if !errors.As(err, &classified) {
			err = Transient(err)
			classified = err.(*Error)
		}
		if classified.Kind == KindPermanent {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, next time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(o.name, "retry").Inc()
		slog.Debug("Retrying operation",
			"operation", o.name,
			"attempt", attempt,
			"delay", next,
			"error", err,
		)
		if o.notify != nil {
			o.notify(err, next)
		}
	}

	b := backoff.WithContext(p.backOff(), ctx)
	v, err := backoff.RetryNotifyWithTimerAndData(attemptFn, b, notify, o.timer)
	if err == nil {
		metrics.RetryAttemptsTotal.WithLabelValues(o.name, "success").Inc()
		return v, nil
	}

	if _, ok := KindOf(err); !ok {
		// Only the context can produce an unclassified error here.
		err = Permanent(err)
	}
	metrics.RetryAttemptsTotal.WithLabelValues(o.name, "failure").Inc()
	if IsTransient(err) {
		slog.Warn("Retries exhausted", "operation", o.name, "attempts", attempt, "error", err)
	}
	return v, err
}

func call[T any](ctx context.Context, op Operation[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok {
				err = Transient(fmt.Errorf("operation panicked: %w", perr))
			} else {
				err = Transient(fmt.Errorf("operation panicked: %v", r))
			}
		}
	}()
	return op(ctx)
}
