// Package retry provides exponential backoff retry for transient failures.
// The blob stores use it to ride out brief object-storage outages when
// uploading voicemail audio.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config controls how many times an operation is attempted and how long
// to wait between attempts.
type Config struct {
	// MaxRetries bounds the retry attempts after the first try
	// (default 3). Zero means a single attempt.
	MaxRetries int

	// InitialBackoff is the wait before the first retry (default 100ms).
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts (default 30s).
	MaxBackoff time.Duration

	// Multiplier scales the wait after every attempt (default 2.0).
	Multiplier float64

	// Jitter spreads the wait by +/- this fraction, 0 through 1
	// (default 0.1).
	Jitter float64

	// IsRetryable classifies errors; nil means DefaultIsRetryable.
	IsRetryable func(error) bool
}

// DefaultConfig returns the defaults used by the blob stores.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
		IsRetryable:    DefaultIsRetryable,
	}
}

var (
	// ErrNotRetryable reports that the operation failed with an error
	// the classifier refused to retry.
	ErrNotRetryable = errors.New("retry: error is not retryable")

	// ErrMaxRetries reports that every attempt failed.
	ErrMaxRetries = errors.New("retry: max retries exceeded")

	// ErrContextCanceled reports that the context ended mid-retry.
	ErrContextCanceled = errors.New("retry: context canceled")
)

func (cfg Config) normalized() Config {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	} else if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = DefaultIsRetryable
	}
	return cfg
}

// wait returns the backoff before retry number attempt (0-based).
func (cfg Config) wait(attempt int) time.Duration {
	d := cfg.InitialBackoff
	for i := 0; i < attempt && d < cfg.MaxBackoff; i++ {
		d = time.Duration(float64(d) * cfg.Multiplier)
	}
	if d > cfg.MaxBackoff {
		d = cfg.MaxBackoff
	}
	if cfg.Jitter > 0 {
		spread := float64(d) * cfg.Jitter
		d = time.Duration(float64(d) + spread*(2*rand.Float64()-1))
	}
	return d
}

// Do runs fn until it succeeds, the attempts run out, the error is
// classified non-retryable, or ctx ends. The returned error is an
// *Error except when ctx was already done before the first attempt.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg = cfg.normalized()

	var last error
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			if last == nil {
				return err
			}
			return &Error{Cause: last, Attempts: attempt, Err: ErrContextCanceled}
		}

		last = fn(ctx)
		attempt++
		if last == nil {
			return nil
		}
		if !cfg.IsRetryable(last) {
			return &Error{Cause: last, Attempts: attempt, Err: ErrNotRetryable}
		}
		if attempt > cfg.MaxRetries {
			return &Error{Cause: last, Attempts: attempt, Err: ErrMaxRetries}
		}

		select {
		case <-ctx.Done():
			return &Error{Cause: last, Attempts: attempt, Err: ErrContextCanceled}
		case <-time.After(cfg.wait(attempt - 1)):
		}
	}
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Error reports why a retried operation gave up.
type Error struct {
	// Cause is the last error fn returned.
	Cause error
	// Attempts is how many times fn ran.
	Attempts int
	// Err is ErrMaxRetries, ErrNotRetryable, or ErrContextCanceled.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retry failed after %d attempts (%s): %s", e.Attempts, e.Err, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target) || errors.Is(e.Cause, target)
}

// DefaultIsRetryable treats errors as transient unless they carry a
// Retryable() false marker. Override with Config.IsRetryable when the
// backend reports error classes.
func DefaultIsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotRetryable) {
		return false
	}
	var marked interface{ Retryable() bool }
	if errors.As(err, &marked) {
		return marked.Retryable()
	}
	return true
}

// MarkNotRetryable tags err so DefaultIsRetryable will not retry it.
func MarkNotRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err}
}

type permanentError struct{ cause error }

func (e *permanentError) Error() string   { return e.cause.Error() }
func (e *permanentError) Unwrap() error   { return e.cause }
func (e *permanentError) Retryable() bool { return false }
