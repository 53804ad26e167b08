package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastConfig(), func(context.Context) error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastConfig(), func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("exhausts retries", func(t *testing.T) {
		calls := 0
		cause := errors.New("still down")
		err := Do(ctx, fastConfig(), func(context.Context) error {
			calls++
			return cause
		})
		if !errors.Is(err, ErrMaxRetries) {
			t.Errorf("expected ErrMaxRetries, got %v", err)
		}
		if !errors.Is(err, cause) {
			t.Errorf("expected cause preserved, got %v", err)
		}
		if calls != 4 {
			t.Errorf("expected 4 calls, got %d", calls)
		}

		var rerr *Error
		if !errors.As(err, &rerr) {
			t.Fatalf("expected *Error, got %T", err)
		}
		if rerr.Attempts != 4 {
			t.Errorf("expected 4 attempts recorded, got %d", rerr.Attempts)
		}
	})

	t.Run("not retryable stops immediately", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastConfig(), func(context.Context) error {
			calls++
			return MarkNotRetryable(errors.New("bad request"))
		})
		if !errors.Is(err, ErrNotRetryable) {
			t.Errorf("expected ErrNotRetryable, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("custom classifier", func(t *testing.T) {
		cfg := fastConfig()
		cfg.IsRetryable = func(error) bool { return false }
		calls := 0
		err := Do(ctx, cfg, func(context.Context) error {
			calls++
			return errors.New("whatever")
		})
		if !errors.Is(err, ErrNotRetryable) {
			t.Errorf("expected ErrNotRetryable, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err := Do(canceled, fastConfig(), func(context.Context) error {
			return errors.New("unreachable")
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestDoWithResult(t *testing.T) {
	ctx := context.Background()

	calls := 0
	got, err := DoWithResult(ctx, fastConfig(), func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "payload-uri", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "payload-uri" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestDefaultIsRetryable(t *testing.T) {
	if DefaultIsRetryable(nil) {
		t.Error("nil error should not be retryable")
	}
	if !DefaultIsRetryable(errors.New("unknown")) {
		t.Error("unknown errors should be retryable")
	}
	if DefaultIsRetryable(MarkNotRetryable(errors.New("fatal"))) {
		t.Error("marked errors should not be retryable")
	}
}
