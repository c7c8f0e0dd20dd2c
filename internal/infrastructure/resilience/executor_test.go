package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func retryConfig(attempts int) Config {
	return Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: 2 * time.Second,
		RetryMaxBackoff:     time.Minute,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesWithExponentialBackoff(t *testing.T) {
	rec := &sleepRecorder{}
	exec := NewExecutor(retryConfig(3), WithSleep(rec.sleep))

	attempts := 0
	errTemp := errors.New("rate limited")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, errTemp), RecordFailure: true}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(rec.waits) != 2 || rec.waits[0] != 2*time.Second || rec.waits[1] != 4*time.Second {
		t.Fatalf("unexpected waits: %v", rec.waits)
	}
}

func TestExecuteFixedDelay(t *testing.T) {
	rec := &sleepRecorder{}
	exec := NewExecutor(retryConfig(3), WithSleep(rec.sleep))

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		return errors.New("connection refused")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true, FixedDelay: true}
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if exhausted.Attempts != 3 || Attempts(err) != 3 {
		t.Fatalf("expected 3 attempts, got %d", exhausted.Attempts)
	}
	for _, wait := range rec.waits {
		if wait != 2*time.Second {
			t.Fatalf("expected fixed 2s waits, got %v", rec.waits)
		}
	}
	if len(rec.waits) != 2 {
		t.Fatalf("expected 2 waits, got %d", len(rec.waits))
	}
}

func TestExecuteBackoffIsCapped(t *testing.T) {
	cfg := retryConfig(5)
	cfg.RetryMaxBackoff = 5 * time.Second
	rec := &sleepRecorder{}
	exec := NewExecutor(cfg, WithSleep(rec.sleep))

	_ = exec.Execute(context.Background(), "op", func(context.Context) error {
		return errors.New("busy")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true}
	})

	want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	if len(rec.waits) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), rec.waits)
	}
	for i := range want {
		if rec.waits[i] != want[i] {
			t.Fatalf("wait %d: expected %v, got %v", i, want[i], rec.waits[i])
		}
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	rec := &sleepRecorder{}
	exec := NewExecutor(retryConfig(3), WithSleep(rec.sleep))

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	if len(rec.waits) != 0 {
		t.Fatalf("expected no waits, got %v", rec.waits)
	}
}

func TestExecuteStopsWhenSleepIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := NewExecutor(retryConfig(3), WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	attempts := 0
	err := exec.Execute(ctx, "op", func(context.Context) error {
		attempts++
		return errors.New("retry me")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     time.Millisecond,
		RetryMaxBackoff:         time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatalf("expected IsCircuitOpen to report true")
	}
}
