// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	kerrors "github.com/jllopis/kairos-orchestrator/pkg/errors"
)

func fastRetry() RetryConfig {
	return DefaultRetryConfig().WithInitialDelay(time.Millisecond)
}

func TestRetrySuccess(t *testing.T) {
	attempts := 0
	err := fastRetry().Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	err := fastRetry().WithMaxAttempts(2).Do(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("always fails")
	})
	if err == nil {
		t.Errorf("expected error after max attempts")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryNonRecoverableKairosError(t *testing.T) {
	attempts := 0
	_, err := Retry(context.Background(), fastRetry(), func(context.Context) (string, error) {
		attempts++
		return "", kerrors.New(kerrors.CodeInvalidInput, "bad request", nil)
	})
	if !kerrors.Is(err, kerrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryRecoverableKairosError(t *testing.T) {
	attempts := 0
	value, err := Retry(context.Background(), fastRetry(), func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, kerrors.New(kerrors.CodeTransport, "503", nil).WithRecoverable(true)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 42 || attempts != 2 {
		t.Fatalf("expected 42 after 2 attempts, got %d after %d", value, attempts)
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := DefaultRetryConfig().WithInitialDelay(200 * time.Millisecond)

	attempts := 0
	err := cfg.Do(ctx, func(context.Context) error {
		attempts++
		cancel()
		return errors.New("transient error")
	})
	if !kerrors.Is(err, kerrors.CodeContextLost) {
		t.Fatalf("expected CONTEXT_LOST, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestCallWithTimeout(t *testing.T) {
	value, err := CallWithTimeout(context.Background(), 50*time.Millisecond, func(context.Context) (string, error) {
		return "fast", nil
	})
	if err != nil || value != "fast" {
		t.Fatalf("expected fast result, got %q, %v", value, err)
	}

	_, err = CallWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !kerrors.Is(err, kerrors.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestCallWithTimeoutDisabled(t *testing.T) {
	value, err := CallWithTimeout(context.Background(), 0, func(ctx context.Context) (int, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline when timeout is disabled")
		}
		return 7, nil
	})
	if err != nil || value != 7 {
		t.Fatalf("unexpected result %d, %v", value, err)
	}
}

func TestWithFallback(t *testing.T) {
	value, err := WithFallback(context.Background(), func(context.Context) (string, error) {
		return "", errors.New("provider down")
	}, Static("placeholder"))
	if err != nil || value != "placeholder" {
		t.Fatalf("expected fallback value, got %q, %v", value, err)
	}

	value, err = WithFallback(context.Background(), func(context.Context) (string, error) {
		return "primary", nil
	}, Static("placeholder"))
	if err != nil || value != "primary" {
		t.Fatalf("expected primary value, got %q, %v", value, err)
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute, Name: "search"})
	now := time.Now()
	cb.now = func() time.Time { return now }

	fail := func(context.Context) (int, error) { return 0, errors.New("boom") }
	ok := func(context.Context) (int, error) { return 1, nil }

	for i := 0; i < 2; i++ {
		if _, err := Execute(context.Background(), cb, fail); err == nil {
			t.Fatal("expected failure")
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	calls := 0
	_, err := Execute(context.Background(), cb, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if !kerrors.Is(err, kerrors.CodeTransport) || calls != 0 {
		t.Fatalf("expected rejection while open, err=%v calls=%d", err, calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := Execute(context.Background(), cb, ok); err != nil {
		t.Fatalf("expected probe to succeed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after probe, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Second})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_, _ = Execute(context.Background(), cb, func(context.Context) (int, error) { return 0, errors.New("x") })
	now = now.Add(2 * time.Second)
	_, _ = Execute(context.Background(), cb, func(context.Context) (int, error) { return 0, errors.New("y") })
	if cb.State() != StateOpen {
		t.Fatalf("expected open after failed probe, got %s", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after reset, got %s", cb.State())
	}
}
