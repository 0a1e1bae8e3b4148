package resilience

import (
	"context"
	"errors"
	"io"
	"syscall"
	"testing"
	"time"
)

func TestRetryerRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	r := Retryer{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return syscall.ECONNRESET
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, expected success after retries", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, expected 3", attempts)
	}
}

func TestRetryerExhaustsBudget(t *testing.T) {
	t.Parallel()

	r := Retryer{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		return io.EOF
	})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Do() = %v, expected io.EOF after exhausting retries", err)
	}
	// One initial attempt plus two retries.
	if attempts != 3 {
		t.Fatalf("attempts = %d, expected 3", attempts)
	}
}

func TestRetryerDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	permanent := errors.New("tool execution failed")
	r := Retryer{MaxRetries: 5, BaseDelay: time.Millisecond}
	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Do() = %v, expected the permanent error", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, expected 1 for a permanent error", attempts)
	}
}

func TestRetryerStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := Retryer{MaxRetries: 10, BaseDelay: 50 * time.Millisecond}
	attempts := 0
	err := r.Do(ctx, func(context.Context) error {
		attempts++
		cancel()
		return io.EOF
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() = %v, expected context.Canceled", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, expected cancellation to stop the sequence", attempts)
	}
}

func TestRetryerCustomClassifier(t *testing.T) {
	t.Parallel()

	flaky := errors.New("flaky")
	r := Retryer{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Classify:   func(err error) bool { return errors.Is(err, flaky) },
	}
	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts == 1 {
			return flaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, expected success", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, expected 2", attempts)
	}
}

func TestTransientClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"circuit open", ErrCircuitOpen, false},
		{"deadline", context.DeadlineExceeded, true},
		{"conn reset", syscall.ECONNRESET, true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"broken pipe", syscall.EPIPE, true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"application error", errors.New("tool rejected input"), false},
	}
	for _, tc := range cases {
		if got := Transient(tc.err); got != tc.transient {
			t.Errorf("Transient(%s) = %v, expected %v", tc.name, got, tc.transient)
		}
	}
}
