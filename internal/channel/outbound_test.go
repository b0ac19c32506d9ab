package channel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func testPolicy() OutboundPolicy {
	return OutboundPolicy{
		RetryMax:       3,
		Backoff:        time.Millisecond,
		BackoffMax:     4 * time.Millisecond,
		AttemptTimeout: time.Second,
		Deadline:       5 * time.Second,
	}
}

func TestRetryStateBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	state := NewRetryState(OutboundPolicy{RetryMax: 10, Backoff: 100 * time.Millisecond, BackoffMax: 350 * time.Millisecond, Deadline: time.Minute}, time.Now())
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		state.Begin()
		if got := state.Backoff(); got != w {
			t.Fatalf("attempt %d: backoff = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetryStateNext(t *testing.T) {
	t.Parallel()

	now := time.Now()
	transient := TransientError("loop", 503, "server error", nil)
	permanent := PermanentError("loop", 400, "client error", nil)

	state := NewRetryState(testPolicy(), now)
	state.Begin()
	if _, ok := state.Next(permanent, now); ok {
		t.Fatalf("permanent errors must not be retried")
	}
	if _, ok := state.Next(errors.New("plain"), now); ok {
		t.Fatalf("untyped errors must not be retried by the state machine")
	}
	if wait, ok := state.Next(transient, now); !ok || wait != time.Millisecond {
		t.Fatalf("expected retry after 1ms, got (%v, %v)", wait, ok)
	}
	state.Begin()
	state.Begin()
	if _, ok := state.Next(transient, now); ok {
		t.Fatalf("expected attempts to be exhausted at RetryMax")
	}

	late := NewRetryState(testPolicy(), now)
	late.Begin()
	if _, ok := late.Next(transient, late.Deadline()); ok {
		t.Fatalf("expected deadline to stop retries")
	}
}

func TestSendWithRetryRetriesTransientUntilMax(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	_, err := SendWithRetry(context.Background(), "loop", testPolicy(), nil, nil, func(ctx context.Context, attempt int) (DeliveryReceipt, error) {
		calls.Add(1)
		return DeliveryReceipt{}, TransientError("loop", 500, "server error", nil)
	})
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	ae, ok := AsAdapterError(err)
	if !ok {
		t.Fatalf("expected AdapterError, got %v", err)
	}
	if ae.Kind != KindTransient || !ae.Exhausted || ae.Retryable() || ae.Attempts != 3 {
		t.Fatalf("unexpected final error: %+v", ae)
	}
}

func TestSendWithRetryNeverRetriesPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	_, err := SendWithRetry(context.Background(), "loop", testPolicy(), nil, nil, func(ctx context.Context, attempt int) (DeliveryReceipt, error) {
		calls.Add(1)
		return DeliveryReceipt{}, PermanentError("loop", 400, "client error", nil)
	})
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestSendWithRetryRecovers(t *testing.T) {
	t.Parallel()

	receipt, err := SendWithRetry(context.Background(), "loop", testPolicy(), nil, nil, func(ctx context.Context, attempt int) (DeliveryReceipt, error) {
		if attempt < 2 {
			return DeliveryReceipt{}, TransientError("loop", 502, "server error", nil)
		}
		return DeliveryReceipt{MessageID: "out-1"}, nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if receipt.Attempts != 2 || receipt.MessageID != "out-1" || receipt.Provider != "loop" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestSendWithRetryWrapsUntypedErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	_, err := SendWithRetry(context.Background(), "loop", testPolicy(), nil, nil, func(ctx context.Context, attempt int) (DeliveryReceipt, error) {
		calls.Add(1)
		return DeliveryReceipt{}, context.DeadlineExceeded
	})
	if calls.Load() != 3 || !IsTransient(err) {
		t.Fatalf("expected untyped failure treated as transient, got %d calls, %v", calls.Load(), err)
	}

	calls.Store(0)
	_, err = SendWithRetry(context.Background(), "loop", testPolicy(), nil, nil, func(ctx context.Context, attempt int) (DeliveryReceipt, error) {
		calls.Add(1)
		return DeliveryReceipt{}, ErrInvalidMessage
	})
	if calls.Load() != 1 || !IsPermanent(err) {
		t.Fatalf("expected invalid message to be permanent, got %d calls, %v", calls.Load(), err)
	}
}

func TestSendWithRetryHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := testPolicy()
	policy.Backoff = time.Hour
	policy.BackoffMax = time.Hour
	policy.Deadline = 2 * time.Hour
	done := make(chan error, 1)
	go func() {
		_, err := SendWithRetry(ctx, "loop", policy, nil, nil, func(ctx context.Context, attempt int) (DeliveryReceipt, error) {
			return DeliveryReceipt{}, TransientError("loop", 503, "server error", nil)
		})
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !IsTransient(err) {
			t.Fatalf("expected transient error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("send did not stop after cancellation")
	}
}

func TestAdapterErrorMessageOmitsCause(t *testing.T) {
	t.Parallel()

	err := PermanentError("loop", 401, "client error", errors.New("Authorization: sk-live-123"))
	err.Code = "110"
	msg := err.Error()
	if msg != "loop send failed: permanent: client error (status 401, code 110)" {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestTruncateText(t *testing.T) {
	t.Parallel()

	if got := TruncateText("hello", 10); got != "hello" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := TruncateText("héllo wörld", 6); got != "héllo…" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := TruncateText("abc", 0); got != "abc" {
		t.Fatalf("unexpected: %q", got)
	}
}
