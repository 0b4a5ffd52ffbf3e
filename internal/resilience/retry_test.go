package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{MaxAttempts: 3, Backoff: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{MaxAttempts: 2}, func(context.Context) error {
		calls++
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want wrapped errTest", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_SingleAttemptByDefault(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return errTest
	})
	if err != errTest {
		t.Fatalf("err = %v, want unwrapped errTest for a single attempt", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_PermanentStops(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{MaxAttempts: 5}, func(context.Context) error {
		calls++
		return Permanent(errTest)
	})
	if !errors.Is(err, errTest) || !IsPermanent(err) {
		t.Fatalf("err = %v, want permanent errTest", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_PerAttemptTimeout(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{MaxAttempts: 2, Timeout: 10 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (deadline of one attempt is retryable)", calls)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, Policy{MaxAttempts: 3, Backoff: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errTest
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryValue(t *testing.T) {
	calls := 0
	v, err := RetryValue(context.Background(), Policy{MaxAttempts: 2}, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errTest
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{Backoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{2, 100 * time.Millisecond},
		{3, 200 * time.Millisecond},
		{4, 300 * time.Millisecond},
		{9, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.delay(tt.n); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
	if (Policy{}).delay(3) != 0 {
		t.Error("zero backoff should not wait")
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
