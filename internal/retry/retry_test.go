package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	attempts, err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDo_RetryableExhaustsAllAttempts(t *testing.T) {
	calls := 0
	attempts, err := fastPolicy(2).Do(context.Background(), func(context.Context) error {
		calls++
		return MarkRetryable(errors.New("rate limited"))
	})

	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Fatalf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	// MaxRetries=2 means exactly MaxRetries+1 attempts
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts reported, got %d", attempts)
	}
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	permanent := errors.New("bad input")
	attempts, err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt reported, got %d", attempts)
	}
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	attempts, err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return MarkRetryable(errors.New("transient"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := Policy{MaxRetries: 5, BaseDelay: 1 * time.Hour}
	done := make(chan error, 1)
	go func() {
		_, err := p.Do(ctx, func(context.Context) error {
			return MarkRetryable(errors.New("transient"))
		})
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestDo_CustomClassifier(t *testing.T) {
	calls := 0
	p := fastPolicy(2)
	p.Classify = func(err error) bool {
		return err.Error() == "flaky"
	}

	_, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("flaky")
	})

	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Fatalf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestMarkRetryable_NilPassthrough(t *testing.T) {
	if MarkRetryable(nil) != nil {
		t.Error("expected nil for nil input")
	}
}

func TestIsRetryable_WrappedDeep(t *testing.T) {
	inner := MarkRetryable(errors.New("boom"))
	wrapped := errors.Join(errors.New("outer"), inner)

	if !IsRetryable(wrapped) {
		t.Error("expected wrapped retryable error to be detected")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("expected plain error to be non-retryable")
	}
}

func TestPolicy_DelayWithinJitterBand(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second}

	for attempt := 1; attempt <= 5; attempt++ {
		base := 100 * time.Millisecond
		for i := 1; i < attempt; i++ {
			base *= 2
		}
		for i := 0; i < 50; i++ {
			d := p.delay(attempt)
			lo := base + time.Duration(float64(base)*0.10)
			hi := base + time.Duration(float64(base)*0.20)
			if d < lo || d > hi {
				t.Fatalf("attempt %d: delay %v outside jitter band [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestPolicy_DelayCappedAtMax(t *testing.T) {
	p := Policy{BaseDelay: 1 * time.Second, MaxDelay: 2 * time.Second}

	d := p.delay(10)
	// Capped base 2s plus at most 20% jitter
	if d > 2*time.Second+400*time.Millisecond {
		t.Errorf("delay %v exceeds cap plus jitter", d)
	}
}
