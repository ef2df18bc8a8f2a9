package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func TestDelaySchedule(t *testing.T) {
	p := DefaultPolicy()
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	got := p.Schedule()
	if len(got) != len(want) {
		t.Fatalf("Schedule() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Schedule()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if d := p.Delay(10); d != 8*time.Second {
		t.Errorf("Delay(10) = %v, want cap 8s", d)
	}
	if d := p.Delay(0); d != 0 {
		t.Errorf("Delay(0) = %v, want 0", d)
	}
}

func TestDoRetriesTransient(t *testing.T) {
	var waits []time.Duration
	r := Retrier{
		Policy:    DefaultPolicy(),
		Retryable: func(err error) bool { return errors.Is(err, errFlaky) },
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 || len(waits) != 2 || waits[1] != time.Second {
		t.Errorf("calls = %d, waits = %v", calls, waits)
	}
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	r := Retrier{
		Policy:    Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2},
		Retryable: func(error) bool { return true },
		Sleep:     func(context.Context, time.Duration) error { return nil },
	}
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) || calls != 3 {
		t.Errorf("err = %v, calls = %d, want flaky after 3", err, calls)
	}
}

func TestDoPermanentErrorNotRetried(t *testing.T) {
	permanent := errors.New("bad request")
	r := Retrier{
		Policy:    DefaultPolicy(),
		Retryable: func(err error) bool { return errors.Is(err, errFlaky) },
		Sleep:     func(context.Context, time.Duration) error { t.Fatal("should not sleep"); return nil },
	}
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	if err != permanent || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Retrier{
		Policy:    DefaultPolicy(),
		Retryable: func(error) bool { return true },
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}
