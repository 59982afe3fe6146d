package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"syscall"
	"testing"
	"time"
)

type recordingObserver struct {
	samples []string
}

func (o *recordingObserver) ObserveRPCCall(function, status string, _ time.Duration) {
	o.samples = append(o.samples, function+":"+status)
}

func newTestRetrier(policy Policy, obs Observer) (*Retrier, *[]time.Duration) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRetrier(policy, log, obs)
	slept := &[]time.Duration{}
	r.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return r, slept
}

func testPolicy() Policy {
	return Policy{
		DefaultTimeout:  10 * time.Second,
		QuickTimeout:    time.Second,
		MaxTotalTimeout: 25 * time.Second,
		ContractBackoff: time.Second,
	}
}

func TestCallRetriesUntilSuccess(t *testing.T) {
	obs := &recordingObserver{}
	r, slept := newTestRetrier(testPolicy(), obs)

	attempts := 0
	got, err := Call(context.Background(), r, "getBlock", func(context.Context) (int, error) {
		attempts++
		if attempts < 4 {
			return 0, syscall.ECONNRESET
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || attempts != 4 {
		t.Fatalf("got %d after %d attempts", got, attempts)
	}
	if len(*slept) != 3 {
		t.Fatalf("expected 3 backoffs, got %v", *slept)
	}
	for _, d := range *slept {
		if d != time.Second {
			t.Fatalf("expected quick timeout, got %v", d)
		}
	}
	if len(obs.samples) != 1 || obs.samples[0] != "getBlock:success" {
		t.Fatalf("expected a single success sample, got %v", obs.samples)
	}
}

func TestCallStopsWhenBudgetExceeded(t *testing.T) {
	obs := &recordingObserver{}
	r, slept := newTestRetrier(testPolicy(), obs)
	origErr := errors.New("rate limited")

	attempts := 0
	_, err := Call(context.Background(), r, "getLogs", func(context.Context) ([]int, error) {
		attempts++
		return nil, origErr
	})
	if err != origErr {
		t.Fatalf("expected the original error unchanged, got %v", err)
	}
	// 10s + 10s fit in 25s, a third backoff would not.
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(*slept) != 2 || (*slept)[0] != 10*time.Second {
		t.Fatalf("unexpected backoffs %v", *slept)
	}
	if len(obs.samples) != 1 || obs.samples[0] != "getLogs:error" {
		t.Fatalf("expected a single error sample, got %v", obs.samples)
	}
}

func TestCallTimeoutClassSelection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"network", &CodedError{Code: CodeNetworkError, Err: errors.New("x")}, time.Second},
		{"reset", syscall.ECONNRESET, time.Second},
		{"refused", syscall.ECONNREFUSED, time.Second},
		{"timeout", context.DeadlineExceeded, time.Second},
		{"other", errors.New("internal error"), 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, slept := newTestRetrier(testPolicy(), nil)
			first := true
			_, err := Call(context.Background(), r, "call", func(context.Context) (bool, error) {
				if first {
					first = false
					return false, tt.err
				}
				return true, nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(*slept) != 1 || (*slept)[0] != tt.want {
				t.Fatalf("backoffs %v, want [%v]", *slept, tt.want)
			}
		})
	}
}

func TestCallDoesNotRetryPermanent(t *testing.T) {
	r, slept := newTestRetrier(testPolicy(), nil)
	permErr := &ContractError{Code: CodeCallException, Method: "symbol", Err: errors.New("reverted")}

	attempts := 0
	_, err := Call(context.Background(), r, "symbol", func(context.Context) (string, error) {
		attempts++
		return "", permErr
	})
	if err != permErr {
		t.Fatalf("expected permanent error unchanged, got %v", err)
	}
	if attempts != 1 || len(*slept) != 0 {
		t.Fatalf("permanent error retried: attempts=%d backoffs=%v", attempts, *slept)
	}
}

func TestCallWithBackoffDoubles(t *testing.T) {
	policy := testPolicy()
	policy.MaxTotalTimeout = 10 * time.Second
	r, slept := newTestRetrier(policy, nil)
	origErr := errors.New("busy")

	attempts := 0
	_, err := CallWithBackoff(context.Background(), r, "balanceOf", func(context.Context) (int, error) {
		attempts++
		return 0, origErr
	})
	if err != origErr {
		t.Fatalf("expected original error, got %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("backoffs %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("backoffs %v, want %v", *slept, want)
		}
	}
	if attempts != 4 {
		t.Fatalf("attempts = %d, want 4", attempts)
	}
}

func TestCallWithBackoffCapsAtSixtySeconds(t *testing.T) {
	policy := testPolicy()
	policy.MaxTotalTimeout = 10 * time.Minute
	r, slept := newTestRetrier(policy, nil)

	attempts := 0
	_, err := CallWithBackoff(context.Background(), r, "name", func(context.Context) (int, error) {
		attempts++
		if attempts < 10 {
			return 0, errors.New("busy")
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := (*slept)[len(*slept)-1]
	if last != 60*time.Second {
		t.Fatalf("last backoff %v, want 60s (all: %v)", last, *slept)
	}
}

func TestCallStopsOnContextCancel(t *testing.T) {
	r := NewRetrier(testPolicy(), slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call(ctx, r, "getBlock", func(context.Context) (int, error) {
		return 0, errors.New("unavailable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
