package gateway

import (
	"context"
	"log/slog"
	"time"
)

const maxContractBackoff = 60 * time.Second

// Policy holds the retry timings.
type Policy struct {
	DefaultTimeout  time.Duration
	QuickTimeout    time.Duration
	MaxTotalTimeout time.Duration
	ContractBackoff time.Duration
}

// DefaultPolicy returns the stock retry timings.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTimeout:  30 * time.Second,
		QuickTimeout:    500 * time.Millisecond,
		MaxTotalTimeout: 120 * time.Second,
		ContractBackoff: time.Second,
	}
}

// Observer receives one duration sample per logical call.
type Observer interface {
	ObserveRPCCall(function, status string, d time.Duration)
}

// Retrier runs calls until success, a permanent error, or the total retry
// budget is spent.
type Retrier struct {
	policy Policy
	log    *slog.Logger
	obs    Observer
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier builds a retrier. A nil observer disables duration samples.
func NewRetrier(policy Policy, log *slog.Logger, obs Observer) *Retrier {
	if log == nil {
		log = slog.Default()
	}
	if policy.ContractBackoff <= 0 {
		policy.ContractBackoff = time.Second
	}
	return &Retrier{
		policy: policy,
		log:    log,
		obs:    obs,
		sleep:  sleepContext,
	}
}

// Call retries action with a constant timeout per error class. Permanent
// errors and the last transient error after the budget is exceeded are
// returned unchanged.
func Call[T any](ctx context.Context, r *Retrier, name string, action func(context.Context) (T, error)) (T, error) {
	var elapsed time.Duration
	for {
		start := time.Now()
		res, err := action(ctx)
		if err == nil {
			r.observe(name, "success", start)
			return res, nil
		}

		class := Classify(err)
		if class == ClassPermanent {
			r.observe(name, "error", start)
			return res, err
		}
		timeout := r.policy.DefaultTimeout
		if class == ClassQuick {
			timeout = r.policy.QuickTimeout
		}
		r.log.Warn("rpc call failed", "function", name, "code", Code(err), "retry_in", timeout, "error", err)

		if elapsed+timeout > r.policy.MaxTotalTimeout {
			r.log.Error("exceeded retries total timeout, failing the request", "function", name, "elapsed", elapsed)
			r.observe(name, "error", start)
			return res, err
		}
		if serr := r.sleep(ctx, timeout); serr != nil {
			r.observe(name, "error", start)
			return res, serr
		}
		elapsed += timeout
	}
}

// CallWithBackoff retries action with an exponential backoff that starts
// at the contract backoff and doubles up to 60s, bounded by the same budget.
func CallWithBackoff[T any](ctx context.Context, r *Retrier, name string, action func(context.Context) (T, error)) (T, error) {
	var elapsed time.Duration
	timeout := r.policy.ContractBackoff
	for {
		start := time.Now()
		res, err := action(ctx)
		if err == nil {
			r.observe(name, "success", start)
			return res, nil
		}
		if IsPermanent(err) {
			r.observe(name, "error", start)
			return res, err
		}
		r.log.Warn("contract call failed", "function", name, "code", Code(err), "retry_in", timeout, "error", err)

		if elapsed+timeout > r.policy.MaxTotalTimeout {
			r.log.Error("exceeded retries total timeout, failing the request", "function", name, "elapsed", elapsed)
			r.observe(name, "error", start)
			return res, err
		}
		if serr := r.sleep(ctx, timeout); serr != nil {
			r.observe(name, "error", start)
			return res, serr
		}
		elapsed += timeout
		timeout = min(timeout*2, maxContractBackoff)
	}
}

func (r *Retrier) observe(name, status string, start time.Time) {
	if r.obs != nil {
		r.obs.ObserveRPCCall(name, status, time.Since(start))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
