package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/VictoriaMetrics/metrics"
	"github.com/sethvargo/go-retry"
)

var (
	retriesTotal      = metrics.GetOrCreateCounter("dstruct_retries_total")
	casConflictsTotal = metrics.GetOrCreateCounter("dstruct_cas_conflicts_total")
)

// errNotSwapped marks a lost compare and swap inside DoCAS.
var errNotSwapped = errors.New("not swapped")

// RetryPolicy describes how transient failures are retried.
type RetryPolicy struct {
	BaseDelay     time.Duration // first backoff
	MaxDelay      time.Duration // cap of a single backoff
	Deadline      time.Duration // total time spent retrying one operation
	JitterPercent uint64        // random jitter applied to every backoff
}

// DefaultRetryPolicy starts at 2ms, doubles up to 500ms and gives up after 30s.
var DefaultRetryPolicy = RetryPolicy{
	BaseDelay:     2 * time.Millisecond,
	MaxDelay:      500 * time.Millisecond,
	Deadline:      30 * time.Second,
	JitterPercent: 10,
}

// withDefaults replaces zero fields with the defaults.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Deadline <= 0 {
		p.Deadline = DefaultRetryPolicy.Deadline
	}
	return p
}

// backoff builds a fresh backoff. Backoffs are stateful and must not be shared between calls.
func (p RetryPolicy) backoff() retry.Backoff {
	p = p.withDefaults()
	b := retry.NewExponential(p.BaseDelay)
	b = retry.WithCappedDuration(p.MaxDelay, b)
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	return retry.WithMaxDuration(p.Deadline, b)
}

// retryable reports whether Do should try again after err.
// Errors that already exhausted an inner retry budget are not retried again.
func retryable(err error) bool {
	return kv.IsTransient(err) && !errors.Is(err, ErrBackendTransient)
}

// Do calls fn until it succeeds, returns a non transient error or the deadline
// is reached. In the last case the last error is wrapped in ErrBackendTransient.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && retryable(err) {
			retriesTotal.Inc()
			log.Debugf("transient backend error (attempt %d): %v", attempt, err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && retryable(err) {
		log.Warningf("giving up after %d attempts: %v", attempt, err)
		return fmt.Errorf("%w: %d attempts: %w", ErrBackendTransient, attempt, err)
	}
	return err
}

// DoCAS runs a compare and swap loop. fn reads the current state, computes the
// next one and reports whether its swap won. A lost swap is retried with
// backoff until the deadline, after which ErrSwapFailed is returned.
func (p RetryPolicy) DoCAS(ctx context.Context, fn func(ctx context.Context) (swapped bool, err error)) error {
	attempt := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		swapped, err := fn(ctx)
		if err != nil {
			return err
		}
		if !swapped {
			casConflictsTotal.Inc()
			return retry.RetryableError(errNotSwapped)
		}
		return nil
	})
	if errors.Is(err, errNotSwapped) {
		log.Warningf("compare and swap lost %d times in a row", attempt)
		return fmt.Errorf("%w after %d attempts", ErrSwapFailed, attempt)
	}
	return err
}
