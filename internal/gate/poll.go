package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// errNotReady marks a check that ran cleanly but whose condition is not met yet.
var errNotReady = errors.New("not ready")

// TimeoutError is returned when a readiness phase does not succeed within its
// timeout.
type TimeoutError struct {
	Phase   string
	Timeout time.Duration
	// LastErr is the last probe failure seen, if any.
	LastErr error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil && !errors.Is(e.LastErr, errNotReady) {
		return fmt.Sprintf("timed out after %s waiting for %s (last error: %v)", e.Timeout, e.Phase, e.LastErr)
	}
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Phase)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// permanent stops pollUntil immediately with err.
func permanent(err error) error {
	return backoff.Permanent(err)
}

// pollUntil runs check every interval until it returns nil, a permanent error,
// or timeout elapses. The wait in progress when the deadline passes is cut
// short, so the call never overruns the timeout by more than one check.
func pollUntil(ctx context.Context, phase string, interval, timeout time.Duration, check func(context.Context) error, notify func(error, int)) error {
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		lastErr  error
		attempts int
	)
	op := func() error {
		attempts++
		err := check(deadline)
		// An attempt cut short by the deadline fails with the kill, not with
		// anything the probe reported.
		if err != nil && deadline.Err() == nil {
			lastErr = err
		}
		return err
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(interval), deadline)
	err := backoff.RetryNotify(op, b, func(err error, _ time.Duration) {
		if notify != nil {
			notify(err, attempts)
		}
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if deadline.Err() != nil {
		return &TimeoutError{Phase: phase, Timeout: timeout, LastErr: lastErr}
	}
	return err
}
