// Package poll provides a bounded poll-until-ready loop with an injectable
// clock so callers can test timing behavior without real delays.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimedOut reports that the predicate never held within the attempt budget.
var ErrTimedOut = errors.New("poll: timed out waiting for condition")

// Clock abstracts time for poll loops and retry backoff.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall-clock implementation used outside tests.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits for d unless the context is cancelled first.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy bounds one polling or retry loop.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Condition is one poll attempt. done=true stops the loop successfully.
// A non-nil error is treated as a normal failed attempt, not an abort.
type Condition func(ctx context.Context) (done bool, err error)

// Until runs fn up to policy.MaxAttempts times with policy.Interval between
// attempts. Attempt errors are swallowed and counted; only context
// cancellation or attempt exhaustion ends the loop early. Exhaustion returns
// ErrTimedOut.
func Until(ctx context.Context, clock Clock, policy Policy, fn Condition) error {
	if clock == nil {
		clock = SystemClock{}
	}
	if policy.MaxAttempts < 1 {
		return ErrTimedOut
	}
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, _ := fn(ctx)
		if done {
			return nil
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if err := clock.Sleep(ctx, policy.Interval); err != nil {
			return err
		}
	}
	return ErrTimedOut
}
