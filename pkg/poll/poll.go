// Package poll retries a check until it reports convergence or a timeout
// elapses. Checks that fail or return an error count as "not yet converged";
// when time runs out the last observed failure is surfaced to the caller.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("poll: condition not met before timeout")

	// ErrNotConverged is the failure recorded when a check returns false
	// without an error.
	ErrNotConverged = errors.New("condition not met")
)

// DefaultIntervals is the backoff schedule used when no interval option is
// given. The last entry repeats.
var DefaultIntervals = []time.Duration{
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// Check reports whether the observed state has converged. Returning false or
// a non-nil error both mean "try again".
type Check func(ctx context.Context) (bool, error)

// TimeoutError is returned when a check did not converge in time. Its message
// is the last failure's message.
type TimeoutError struct {
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v (not converged after %d attempts in %s)", e.Last, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error { return e.Last }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

type options struct {
	intervals []time.Duration
	clock     Clock
	onAttempt func(attempt int, err error)
}

// Option configures Until.
type Option func(*options)

// WithInterval polls at a fixed interval.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.intervals = []time.Duration{d} }
}

// WithIntervals sets the backoff schedule; the last interval repeats.
func WithIntervals(ds ...time.Duration) Option {
	return func(o *options) {
		if len(ds) > 0 {
			o.intervals = append([]time.Duration(nil), ds...)
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// OnAttempt registers a hook called after every unsuccessful attempt.
func OnAttempt(fn func(attempt int, err error)) Option {
	return func(o *options) { o.onAttempt = fn }
}

// Until invokes check until it converges or timeout elapses.
//
// The check always runs at least once. Attempts follow a fixed schedule
// counted from the first call: attempt k+1 is due one interval after attempt
// k was due, however long the checks themselves take. Attempt k+1 is made
// only when its due time plus that interval still fits the timeout, so with a
// fixed interval I a check that converges on its N-th call succeeds exactly
// when N*I <= timeout. No attempt starts after the timeout. Cancelling ctx
// ends the loop early with the last failure.
func Until(ctx context.Context, check Check, timeout time.Duration, opts ...Option) error {
	o := options{intervals: DefaultIntervals, clock: realClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	start := o.clock.Now()
	deadline := start.Add(timeout)
	due := start

	var last error
	for attempt := 1; ; attempt++ {
		ok, err := check(ctx)
		if ok && err == nil {
			return nil
		}
		if err == nil {
			err = ErrNotConverged
		}
		last = err
		if o.onAttempt != nil {
			o.onAttempt(attempt, err)
		}

		wait := o.interval(attempt)
		due = due.Add(wait)
		if due.Add(wait).After(deadline) {
			return &TimeoutError{Attempts: attempt, Elapsed: o.clock.Now().Sub(start), Last: last}
		}

		sleep := due.Sub(o.clock.Now())
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return &TimeoutError{
				Attempts: attempt,
				Elapsed:  o.clock.Now().Sub(start),
				Last:     fmt.Errorf("%w: %w", last, ctx.Err()),
			}
		case <-o.clock.After(sleep):
		}

		if o.clock.Now().After(deadline) {
			return &TimeoutError{Attempts: attempt, Elapsed: o.clock.Now().Sub(start), Last: last}
		}
	}
}

func (o *options) interval(attempt int) time.Duration {
	i := attempt - 1
	if i >= len(o.intervals) {
		i = len(o.intervals) - 1
	}
	return o.intervals[i]
}

// Equal returns a check that converges when get returns want. The failure
// message records the last observed value.
func Equal[T comparable](get func(ctx context.Context) (T, error), want T) Check {
	return func(ctx context.Context) (bool, error) {
		got, err := get(ctx)
		if err != nil {
			return false, err
		}
		if got != want {
			return false, fmt.Errorf("expected %v, got %v", want, got)
		}
		return true, nil
	}
}

// Succeeds adapts an error-returning assertion into a Check.
func Succeeds(fn func(ctx context.Context) error) Check {
	return func(ctx context.Context) (bool, error) {
		if err := fn(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
}
