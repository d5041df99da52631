package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// convergesOn returns a check that succeeds on its n-th call and records the
// clock time of every call.
func convergesOn(n int, clock Clock, calls *[]time.Time) Check {
	return func(ctx context.Context) (bool, error) {
		*calls = append(*calls, clock.Now())
		if len(*calls) >= n {
			return true, nil
		}
		return false, fmt.Errorf("attempt %d: count is %d", len(*calls), len(*calls))
	}
}

func TestUntilConvergesImmediately(t *testing.T) {
	clock := NewFakeClock(epoch)
	var calls []time.Time

	err := Until(context.Background(), convergesOn(1, clock, &calls), 0, WithClock(clock))

	require.NoError(t, err)
	assert.Len(t, calls, 1)
}

func TestUntilRunsAtLeastOnce(t *testing.T) {
	clock := NewFakeClock(epoch)
	calls := 0

	err := Until(context.Background(), func(context.Context) (bool, error) {
		calls++
		return false, nil
	}, 0, WithClock(clock), WithInterval(time.Second))

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, ErrNotConverged)
}

func TestUntilSurfacesLastFailure(t *testing.T) {
	clock := NewFakeClock(epoch)
	attempt := 0

	err := Until(context.Background(), func(context.Context) (bool, error) {
		attempt++
		return false, fmt.Errorf("expected 0 favorites, got %d", 4-attempt)
	}, time.Second, WithClock(clock), WithInterval(250*time.Millisecond))

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 4, te.Attempts)
	assert.Contains(t, err.Error(), "expected 0 favorites, got 0")
	assert.NotContains(t, err.Error(), "got 1")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestUntilTreatsErrorsAsNotConverged(t *testing.T) {
	clock := NewFakeClock(epoch)
	attempt := 0
	transient := errors.New("element not attached")

	err := Until(context.Background(), func(context.Context) (bool, error) {
		attempt++
		if attempt < 3 {
			return false, transient
		}
		return true, nil
	}, 10*time.Second, WithClock(clock), WithInterval(100*time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 3, attempt)
}

func TestUntilSpacesAttemptsByInterval(t *testing.T) {
	clock := NewFakeClock(epoch)
	var calls []time.Time

	err := Until(context.Background(), convergesOn(5, clock, &calls), time.Minute,
		WithClock(clock), WithIntervals(100*time.Millisecond, 250*time.Millisecond, time.Second))
	require.NoError(t, err)
	require.Len(t, calls, 5)

	want := []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, time.Second, time.Second}
	for i := 1; i < len(calls); i++ {
		assert.Equal(t, want[i-1], calls[i].Sub(calls[i-1]), "gap before attempt %d", i+1)
	}
}

func TestUntilStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Until(ctx, func(context.Context) (bool, error) {
		attempts++
		cancel()
		return false, errors.New("still loading")
	}, 10*time.Hour, WithInterval(time.Hour))

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "still loading")
}

func TestUntilOnAttemptHook(t *testing.T) {
	clock := NewFakeClock(epoch)
	var seen []int
	var calls []time.Time

	err := Until(context.Background(), convergesOn(3, clock, &calls), time.Minute,
		WithClock(clock), OnAttempt(func(n int, err error) { seen = append(seen, n) }))

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestEqual(t *testing.T) {
	count := 3
	check := Equal(func(context.Context) (int, error) { return count, nil }, 0)

	ok, err := check(context.Background())
	assert.False(t, ok)
	assert.EqualError(t, err, "expected 0, got 3")

	count = 0
	ok, err = check(context.Background())
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestSucceeds(t *testing.T) {
	fail := errors.New("title mismatch")
	ok, err := Succeeds(func(context.Context) error { return fail })(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, fail)
}

// A check converging on call N with fixed interval I succeeds iff T >= N*I.
func TestUntilBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 20).Draw(t, "n")
		intervalMS := rapid.IntRange(1, 500).Draw(t, "interval")
		timeoutMS := rapid.IntRange(0, 12000).Draw(t, "timeout")

		interval := time.Duration(intervalMS) * time.Millisecond
		timeout := time.Duration(timeoutMS) * time.Millisecond

		clock := NewFakeClock(epoch)
		var calls []time.Time
		err := Until(context.Background(), convergesOn(n, clock, &calls), timeout,
			WithClock(clock), WithInterval(interval))

		if timeout >= time.Duration(n)*interval {
			if err != nil {
				t.Fatalf("expected convergence with T=%s N=%d I=%s: %v", timeout, n, interval, err)
			}
		} else {
			if !errors.Is(err, ErrTimeout) {
				t.Fatalf("expected timeout with T=%s N=%d I=%s, got %v", timeout, n, interval, err)
			}
			want := fmt.Sprintf("attempt %d:", len(calls))
			if !strings.Contains(err.Error(), want) {
				t.Fatalf("expected last failure %q in %q", want, err.Error())
			}
		}

		if len(calls) < 1 {
			t.Fatalf("check never invoked")
		}
		for _, c := range calls[1:] {
			if c.Sub(epoch) > timeout {
				t.Fatalf("attempt started at %s after timeout %s", c.Sub(epoch), timeout)
			}
		}
	})
}

// Time spent inside checks and timer wake-ups must not eat into the budget:
// on the wall clock a check converging on call N still succeeds at T = N*I.
func TestUntilRealClockBoundary(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the wall clock")
	}
	const (
		n        = 3
		interval = 50 * time.Millisecond
	)
	clock := RealClock()

	t.Run("converges at T equal to N*I", func(t *testing.T) {
		var calls []time.Time
		slow := func(ctx context.Context) (bool, error) {
			time.Sleep(5 * time.Millisecond)
			return convergesOn(n, clock, &calls)(ctx)
		}

		start := time.Now()
		err := Until(context.Background(), slow, n*interval, WithInterval(interval))
		require.NoError(t, err)
		assert.Len(t, calls, n)
		assert.Less(t, time.Since(start), n*interval+interval, "last attempt must start within the budget")
	})

	t.Run("gives up just below N*I", func(t *testing.T) {
		var calls []time.Time
		err := Until(context.Background(), convergesOn(n, clock, &calls), n*interval-10*time.Millisecond, WithInterval(interval))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Len(t, calls, n-1)
	})
}

func TestUntilSlowChecksKeepSchedule(t *testing.T) {
	clock := NewFakeClock(epoch)
	var calls []time.Time

	// every check takes 30ms of the 100ms interval
	check := func(ctx context.Context) (bool, error) {
		calls = append(calls, clock.Now())
		clock.Advance(30 * time.Millisecond)
		return len(calls) >= 4, nil
	}

	err := Until(context.Background(), check, 400*time.Millisecond, WithClock(clock), WithInterval(100*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, calls, 4)
	for i, c := range calls {
		assert.Equal(t, time.Duration(i)*100*time.Millisecond, c.Sub(epoch), "attempt %d", i+1)
	}
}
