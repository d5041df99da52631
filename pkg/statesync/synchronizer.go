// Package statesync brings a browsing context into the state a scenario
// expects before it runs: an authenticated account and an empty favorites
// list. It also verifies post-action state through the convergence poller.
package statesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/locator"
	"github.com/entrhq/uisync/pkg/logging"
	"github.com/entrhq/uisync/pkg/poll"
	"github.com/entrhq/uisync/pkg/session"
)

// Defaults for Config fields left at zero.
const (
	DefaultIndicatorTimeout = 5 * time.Second
	DefaultCleanupTimeout   = 10 * time.Second
	DefaultRemoveInterval   = 150 * time.Millisecond
	DefaultRemoveBurst      = 3
	indicatorInterval       = 250 * time.Millisecond
)

// Config tunes a Synchronizer.
type Config struct {
	// Indicators are OR-ed: any one present means logged in.
	Indicators  locator.Chain
	Credentials Credentials

	// HomeURL is visited after applying a restored snapshot when the page
	// has not navigated anywhere yet.
	HomeURL string

	IndicatorTimeout time.Duration
	CleanupTimeout   time.Duration

	// RemoveInterval and RemoveBurst pace removals during cleanup.
	RemoveInterval time.Duration
	RemoveBurst    int

	// PollOptions are passed to every convergence loop (tests inject a clock).
	PollOptions []poll.Option
}

func (c *Config) defaults() {
	if c.IndicatorTimeout <= 0 {
		c.IndicatorTimeout = DefaultIndicatorTimeout
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = DefaultCleanupTimeout
	}
	if c.RemoveInterval <= 0 {
		c.RemoveInterval = DefaultRemoveInterval
	}
	if c.RemoveBurst <= 0 {
		c.RemoveBurst = DefaultRemoveBurst
	}
}

// Synchronizer owns the authentication state machine of one context.
type Synchronizer struct {
	cache  *session.Cache
	auth   Authenticator
	cfg    Config
	logger *logging.Logger

	mu    sync.Mutex
	state State
}

// New returns a synchronizer. cache may be nil to always log in.
func New(cache *session.Cache, auth Authenticator, cfg Config, logger *logging.Logger) *Synchronizer {
	cfg.defaults()
	return &Synchronizer{cache: cache, auth: auth, cfg: cfg, logger: logger}
}

// State returns the current authentication state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Synchronizer) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.logger.Debugf("auth state %s -> %s", prev, st)
	}
}

// EnsureAuthenticated makes sure page is logged in. It is a no-op when any
// logged-in indicator is already present. Otherwise it tries the cached
// snapshot and finally the login form. A failed login returns an error
// wrapping ErrCannotProceed; it is never retried.
func (s *Synchronizer) EnsureAuthenticated(ctx context.Context, page driver.Page) error {
	s.setState(StateUnknown)

	ok, err := s.cfg.Indicators.Any(ctx, page)
	if err != nil {
		s.logger.Debugf("logged-in check failed: %v", err)
	}
	s.setState(StateChecked)
	if ok {
		s.setState(StateAuthenticated)
		s.logger.Infof("already logged in")
		return nil
	}

	if s.restore(ctx, page) {
		s.setState(StateAuthenticated)
		return nil
	}

	return s.login(ctx, page)
}

func (s *Synchronizer) restore(ctx context.Context, page driver.Page) bool {
	if s.cache == nil {
		return false
	}
	snap, ok := s.cache.Restore(ctx)
	if !ok {
		return false
	}

	if err := s.cache.Apply(ctx, snap, page.Context()); err != nil {
		s.logger.Warnf("could not apply cached session: %v", err)
		return false
	}
	if err := s.revisit(ctx, page); err != nil {
		s.logger.Warnf("could not reload after applying cached session: %v", err)
		return false
	}
	if !s.loggedIn(ctx, page) {
		s.logger.Infof("cached session was not accepted, falling back to login")
		return false
	}

	s.logger.Infof("restored session captured at %s", snap.CapturedAt().Format(time.RFC3339))
	return true
}

// revisit makes the page load again so cookies and init scripts take effect.
func (s *Synchronizer) revisit(ctx context.Context, page driver.Page) error {
	u := page.URL()
	if (u == "" || u == "about:blank") && s.cfg.HomeURL != "" {
		return page.Navigate(ctx, s.cfg.HomeURL)
	}
	return page.Reload(ctx)
}

func (s *Synchronizer) login(ctx context.Context, page driver.Page) error {
	if s.auth == nil {
		s.setState(StateFailed)
		return fmt.Errorf("%w: no authenticator configured", ErrCannotProceed)
	}
	if s.cfg.Credentials.Username == "" || s.cfg.Credentials.Password == "" {
		s.setState(StateFailed)
		return fmt.Errorf("%w: credentials are not configured", ErrCannotProceed)
	}

	s.setState(StateLoginInFlight)
	s.logger.Infof("logging in as %s", s.cfg.Credentials.Username)

	res, err := s.auth.Login(ctx, page, s.cfg.Credentials)
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("%w: %w", ErrCannotProceed, err)
	}

	switch res.Outcome {
	case LoginSucceeded:
	case LoginRejected:
		s.setState(StateFailed)
		return fmt.Errorf("%w: login rejected: %s", ErrCannotProceed, res.Message)
	default:
		s.setState(StateFailed)
		return fmt.Errorf("%w: login outcome indeterminate", ErrCannotProceed)
	}

	if !s.loggedIn(ctx, page) {
		s.setState(StateFailed)
		return fmt.Errorf("%w: no logged-in indicator after login (%v)", ErrCannotProceed, s.cfg.Indicators.Names())
	}

	s.setState(StateAuthenticated)
	s.persist(ctx, page)
	return nil
}

// persist saves a fresh snapshot. Failures only degrade the next run to a
// full login, so they are logged and dropped.
func (s *Synchronizer) persist(ctx context.Context, page driver.Page) {
	if s.cache == nil {
		return
	}
	snap, err := s.cache.Capture(ctx, page)
	if err != nil {
		s.logger.Warnf("could not capture session: %v", err)
		return
	}
	if err := s.cache.Persist(ctx, snap); err != nil {
		s.logger.Warnf("could not persist session: %v", err)
	}
}

func (s *Synchronizer) loggedIn(ctx context.Context, page driver.Page) bool {
	opts := append([]poll.Option{poll.WithInterval(indicatorInterval)}, s.cfg.PollOptions...)
	err := poll.Until(ctx, func(ctx context.Context) (bool, error) {
		return s.cfg.Indicators.Any(ctx, page)
	}, s.cfg.IndicatorTimeout, opts...)
	return err == nil
}

// ResetSharedState clears the account's favorites before a scenario that
// depends on an empty list. Removals are issued once per entry by ID, then
// the live count is polled until it reaches zero. Not reaching zero is
// reported in the CleanupReport and logged as a warning; only failing to
// read the list at all returns an error.
func (s *Synchronizer) ResetSharedState(ctx context.Context, board FavoritesBoard) (CleanupReport, error) {
	var report CleanupReport

	if err := board.Refresh(ctx); err != nil {
		return report, fmt.Errorf("failed to open favorites: %w", err)
	}
	entries, err := board.Entries(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list favorites: %w", err)
	}
	report.Found = len(entries)
	if len(entries) == 0 {
		report.Converged = true
		return report, nil
	}
	s.logger.Infof("clearing %d favorites", len(entries))

	limiter := rate.NewLimiter(rate.Every(s.cfg.RemoveInterval), s.cfg.RemoveBurst)
	for _, e := range entries {
		if err := limiter.Wait(ctx); err != nil {
			s.logger.Warnf("cleanup interrupted: %v", err)
			break
		}
		outcome, err := board.Remove(ctx, e)
		report.Issued++
		switch {
		case err != nil:
			report.Failed++
			s.logger.Warnf("could not remove favorite %q: %v", e.Title, err)
		case outcome == NotFound:
			report.NotFound++
		}
	}

	err = poll.Until(ctx, poll.Equal(board.Count, 0), s.cfg.CleanupTimeout, s.cfg.PollOptions...)
	if err == nil {
		report.Converged = true
		return report, nil
	}

	if n, cerr := board.Count(ctx); cerr == nil {
		report.Remaining = n
	} else {
		report.Remaining = -1
	}
	s.logger.Warnf("favorites not fully cleared: %v", err)
	return report, nil
}

// VerifyCount waits until the board shows want entries.
func (s *Synchronizer) VerifyCount(ctx context.Context, board FavoritesBoard, want int, timeout time.Duration) error {
	if err := poll.Until(ctx, poll.Equal(board.Count, want), timeout, s.cfg.PollOptions...); err != nil {
		return fmt.Errorf("favorites count: %w", err)
	}
	return nil
}

// VerifyAbsent refreshes the board until no entry matches title.
func (s *Synchronizer) VerifyAbsent(ctx context.Context, board FavoritesBoard, title string, timeout time.Duration) error {
	err := poll.Until(ctx, func(ctx context.Context) (bool, error) {
		if err := board.Refresh(ctx); err != nil {
			return false, err
		}
		entries, err := board.Entries(ctx)
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			if TitleMatches(e.Title, title) {
				return false, fmt.Errorf("favorite %q still listed", title)
			}
		}
		return true, nil
	}, timeout, s.cfg.PollOptions...)
	if err != nil {
		return fmt.Errorf("verify absent: %w", err)
	}
	return nil
}

// VerifyPresent waits until every title is listed.
func (s *Synchronizer) VerifyPresent(ctx context.Context, board FavoritesBoard, titles []string, timeout time.Duration) error {
	err := poll.Until(ctx, func(ctx context.Context) (bool, error) {
		entries, err := board.Entries(ctx)
		if err != nil {
			return false, err
		}
		var missing []string
		for _, want := range titles {
			found := false
			for _, e := range entries {
				if TitleMatches(e.Title, want) {
					found = true
					break
				}
			}
			if !found {
				missing = append(missing, want)
			}
		}
		if len(missing) > 0 {
			return false, fmt.Errorf("favorites missing %q", missing)
		}
		return true, nil
	}, timeout, s.cfg.PollOptions...)
	if err != nil {
		return fmt.Errorf("verify present: %w", err)
	}
	return nil
}

// IsCannotProceed reports whether err is an authentication failure.
func IsCannotProceed(err error) bool { return errors.Is(err, ErrCannotProceed) }
