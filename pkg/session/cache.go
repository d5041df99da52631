package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/logging"
)

// Cache captures, persists, restores and applies snapshots.
type Cache struct {
	store     Store
	ttl       time.Duration
	fragments []string
	site      string
	now       func() time.Time
	logger    *logging.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCookieFragments overrides DefaultCookieFragments.
func WithCookieFragments(fragments ...string) Option {
	return func(c *Cache) {
		if len(fragments) > 0 {
			c.fragments = fragments
		}
	}
}

// WithSite restricts captured cookies to the registrable domain of host.
func WithSite(host string) Option {
	return func(c *Cache) { c.site = host }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger for cache misses and writes.
func WithLogger(l *logging.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// NewCache returns a cache backed by store.
func NewCache(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		ttl:       DefaultTTL,
		fragments: DefaultCookieFragments,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Capture reads authentication cookies from the page's context and both
// storage areas of the current document.
func (c *Cache) Capture(ctx context.Context, page driver.Page) (Snapshot, error) {
	cookies, err := page.Context().Cookies(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to capture cookies: %w", err)
	}

	res, err := page.Evaluate(ctx, storageScript, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to capture storage: %w", err)
	}
	local, sess, err := decodeStorage(res)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to capture storage: %w", err)
	}

	snap := Snapshot{
		Cookies:        FilterCookies(cookies, c.fragments, c.site),
		LocalStorage:   local,
		SessionStorage: sess,
		Timestamp:      c.now().UnixMilli(),
	}
	c.logger.Debugf("captured %d of %d cookies, %d local and %d session storage entries",
		len(snap.Cookies), len(cookies), len(local), len(sess))
	return snap, nil
}

// Persist stores snap, replacing any earlier snapshot.
func (c *Cache) Persist(ctx context.Context, snap Snapshot) error {
	if err := c.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	c.logger.Infof("persisted snapshot captured at %s", snap.CapturedAt().Format(time.RFC3339))
	return nil
}

// Restore loads the stored snapshot. It reports false when nothing is stored,
// the payload cannot be read, or the snapshot is older than the TTL; all of
// these are cache misses rather than errors.
func (c *Cache) Restore(ctx context.Context) (Snapshot, bool) {
	snap, err := c.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		c.logger.Debugf("no stored snapshot")
		return Snapshot{}, false
	case err != nil:
		c.logger.Warnf("ignoring unreadable snapshot: %v", err)
		return Snapshot{}, false
	}

	now := c.now()
	if !snap.Valid(now, c.ttl) {
		c.logger.Infof("stored snapshot expired (age %s, ttl %s)", snap.Age(now).Round(time.Second), c.ttl)
		return Snapshot{}, false
	}
	return snap, true
}

// Apply adds the snapshot's cookies to bc and registers an init script that
// seeds local and session storage. It must run before the navigation that
// should see the restored state. Expired snapshots are refused.
func (c *Cache) Apply(ctx context.Context, snap Snapshot, bc driver.Context) error {
	if !snap.Valid(c.now(), c.ttl) {
		return ErrExpired
	}

	if err := bc.AddCookies(ctx, snap.Cookies); err != nil {
		return fmt.Errorf("failed to apply cookies: %w", err)
	}

	if len(snap.LocalStorage) == 0 && len(snap.SessionStorage) == 0 {
		return nil
	}
	script, err := initScript(snap.LocalStorage, snap.SessionStorage)
	if err != nil {
		return err
	}
	if err := bc.AddInitScript(ctx, script); err != nil {
		return fmt.Errorf("failed to apply storage: %w", err)
	}
	return nil
}
