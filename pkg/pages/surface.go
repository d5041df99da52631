// Package pages wraps the target site's screens. Each screen is a small
// struct embedding Surface, which carries the page handle, the base URL and
// the timeouts every screen shares. Selectors are expressed as ranked
// locator chains so the site's Ukrainian and English variants both resolve.
package pages

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/locator"
	"github.com/entrhq/uisync/pkg/logging"
	"github.com/entrhq/uisync/pkg/poll"
)

// Timeouts bound the waits a screen performs.
type Timeouts struct {
	Short  time.Duration `yaml:"short"`
	Medium time.Duration `yaml:"medium"`
	Long   time.Duration `yaml:"long"`
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{Short: 5 * time.Second, Medium: 10 * time.Second, Long: 30 * time.Second}
}

func (t Timeouts) orDefault() Timeouts {
	d := DefaultTimeouts()
	if t.Short <= 0 {
		t.Short = d.Short
	}
	if t.Medium <= 0 {
		t.Medium = d.Medium
	}
	if t.Long <= 0 {
		t.Long = d.Long
	}
	return t
}

// Surface is what every screen has in common.
type Surface struct {
	Page     driver.Page
	BaseURL  string
	Timeouts Timeouts
	Logger   *logging.Logger

	// PollOptions are passed to every wait loop.
	PollOptions []poll.Option
}

// NewSurface binds page to baseURL.
func NewSurface(page driver.Page, baseURL string, timeouts Timeouts, logger *logging.Logger) Surface {
	return Surface{Page: page, BaseURL: baseURL, Timeouts: timeouts.orDefault(), Logger: logger}
}

// on returns a copy of s driving page instead.
func (s Surface) on(page driver.Page) Surface {
	s.Page = page
	return s
}

// URL resolves path against the base URL. Absolute URLs are returned as is.
func (s Surface) URL(path string) string {
	if s.BaseURL == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return base.ResolveReference(ref).String()
}

// Open navigates to path and waits for the document to load.
func (s Surface) Open(ctx context.Context, path string) error {
	target := s.URL(path)
	s.Logger.Debugf("opening %s", target)
	if err := s.Page.Navigate(ctx, target); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}
	return s.WaitForLoad(ctx)
}

// WaitForLoad waits for DOMContentLoaded. Network idle is never awaited
// because the site keeps websockets open.
func (s Surface) WaitForLoad(ctx context.Context) error {
	if err := s.Page.WaitForLoad(ctx); err != nil {
		return fmt.Errorf("page did not load: %w", err)
	}
	return nil
}

// Reload reloads the current document.
func (s Surface) Reload(ctx context.Context) error {
	if err := s.Page.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	return s.WaitForLoad(ctx)
}

// Screenshot saves a PNG of the page.
func (s Surface) Screenshot(ctx context.Context, path string) error {
	if err := s.Page.Screenshot(ctx, path); err != nil {
		return fmt.Errorf("failed to take screenshot: %w", err)
	}
	return nil
}

// ScrollToBottom scrolls the window to the end of the document.
func (s Surface) ScrollToBottom(ctx context.Context) error {
	_, err := s.Page.Evaluate(ctx, `() => window.scrollTo(0, document.body.scrollHeight)`, nil)
	return err
}

// until polls check for at most timeout.
func (s Surface) until(ctx context.Context, check poll.Check, timeout time.Duration) error {
	return poll.Until(ctx, check, timeout, s.PollOptions...)
}

// find waits until some strategy in chain matches and returns its element.
func (s Surface) find(ctx context.Context, chain locator.Chain, timeout time.Duration) (driver.Element, error) {
	var found driver.Element
	err := s.until(ctx, func(ctx context.Context) (bool, error) {
		el, _, err := chain.Resolve(ctx, s.Page)
		if err != nil {
			return false, err
		}
		found = el
		return true, nil
	}, timeout)
	if err != nil {
		return nil, fmt.Errorf("none of %q appeared: %w", chain.Names(), err)
	}
	return found, nil
}

// visible waits until el is visible.
func (s Surface) visible(ctx context.Context, el driver.Element, what string, timeout time.Duration) error {
	err := s.until(ctx, func(ctx context.Context) (bool, error) {
		ok, err := el.IsVisible(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("%s is not visible", what)
		}
		return true, nil
	}, timeout)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", what, err)
	}
	return nil
}

// click finds the first matching element of chain and clicks it.
func (s Surface) click(ctx context.Context, chain locator.Chain, timeout time.Duration) error {
	el, err := s.find(ctx, chain, timeout)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// scoped returns a selector for child inside the element whose data-role is role.
func scoped(role, child string) string {
	return fmt.Sprintf(`[data-role="%s"] %s`, role, child)
}
