// Package pwdriver implements the driver contract on Playwright.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/logging"
)

// Default timeouts applied when the context options leave them unset.
const (
	DefaultActionTimeout     = 15 * time.Second
	DefaultNavigationTimeout = 30 * time.Second
)

// Options configures the Playwright launcher.
type Options struct {
	Headless bool

	// Browser is "chromium", "firefox" or "webkit". Empty means chromium.
	Browser string

	// SlowMo delays every Playwright operation, useful when watching a run.
	SlowMo time.Duration

	// SkipInstall skips downloading the driver and browsers.
	SkipInstall bool

	Logger *logging.Logger
}

// Launcher owns the Playwright driver and one browser process.
type Launcher struct {
	mu       sync.Mutex
	pw       *playwright.Playwright
	browser  playwright.Browser
	contexts []*Context
	logger   *logging.Logger
	closed   bool
}

var _ driver.Launcher = (*Launcher)(nil)

// Launch installs (unless skipped) and starts Playwright, then launches the browser.
func Launch(opts Options) (*Launcher, error) {
	// Keep installer chatter off the console; the run log has the details.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if opts.Browser != "" {
		runOpts.Browsers = []string{opts.Browser}
	}

	if !opts.SkipInstall {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}

	var bt playwright.BrowserType
	switch opts.Browser {
	case "", "chromium":
		bt = pw.Chromium
	case "firefox":
		bt = pw.Firefox
	case "webkit":
		bt = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, fmt.Errorf("unsupported browser %q", opts.Browser)
	}

	browser, err := bt.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	opts.Logger.Infof("launched %s (headless=%v, version %s)", bt.Name(), opts.Headless, browser.Version())
	return &Launcher{pw: pw, browser: browser, logger: opts.Logger}, nil
}

// NewContext creates an isolated browsing context.
func (l *Launcher) NewContext(ctx context.Context, opts driver.ContextOptions) (driver.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, driver.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.BaseURL != "" {
		ctxOpts.BaseURL = playwright.String(opts.BaseURL)
	}
	if opts.Locale != "" {
		ctxOpts.Locale = playwright.String(opts.Locale)
	}
	if opts.TimezoneID != "" {
		ctxOpts.TimezoneId = playwright.String(opts.TimezoneID)
	}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		ctxOpts.Viewport = &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		}
	}

	bc, err := l.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", mapError(err))
	}

	action := opts.ActionTimeout
	if action == 0 {
		action = DefaultActionTimeout
	}
	nav := opts.NavigationTimeout
	if nav == 0 {
		nav = DefaultNavigationTimeout
	}
	bc.SetDefaultTimeout(millis(action))
	bc.SetDefaultNavigationTimeout(millis(nav))

	c := &Context{bc: bc, action: action, nav: nav, logger: l.logger}
	l.contexts = append(l.contexts, c)
	return c, nil
}

// Close closes every context, the browser and the Playwright driver.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	for _, c := range l.contexts {
		if err := c.Close(); err != nil && !errors.Is(err, driver.ErrClosed) {
			errs = append(errs, err)
		}
	}
	l.contexts = nil

	if err := l.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := l.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// timeout converts the remaining context budget into a Playwright timeout.
// A context without a deadline uses fallback. Playwright treats 0 as "no
// timeout", so an already expired context maps to 1ms.
func timeout(ctx context.Context, fallback time.Duration) *float64 {
	ms := millis(driver.Remaining(ctx, fallback))
	if ms < 1 {
		ms = 1
	}
	return playwright.Float(ms)
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%w: %w", driver.ErrTimeout, err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return fmt.Errorf("%w: %w", driver.ErrClosed, err)
	default:
		return err
	}
}
