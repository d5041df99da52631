// Package roddriver implements the driver contract over the Chrome DevTools
// Protocol using go-rod. It is the lighter alternative to pwdriver when a
// Chrome binary is already available or a remote browser is reachable.
package roddriver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/logging"
	"github.com/entrhq/uisync/pkg/poll"
)

const (
	defaultActionTimeout     = 15 * time.Second
	defaultNavigationTimeout = 30 * time.Second
	waitInterval             = 100 * time.Millisecond
)

// Options configures the launcher.
type Options struct {
	Headless bool

	// RemoteURL is the DevTools WebSocket of an external Chrome. Empty
	// launches a local one.
	RemoteURL string

	Logger *logging.Logger
}

// Launcher owns one Chrome process (or remote connection).
type Launcher struct {
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	logger  *logging.Logger
	closed  bool
}

var _ driver.Launcher = (*Launcher)(nil)

// Launch starts or connects to Chrome.
func Launch(opts Options) (*Launcher, error) {
	wsURL := opts.RemoteURL
	var l *launcher.Launcher
	if wsURL == "" {
		l = launcher.New().Headless(opts.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch chrome: %w", err)
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}

	opts.Logger.Infof("connected to chrome at %s", wsURL)
	return &Launcher{browser: b, lnch: l, logger: opts.Logger}, nil
}

// NewContext creates an incognito browser context.
func (l *Launcher) NewContext(ctx context.Context, opts driver.ContextOptions) (driver.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, driver.ErrClosed
	}

	incog, err := l.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", mapError(err))
	}
	if opts.ActionTimeout == 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = defaultNavigationTimeout
	}
	return &Context{browser: incog, opts: opts, logger: l.logger}, nil
}

// Close disconnects from Chrome and stops a locally launched process.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	err := l.browser.Close()
	if l.lnch != nil {
		l.lnch.Kill()
		l.lnch.Cleanup()
	}
	if err != nil {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	return nil
}

// Context is an incognito browser context. Rod registers init scripts per
// page, so the context replays them onto every page it opens.
type Context struct {
	mu      sync.Mutex
	browser *rod.Browser
	opts    driver.ContextOptions
	scripts []string
	pages   []*Page
	logger  *logging.Logger
}

var _ driver.Context = (*Context)(nil)

func (c *Context) NewPage(ctx context.Context) (driver.Page, error) {
	rp, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", mapError(err))
	}

	if vp := c.opts.Viewport; vp.Width > 0 && vp.Height > 0 {
		if err := rp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width: vp.Width, Height: vp.Height, DeviceScaleFactor: 1,
		}); err != nil {
			return nil, fmt.Errorf("failed to set viewport: %w", err)
		}
	}
	if c.opts.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: c.opts.Locale}).Call(rp); err != nil {
			return nil, fmt.Errorf("failed to set locale: %w", err)
		}
	}
	if c.opts.TimezoneID != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: c.opts.TimezoneID}).Call(rp); err != nil {
			return nil, fmt.Errorf("failed to set timezone: %w", err)
		}
	}
	if c.opts.UserAgent != "" {
		if err := rp.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: c.opts.UserAgent}); err != nil {
			return nil, fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.scripts {
		if _, err := rp.EvalOnNewDocument(s); err != nil {
			return nil, fmt.Errorf("failed to add init script: %w", mapError(err))
		}
	}

	p := &Page{page: rp, ctx: c}
	c.pages = append(c.pages, p)
	return p, nil
}

func (c *Context) Cookies(ctx context.Context) ([]driver.Cookie, error) {
	raw, err := c.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", mapError(err))
	}
	cookies := make([]driver.Cookie, 0, len(raw))
	for _, rc := range raw {
		cookies = append(cookies, driver.Cookie{
			Name:     rc.Name,
			Value:    rc.Value,
			Domain:   rc.Domain,
			Path:     rc.Path,
			Expires:  float64(rc.Expires),
			HTTPOnly: rc.HTTPOnly,
			Secure:   rc.Secure,
			SameSite: string(rc.SameSite),
		})
	}
	return cookies, nil
}

func (c *Context) AddCookies(ctx context.Context, cookies []driver.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, dc := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     dc.Name,
			Value:    dc.Value,
			Domain:   dc.Domain,
			Path:     dc.Path,
			HTTPOnly: dc.HTTPOnly,
			Secure:   dc.Secure,
			SameSite: proto.NetworkCookieSameSite(dc.SameSite),
		}
		if dc.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(dc.Expires)
		}
		params = append(params, p)
	}
	if err := c.browser.Context(ctx).SetCookies(params); err != nil {
		return fmt.Errorf("failed to add cookies: %w", mapError(err))
	}
	return nil
}

func (c *Context) AddInitScript(ctx context.Context, script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scripts = append(c.scripts, script)
	for _, p := range c.pages {
		if _, err := p.page.Context(ctx).EvalOnNewDocument(script); err != nil {
			return fmt.Errorf("failed to add init script: %w", mapError(err))
		}
	}
	return nil
}

func (c *Context) Close() error {
	if err := c.browser.Close(); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Context) resolve(target string) string {
	if c.opts.BaseURL == "" {
		return target
	}
	base, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return target
	}
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	return base.ResolveReference(ref).String()
}

// Page wraps a rod.Page.
type Page struct {
	page *rod.Page
	ctx  *Context
}

var _ driver.Page = (*Page)(nil)

func (p *Page) bounded(ctx context.Context, d time.Duration) (*rod.Page, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return p.page.Context(ctx), func() {}
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	return p.page.Context(tctx), cancel
}

func (p *Page) Navigate(ctx context.Context, target string) error {
	rp, cancel := p.bounded(ctx, p.ctx.opts.NavigationTimeout)
	defer cancel()

	u := p.ctx.resolve(target)
	if err := rp.Navigate(u); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", u, mapError(err))
	}
	if err := rp.WaitLoad(); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", u, mapError(err))
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	rp, cancel := p.bounded(ctx, p.ctx.opts.NavigationTimeout)
	defer cancel()
	if err := rp.Reload(); err != nil {
		return fmt.Errorf("reload failed: %w", mapError(err))
	}
	return nil
}

func (p *Page) WaitForLoad(ctx context.Context) error {
	rp, cancel := p.bounded(ctx, p.ctx.opts.NavigationTimeout)
	defer cancel()
	if err := rp.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load failed: %w", mapError(err))
	}
	return nil
}

func (p *Page) WaitForURL(ctx context.Context, match func(string) bool) error {
	err := waitUntil(ctx, p.ctx.opts.NavigationTimeout, func(context.Context) (bool, error) {
		return match(p.URL()), nil
	})
	if err != nil {
		return fmt.Errorf("wait for url failed: %w", err)
	}
	return nil
}

func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *Page) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read title: %w", mapError(err))
	}
	return info.Title, nil
}

func (p *Page) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	rp, cancel := p.bounded(ctx, p.ctx.opts.ActionTimeout)
	defer cancel()

	var (
		res *proto.RuntimeRemoteObject
		err error
	)
	if arg == nil {
		res, err = rp.Eval(script)
	} else {
		res, err = rp.Eval(script, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("evaluate failed: %w", mapError(err))
	}
	return res.Value.Val(), nil
}

func (p *Page) Locate(selector string) driver.Element {
	return &Element{page: p, selector: selector, index: -1}
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	rp, cancel := p.bounded(ctx, p.ctx.opts.ActionTimeout)
	defer cancel()

	img, err := rp.Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", mapError(err))
	}
	if err := os.WriteFile(path, img, 0644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

func (p *Page) ExpectPopup(ctx context.Context, action func() error) (driver.Page, error) {
	rp, cancel := p.bounded(ctx, p.ctx.opts.ActionTimeout)
	defer cancel()

	wait := rp.WaitOpen()
	if err := action(); err != nil {
		return nil, err
	}
	popup, err := wait()
	if err != nil {
		return nil, fmt.Errorf("popup did not open: %w", mapError(err))
	}

	np := &Page{page: popup, ctx: p.ctx}
	p.ctx.mu.Lock()
	p.ctx.pages = append(p.ctx.pages, np)
	p.ctx.mu.Unlock()
	return np, nil
}

func (p *Page) Context() driver.Context { return p.ctx }

func (p *Page) Close() error {
	if err := p.page.Close(); err != nil {
		return mapError(err)
	}
	return nil
}

func waitUntil(ctx context.Context, fallback time.Duration, check poll.Check) error {
	err := poll.Until(ctx, check, driver.Remaining(ctx, fallback), poll.WithInterval(waitInterval))
	if errors.Is(err, poll.ErrTimeout) {
		return fmt.Errorf("%w: %w", driver.ErrTimeout, err)
	}
	return err
}

func mapError(err error) error {
	var notFound *rod.ElementNotFoundError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", driver.ErrTimeout, err)
	case errors.As(err, &notFound):
		return fmt.Errorf("%w: %w", driver.ErrNotFound, err)
	default:
		return err
	}
}
