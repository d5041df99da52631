// Package drivertest provides an in-memory implementation of the driver
// contract. Pages hold a registry of selector → nodes that tests populate
// directly or compute on demand, so page surfaces and the synchronizer can be
// exercised without a browser.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/poll"
)

// Node is a fake DOM element.
type Node struct {
	Visible bool
	Text    string
	Attrs   map[string]string
	Value   string

	// OnClick runs when the node is clicked.
	OnClick func() error
}

// Launcher hands out fresh Contexts. Setup, when set, customizes every page
// the contexts create.
type Launcher struct {
	mu       sync.Mutex
	Contexts []*Context
	Setup    func(p *Page)
	closed   bool
}

var _ driver.Launcher = (*Launcher)(nil)

func (l *Launcher) NewContext(ctx context.Context, opts driver.ContextOptions) (driver.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, driver.ErrClosed
	}
	c := NewContext()
	c.Options = opts
	c.Setup = l.Setup
	l.Contexts = append(l.Contexts, c)
	return c, nil
}

func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Context is a fake browsing context.
type Context struct {
	mu          sync.Mutex
	Options     driver.ContextOptions
	cookies     []driver.Cookie
	InitScripts []string
	Pages       []*Page
	Setup       func(p *Page)

	// CookieErr, when set, is returned by Cookies and AddCookies.
	CookieErr error
	closed    bool
}

var _ driver.Context = (*Context)(nil)

// NewContext returns an empty context.
func NewContext() *Context { return &Context{} }

func (c *Context) NewPage(ctx context.Context) (driver.Page, error) {
	return c.NewFakePage(), nil
}

// NewFakePage creates a page attached to c and returns the concrete type.
func (c *Context) NewFakePage() *Page {
	p := NewPage()
	p.ctx = c
	if c.Setup != nil {
		c.Setup(p)
	}
	c.mu.Lock()
	c.Pages = append(c.Pages, p)
	c.mu.Unlock()
	return p
}

func (c *Context) Cookies(ctx context.Context) ([]driver.Cookie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CookieErr != nil {
		return nil, c.CookieErr
	}
	return append([]driver.Cookie(nil), c.cookies...), nil
}

// SetCookies replaces the cookie jar.
func (c *Context) SetCookies(cookies ...driver.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = append([]driver.Cookie(nil), cookies...)
}

func (c *Context) AddCookies(ctx context.Context, cookies []driver.Cookie) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CookieErr != nil {
		return c.CookieErr
	}
	for _, nc := range cookies {
		replaced := false
		for i, oc := range c.cookies {
			if oc.Name == nc.Name && oc.Domain == nc.Domain && oc.Path == nc.Path {
				c.cookies[i] = nc
				replaced = true
			}
		}
		if !replaced {
			c.cookies = append(c.cookies, nc)
		}
	}
	return nil
}

// HasCookie reports whether a cookie with the given name is in the jar.
func (c *Context) HasCookie(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range c.cookies {
		if ck.Name == name {
			return true
		}
	}
	return false
}

func (c *Context) AddInitScript(ctx context.Context, script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InitScripts = append(c.InitScripts, script)
	return nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Page is a fake tab.
type Page struct {
	mu    sync.Mutex
	url   string
	title string
	ctx   *Context
	nodes map[string][]*Node

	// Resolver computes nodes for selectors missing from the static registry.
	Resolver func(selector string) []*Node

	// EvalFunc answers Evaluate. Nil returns an error.
	EvalFunc func(script string, arg any) (any, error)

	// OnNavigate runs after the URL changes; OnReload after Reload.
	OnNavigate func(url string) error
	OnReload   func() error

	// Popup is returned by the next ExpectPopup.
	Popup *Page

	Navigations []string
	Reloads     int
	Screenshots []string
	closed      bool
}

var _ driver.Page = (*Page)(nil)

// NewPage returns a detached page at about:blank.
func NewPage() *Page {
	return &Page{url: "about:blank", nodes: make(map[string][]*Node)}
}

// Set registers the nodes a selector resolves to, replacing earlier ones.
func (p *Page) Set(selector string, nodes ...*Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes[selector] = nodes
}

// SetURL moves the page without running hooks.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

// SetTitle sets the document title.
func (p *Page) SetTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
}

// FakeContext returns the owning context, creating one for detached pages.
func (p *Page) FakeContext() *Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		p.ctx = NewContext()
	}
	return p.ctx
}

func (p *Page) resolve(selector string) []*Node {
	p.mu.Lock()
	nodes, ok := p.nodes[selector]
	resolver := p.Resolver
	p.mu.Unlock()
	if ok {
		return nodes
	}
	if resolver != nil {
		return resolver(selector)
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if base := p.baseURL(); base != "" && strings.HasPrefix(url, "/") {
		url = strings.TrimSuffix(base, "/") + url
	}
	p.url = url
	p.Navigations = append(p.Navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		return hook(url)
	}
	return nil
}

func (p *Page) baseURL() string {
	if p.ctx == nil {
		return ""
	}
	return p.ctx.Options.BaseURL
}

func (p *Page) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Reloads++
	hook := p.OnReload
	p.mu.Unlock()
	if hook != nil {
		return hook()
	}
	return nil
}

func (p *Page) WaitForLoad(ctx context.Context) error { return ctx.Err() }

func (p *Page) WaitForURL(ctx context.Context, match func(string) bool) error {
	return wait(ctx, func() bool { return match(p.URL()) })
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *Page) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	fn := p.EvalFunc
	p.mu.Unlock()
	if fn == nil {
		return nil, errors.New("drivertest: no EvalFunc configured")
	}
	return fn(script, arg)
}

func (p *Page) Locate(selector string) driver.Element {
	return &Element{page: p, selector: selector, index: -1}
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Screenshots = append(p.Screenshots, path)
	return nil
}

func (p *Page) ExpectPopup(ctx context.Context, action func() error) (driver.Page, error) {
	if err := action(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Popup == nil {
		return nil, fmt.Errorf("popup did not open: %w", driver.ErrTimeout)
	}
	popup := p.Popup
	p.Popup = nil
	popup.ctx = p.ctx
	return popup, nil
}

func (p *Page) Context() driver.Context { return p.FakeContext() }

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Element is a lazy handle over the page registry.
type Element struct {
	page     *Page
	selector string
	index    int
}

var _ driver.Element = (*Element)(nil)

func (e *Element) First() driver.Element { return e.Nth(0) }

func (e *Element) Nth(i int) driver.Element {
	return &Element{page: e.page, selector: e.selector, index: i}
}

func (e *Element) node() (*Node, error) {
	nodes := e.page.resolve(e.selector)
	i := e.index
	if i < 0 {
		i = 0
	}
	if i >= len(nodes) {
		return nil, fmt.Errorf("%w: %q", driver.ErrNotFound, e.selector)
	}
	return nodes[i], nil
}

func (e *Element) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := len(e.page.resolve(e.selector))
	if e.index >= 0 {
		if e.index < n {
			return 1, nil
		}
		return 0, nil
	}
	return n, nil
}

func (e *Element) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	n, err := e.node()
	if err != nil {
		return false, nil
	}
	return n.Visible, nil
}

func (e *Element) WaitFor(ctx context.Context, state driver.ElementState) error {
	err := wait(ctx, func() bool {
		n, err := e.node()
		switch state {
		case driver.StateAttached:
			return err == nil
		case driver.StateDetached:
			return err != nil
		case driver.StateHidden:
			return err != nil || !n.Visible
		default:
			return err == nil && n.Visible
		}
	})
	if err != nil {
		return fmt.Errorf("wait for %s on %q failed: %w", state, e.selector, err)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := e.WaitFor(ctx, driver.StateVisible); err != nil {
		return err
	}
	return e.DispatchClick(ctx)
}

func (e *Element) DispatchClick(ctx context.Context) error {
	n, err := e.node()
	if err != nil {
		return err
	}
	if n.OnClick != nil {
		return n.OnClick()
	}
	return nil
}

func (e *Element) Fill(ctx context.Context, value string) error {
	if err := e.WaitFor(ctx, driver.StateVisible); err != nil {
		return err
	}
	n, err := e.node()
	if err != nil {
		return err
	}
	e.page.mu.Lock()
	n.Value = value
	e.page.mu.Unlock()
	return nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	n, err := e.node()
	if err != nil {
		return "", false, err
	}
	v, ok := n.Attrs[name]
	return v, ok, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	n, err := e.node()
	if err != nil {
		return "", err
	}
	return n.Text, nil
}

// wait polls cond until it holds or ctx expires; contexts without a deadline
// get a short budget so a missing element fails fast.
func wait(ctx context.Context, cond func() bool) error {
	err := poll.Until(ctx, func(context.Context) (bool, error) {
		return cond(), nil
	}, driver.Remaining(ctx, 200*time.Millisecond), poll.WithInterval(5*time.Millisecond))
	if errors.Is(err, poll.ErrTimeout) {
		return fmt.Errorf("%w: %w", driver.ErrTimeout, err)
	}
	return err
}

// StorageEval returns an EvalFunc that answers storage reads with the given
// maps and rejects every other script.
func StorageEval(local, session map[string]string) func(string, any) (any, error) {
	return func(script string, arg any) (any, error) {
		if !strings.Contains(script, "localStorage") {
			return nil, fmt.Errorf("drivertest: unexpected script %q", script)
		}
		return map[string]any{
			"localStorage":   toAny(local),
			"sessionStorage": toAny(session),
		}, nil
	}
}

func toAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
