// Package driver defines the browser automation contract the rest of uisync
// is written against. Adapters in pwdriver and roddriver implement it on top
// of Playwright and the Chrome DevTools Protocol, and drivertest provides an
// in-memory implementation for unit tests.
//
// Every blocking call takes a context. Adapters derive the engine's own
// timeout from the context deadline and report expired waits as ErrTimeout.
package driver

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when an element or navigation wait expires.
	ErrTimeout = errors.New("driver: timeout")

	// ErrNotFound is returned when an element handle resolves to nothing.
	ErrNotFound = errors.New("driver: element not found")

	// ErrClosed is returned when a page or context was already closed.
	ErrClosed = errors.New("driver: target closed")
)

// ElementState is the state WaitFor blocks on.
type ElementState string

const (
	StateAttached ElementState = "attached"
	StateDetached ElementState = "detached"
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
)

// Cookie is a browser cookie. Expires is seconds since the epoch, -1 for
// session cookies.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Viewport is the page size in CSS pixels.
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// ContextOptions configures a new browsing context.
type ContextOptions struct {
	BaseURL           string
	Locale            string
	TimezoneID        string
	UserAgent         string
	Viewport          Viewport
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
}

// Launcher owns a browser process and hands out isolated contexts.
type Launcher interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browsing context with its own cookie jar and storage.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	AddCookies(ctx context.Context, cookies []Cookie) error

	// AddInitScript registers a script that runs in every document created
	// afterwards, before any page script.
	AddInitScript(ctx context.Context, script string) error
	Close() error
}

// Page is a single tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	WaitForLoad(ctx context.Context) error
	WaitForURL(ctx context.Context, match func(url string) bool) error
	URL() string
	Title(ctx context.Context) (string, error)

	// Evaluate runs a JavaScript function expression with arg and returns its
	// JSON-decoded result.
	Evaluate(ctx context.Context, script string, arg any) (any, error)

	// Locate returns a lazy handle; nothing is resolved until it is used.
	Locate(selector string) Element
	Screenshot(ctx context.Context, path string) error

	// ExpectPopup runs action and returns the page it opened.
	ExpectPopup(ctx context.Context, action func() error) (Page, error)
	Context() Context
	Close() error
}

// Element is a lazy selector handle, resolved on every call.
type Element interface {
	First() Element
	Nth(i int) Element
	Count(ctx context.Context) (int, error)
	IsVisible(ctx context.Context) (bool, error)
	WaitFor(ctx context.Context, state ElementState) error
	Click(ctx context.Context) error

	// DispatchClick fires a click event without actionability checks.
	DispatchClick(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Attribute(ctx context.Context, name string) (string, bool, error)
	Text(ctx context.Context) (string, error)
}

// Remaining returns the time left before ctx expires, or fallback when ctx
// has no deadline. The result is never negative.
func Remaining(ctx context.Context, fallback time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	left := time.Until(deadline)
	if left < 0 {
		return 0
	}
	return left
}

// WithTimeout bounds ctx by d unless ctx already expires sooner.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
