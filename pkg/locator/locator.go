// Package locator expresses "find this thing" as a ranked list of fallback
// strategies. The first strategy that matches wins; a chain can also be
// asked whether any of its strategies match at all, which is how logged-in
// indicators are combined.
package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/uisync/pkg/driver"
)

// ErrNoMatch is returned when no strategy in a chain matched.
var ErrNoMatch = errors.New("locator: no strategy matched")

// Strategy is one way of recognising something on a page. Resolve returns
// the matched element when the strategy is element-based, nil otherwise.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, page driver.Page) (driver.Element, bool, error)
}

type selectorStrategy struct {
	selector string
}

// Selector matches when the first element for sel is visible.
func Selector(sel string) Strategy { return selectorStrategy{selector: sel} }

func (s selectorStrategy) Name() string { return s.selector }

func (s selectorStrategy) Resolve(ctx context.Context, page driver.Page) (driver.Element, bool, error) {
	el := page.Locate(s.selector).First()
	ok, err := el.IsVisible(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return el, true, nil
}

type urlStrategy struct {
	fragment string
	want     bool
}

// URLContains matches when the current URL contains fragment.
func URLContains(fragment string) Strategy { return urlStrategy{fragment: fragment, want: true} }

// URLLacks matches when the current URL does not contain fragment.
func URLLacks(fragment string) Strategy { return urlStrategy{fragment: fragment, want: false} }

func (s urlStrategy) Name() string {
	if s.want {
		return "url contains " + s.fragment
	}
	return "url lacks " + s.fragment
}

func (s urlStrategy) Resolve(ctx context.Context, page driver.Page) (driver.Element, bool, error) {
	return nil, strings.Contains(page.URL(), s.fragment) == s.want, nil
}

type cookieStrategy struct {
	fragment string
}

// CookiePresent matches when the page's context holds a non-empty cookie
// whose name contains fragment.
func CookiePresent(fragment string) Strategy { return cookieStrategy{fragment: fragment} }

func (s cookieStrategy) Name() string { return "cookie " + s.fragment }

func (s cookieStrategy) Resolve(ctx context.Context, page driver.Page) (driver.Element, bool, error) {
	cookies, err := page.Context().Cookies(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, c := range cookies {
		if c.Value != "" && strings.Contains(c.Name, s.fragment) {
			return nil, true, nil
		}
	}
	return nil, false, nil
}

type allStrategy struct {
	parts []Strategy
}

// All matches only when every part matches. The element of the last
// element-based part is returned.
func All(parts ...Strategy) Strategy { return allStrategy{parts: parts} }

func (s allStrategy) Name() string {
	names := make([]string, len(s.parts))
	for i, p := range s.parts {
		names[i] = p.Name()
	}
	return strings.Join(names, " && ")
}

func (s allStrategy) Resolve(ctx context.Context, page driver.Page) (driver.Element, bool, error) {
	var last driver.Element
	for _, p := range s.parts {
		el, ok, err := p.Resolve(ctx, page)
		if err != nil || !ok {
			return nil, false, err
		}
		if el != nil {
			last = el
		}
	}
	return last, true, nil
}

type anyStrategy struct {
	parts []Strategy
}

// AnyOf matches when at least one part matches. Errors from parts are
// returned only when none matched.
func AnyOf(parts ...Strategy) Strategy { return anyStrategy{parts: parts} }

func (s anyStrategy) Name() string {
	names := make([]string, len(s.parts))
	for i, p := range s.parts {
		names[i] = p.Name()
	}
	return "(" + strings.Join(names, " || ") + ")"
}

func (s anyStrategy) Resolve(ctx context.Context, page driver.Page) (driver.Element, bool, error) {
	var errs []error
	for _, p := range s.parts {
		el, ok, err := p.Resolve(ctx, page)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return el, true, nil
		}
	}
	return nil, false, errors.Join(errs...)
}

type notStrategy struct {
	inner Strategy
}

// Not inverts a strategy. Errors are passed through unchanged.
func Not(s Strategy) Strategy { return notStrategy{inner: s} }

func (s notStrategy) Name() string { return "not " + s.inner.Name() }

func (s notStrategy) Resolve(ctx context.Context, page driver.Page) (driver.Element, bool, error) {
	_, ok, err := s.inner.Resolve(ctx, page)
	if err != nil {
		return nil, false, err
	}
	return nil, !ok, nil
}

// Chain is an ordered list of strategies, most specific first.
type Chain []Strategy

// Selectors builds a chain of Selector strategies.
func Selectors(sels ...string) Chain {
	c := make(Chain, len(sels))
	for i, s := range sels {
		c[i] = Selector(s)
	}
	return c
}

// Resolve returns the result of the first matching strategy. A strategy that
// errors is skipped; if nothing matches the errors are reported with
// ErrNoMatch.
func (c Chain) Resolve(ctx context.Context, page driver.Page) (driver.Element, Strategy, error) {
	el, s, errs := c.resolve(ctx, page)
	if s != nil {
		return el, s, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(errs) > 0 {
		return nil, nil, fmt.Errorf("%w: %w", ErrNoMatch, errors.Join(errs...))
	}
	return nil, nil, ErrNoMatch
}

// Any reports whether at least one strategy matches. A strategy that errors
// counts as "no match"; an error is returned only when every strategy errored.
func (c Chain) Any(ctx context.Context, page driver.Page) (bool, error) {
	_, s, errs := c.resolve(ctx, page)
	if s != nil {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(c) > 0 && len(errs) == len(c) {
		return false, fmt.Errorf("%w: %w", ErrNoMatch, errors.Join(errs...))
	}
	return false, nil
}

func (c Chain) resolve(ctx context.Context, page driver.Page) (driver.Element, Strategy, []error) {
	var errs []error
	for _, s := range c {
		if ctx.Err() != nil {
			return nil, nil, errs
		}
		el, ok, err := s.Resolve(ctx, page)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if ok {
			return el, s, nil
		}
	}
	return nil, nil, errs
}

// Names lists strategy names, for log lines.
func (c Chain) Names() []string {
	out := make([]string, len(c))
	for i, s := range c {
		out[i] = s.Name()
	}
	return out
}
