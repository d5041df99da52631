package pwdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uisync/pkg/driver"
)

// Element wraps a playwright.Locator.
type Element struct {
	loc      playwright.Locator
	selector string
	action   time.Duration
}

var _ driver.Element = (*Element)(nil)

func (e *Element) First() driver.Element {
	return &Element{loc: e.loc.First(), selector: e.selector, action: e.action}
}

func (e *Element) Nth(i int) driver.Element {
	return &Element{loc: e.loc.Nth(i), selector: fmt.Sprintf("%s >> nth=%d", e.selector, i), action: e.action}
}

func (e *Element) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := e.loc.Count()
	if err != nil {
		return 0, e.wrap("count", err)
	}
	return n, nil
}

func (e *Element) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := e.loc.IsVisible()
	if err != nil {
		return false, e.wrap("visibility check", err)
	}
	return ok, nil
}

func (e *Element) WaitFor(ctx context.Context, state driver.ElementState) error {
	var st *playwright.WaitForSelectorState
	switch state {
	case driver.StateAttached:
		st = playwright.WaitForSelectorStateAttached
	case driver.StateDetached:
		st = playwright.WaitForSelectorStateDetached
	case driver.StateHidden:
		st = playwright.WaitForSelectorStateHidden
	default:
		st = playwright.WaitForSelectorStateVisible
	}

	err := e.loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   st,
		Timeout: timeout(ctx, e.action),
	})
	if err != nil {
		return e.wrap("wait for "+string(state), err)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := e.loc.Click(playwright.LocatorClickOptions{Timeout: timeout(ctx, e.action)}); err != nil {
		return e.wrap("click", err)
	}
	return nil
}

func (e *Element) DispatchClick(ctx context.Context) error {
	err := e.loc.DispatchEvent("click", nil, playwright.LocatorDispatchEventOptions{
		Timeout: timeout(ctx, e.action),
	})
	if err != nil {
		return e.wrap("dispatch click", err)
	}
	return nil
}

func (e *Element) Fill(ctx context.Context, value string) error {
	if err := e.loc.Fill(value, playwright.LocatorFillOptions{Timeout: timeout(ctx, e.action)}); err != nil {
		return e.wrap("fill", err)
	}
	return nil
}

// Attribute reports the attribute value. Playwright does not distinguish a
// missing attribute from an empty one, so both report ok=false.
func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.loc.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: timeout(ctx, e.action)})
	if err != nil {
		return "", false, e.wrap("get attribute "+name, err)
	}
	return v, v != "", nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	s, err := e.loc.TextContent(playwright.LocatorTextContentOptions{Timeout: timeout(ctx, e.action)})
	if err != nil {
		return "", e.wrap("text content", err)
	}
	return s, nil
}

func (e *Element) wrap(op string, err error) error {
	return fmt.Errorf("%s on %q failed: %w", op, e.selector, mapError(err))
}
