package pwdriver

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uisync/pkg/driver"
)

// Page wraps a playwright.Page.
type Page struct {
	page playwright.Page
	ctx  *Context
}

var _ driver.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeout(ctx, p.ctx.nav),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, mapError(err))
	}
	p.ctx.logger.Debugf("navigated to %s", p.page.URL())
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	_, err := p.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeout(ctx, p.ctx.nav),
	})
	if err != nil {
		return fmt.Errorf("reload failed: %w", mapError(err))
	}
	return nil
}

func (p *Page) WaitForLoad(ctx context.Context) error {
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: timeout(ctx, p.ctx.nav),
	})
	if err != nil {
		return fmt.Errorf("wait for load failed: %w", mapError(err))
	}
	return nil
}

func (p *Page) WaitForURL(ctx context.Context, match func(url string) bool) error {
	err := p.page.WaitForURL(match, playwright.PageWaitForURLOptions{
		Timeout: timeout(ctx, p.ctx.nav),
	})
	if err != nil {
		return fmt.Errorf("wait for url failed: %w", mapError(err))
	}
	return nil
}

func (p *Page) URL() string { return p.page.URL() }

func (p *Page) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title, err := p.page.Title()
	if err != nil {
		return "", fmt.Errorf("failed to read title: %w", mapError(err))
	}
	return title, nil
}

func (p *Page) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		res any
		err error
	)
	if arg == nil {
		res, err = p.page.Evaluate(script)
	} else {
		res, err = p.page.Evaluate(script, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("evaluate failed: %w", mapError(err))
	}
	return res, nil
}

func (p *Page) Locate(selector string) driver.Element {
	return &Element{loc: p.page.Locator(selector), selector: selector, action: p.ctx.action}
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
		Timeout:  timeout(ctx, p.ctx.action),
	})
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", mapError(err))
	}
	return nil
}

func (p *Page) ExpectPopup(ctx context.Context, action func() error) (driver.Page, error) {
	popup, err := p.page.ExpectPopup(action, playwright.PageExpectPopupOptions{
		Timeout: timeout(ctx, p.ctx.action),
	})
	if err != nil {
		return nil, fmt.Errorf("popup did not open: %w", mapError(err))
	}
	return &Page{page: popup, ctx: p.ctx}, nil
}

func (p *Page) Context() driver.Context { return p.ctx }

func (p *Page) Close() error {
	if err := p.page.Close(); err != nil {
		return mapError(err)
	}
	return nil
}
