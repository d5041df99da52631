package pwdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/logging"
)

// Context wraps a playwright.BrowserContext.
type Context struct {
	bc     playwright.BrowserContext
	action time.Duration
	nav    time.Duration
	logger *logging.Logger
}

var _ driver.Context = (*Context)(nil)

func (c *Context) NewPage(ctx context.Context) (driver.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := c.bc.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", mapError(err))
	}
	return &Page{page: p, ctx: c}, nil
}

func (c *Context) Cookies(ctx context.Context) ([]driver.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := c.bc.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", mapError(err))
	}

	cookies := make([]driver.Cookie, 0, len(raw))
	for _, rc := range raw {
		dc := driver.Cookie{
			Name:     rc.Name,
			Value:    rc.Value,
			Domain:   rc.Domain,
			Path:     rc.Path,
			Expires:  rc.Expires,
			HTTPOnly: rc.HttpOnly,
			Secure:   rc.Secure,
		}
		if rc.SameSite != nil {
			dc.SameSite = string(*rc.SameSite)
		}
		cookies = append(cookies, dc)
	}
	return cookies, nil
}

func (c *Context) AddCookies(ctx context.Context, cookies []driver.Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(cookies) == 0 {
		return nil
	}

	opt := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, dc := range cookies {
		oc := playwright.OptionalCookie{
			Name:     dc.Name,
			Value:    dc.Value,
			Domain:   playwright.String(dc.Domain),
			Path:     playwright.String(dc.Path),
			Expires:  playwright.Float(dc.Expires),
			HttpOnly: playwright.Bool(dc.HTTPOnly),
			Secure:   playwright.Bool(dc.Secure),
		}
		if dc.SameSite != "" {
			ss := playwright.SameSiteAttribute(dc.SameSite)
			oc.SameSite = &ss
		}
		opt = append(opt, oc)
	}

	if err := c.bc.AddCookies(opt); err != nil {
		return fmt.Errorf("failed to add cookies: %w", mapError(err))
	}
	c.logger.Debugf("added %d cookies", len(opt))
	return nil
}

func (c *Context) AddInitScript(ctx context.Context, script string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.bc.AddInitScript(playwright.Script{Content: playwright.String(script)}); err != nil {
		return fmt.Errorf("failed to add init script: %w", mapError(err))
	}
	return nil
}

func (c *Context) Close() error {
	if err := c.bc.Close(); err != nil {
		return mapError(err)
	}
	return nil
}
