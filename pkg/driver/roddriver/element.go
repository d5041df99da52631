package roddriver

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/entrhq/uisync/pkg/driver"
)

// queryScript resolves a selector list the way Playwright does for the subset
// uisync uses: comma separated CSS selectors, each optionally suffixed with
// :has-text("...") which keeps elements whose text contains the string.
const queryScript = `(sel) => {
  const parts = [];
  let depth = 0, quote = '', cur = '';
  for (const ch of sel) {
    if (quote) { if (ch === quote) quote = ''; cur += ch; continue; }
    if (ch === '"' || ch === "'") { quote = ch; cur += ch; continue; }
    if (ch === '(' || ch === '[') depth++;
    if (ch === ')' || ch === ']') depth--;
    if (ch === ',' && depth === 0) { parts.push(cur.trim()); cur = ''; continue; }
    cur += ch;
  }
  if (cur.trim()) parts.push(cur.trim());
  const out = [];
  for (const part of parts) {
    const m = part.match(/^(.*?):has-text\((["'])(.*)\2\)$/);
    const base = m ? (m[1] || '*') : part;
    const text = m ? m[3] : null;
    for (const el of document.querySelectorAll(base)) {
      if (text !== null && !(el.textContent || '').includes(text)) continue;
      if (!out.includes(el)) out.push(el);
    }
  }
  return out;
}`

const visibleScript = `() => {
  const s = window.getComputedStyle(this);
  const r = this.getBoundingClientRect();
  return s.visibility !== 'hidden' && s.display !== 'none' && r.width > 0 && r.height > 0;
}`

// Element re-resolves its selector on every call. index -1 means "all
// matches"; single-element operations then act on the first.
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

func (e *Element) all(ctx context.Context) (rod.Elements, error) {
	rp, cancel := e.page.bounded(ctx, e.page.ctx.opts.ActionTimeout)
	defer cancel()

	els, err := rp.ElementsByJS(rod.Eval(queryScript, e.selector))
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", e.selector, mapError(err))
	}
	return els, nil
}

func (e *Element) one(ctx context.Context) (*rod.Element, error) {
	els, err := e.all(ctx)
	if err != nil {
		return nil, err
	}
	i := e.index
	if i < 0 {
		i = 0
	}
	if i >= len(els) {
		return nil, fmt.Errorf("%w: %q (index %d of %d)", driver.ErrNotFound, e.selector, i, len(els))
	}
	return els[i].Context(ctx), nil
}

// actionable waits for the element to be attached and visible, then returns it.
func (e *Element) actionable(ctx context.Context) (*rod.Element, error) {
	if err := e.WaitFor(ctx, driver.StateVisible); err != nil {
		return nil, err
	}
	return e.one(ctx)
}

func (e *Element) Count(ctx context.Context) (int, error) {
	els, err := e.all(ctx)
	if err != nil {
		return 0, err
	}
	if e.index >= 0 {
		if e.index < len(els) {
			return 1, nil
		}
		return 0, nil
	}
	return len(els), nil
}

func (e *Element) IsVisible(ctx context.Context) (bool, error) {
	el, err := e.one(ctx)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	res, err := el.Eval(visibleScript)
	if err != nil {
		return false, fmt.Errorf("visibility check on %q failed: %w", e.selector, mapError(err))
	}
	return res.Value.Bool(), nil
}

func (e *Element) WaitFor(ctx context.Context, state driver.ElementState) error {
	err := waitUntil(ctx, e.page.ctx.opts.ActionTimeout, func(ctx context.Context) (bool, error) {
		switch state {
		case driver.StateAttached, driver.StateDetached:
			n, err := e.Count(ctx)
			if err != nil {
				return false, err
			}
			return (n > 0) == (state == driver.StateAttached), nil
		default:
			visible, err := e.IsVisible(ctx)
			if err != nil {
				return false, err
			}
			return visible == (state != driver.StateHidden), nil
		}
	})
	if err != nil {
		return fmt.Errorf("wait for %s on %q failed: %w", state, e.selector, err)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	el, err := e.actionable(ctx)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click on %q failed: %w", e.selector, mapError(err))
	}
	return nil
}

func (e *Element) DispatchClick(ctx context.Context) error {
	el, err := e.one(ctx)
	if err != nil {
		return err
	}
	if _, err := el.Eval(`() => this.dispatchEvent(new MouseEvent('click', {bubbles: true, cancelable: true}))`); err != nil {
		return fmt.Errorf("dispatch click on %q failed: %w", e.selector, mapError(err))
	}
	return nil
}

func (e *Element) Fill(ctx context.Context, value string) error {
	el, err := e.actionable(ctx)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("fill on %q failed: %w", e.selector, mapError(err))
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill on %q failed: %w", e.selector, mapError(err))
	}
	return nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	el, err := e.one(ctx)
	if err != nil {
		return "", false, err
	}
	v, err := el.Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("get attribute %s on %q failed: %w", name, e.selector, mapError(err))
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	el, err := e.one(ctx)
	if err != nil {
		return "", err
	}
	res, err := el.Eval(`() => this.textContent || ''`)
	if err != nil {
		return "", fmt.Errorf("text content on %q failed: %w", e.selector, mapError(err))
	}
	return res.Value.Str(), nil
}

func isNotFound(err error) bool { return errors.Is(err, driver.ErrNotFound) }
