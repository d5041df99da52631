package pages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/locator"
)

const (
	// LivePath lists every live event.
	LivePath = "/uk/live/all/"

	eventSelector      = `[data-role^="event-id-"]`
	starIconSelector   = `svg[data-role="event-favorite-star-icon"]`
	starButtonSelector = `[data-role="event-favorite-star"]`
	favoritedStyle     = "color: var(--state_favorite)"
	loadingIndicator   = `.loading, .spinner, [class*="loader"]`
)

var noEvents = locator.Selectors(`.no-events`, `.empty-message`, `*:has-text("Немає подій")`, `*:has-text("СПОРТ НЕ ЗНАЙДЕНО")`)

// LiveEvent is one row of the live list.
type LiveEvent struct {
	ID        string
	Title     string
	Favorited bool
}

// hasRole reports whether ID came from the row's data-role rather than
// its position.
func (e LiveEvent) hasRole() bool { return strings.HasPrefix(e.ID, "event-id-") }

// LivePage is the live events list.
type LivePage struct {
	Surface
}

// NewLivePage returns a live page on s.
func NewLivePage(s Surface) *LivePage { return &LivePage{Surface: s} }

// Open navigates to the live list and waits for events.
func (l *LivePage) Open(ctx context.Context) error {
	if err := l.Surface.Open(ctx, LivePath); err != nil {
		return err
	}
	return l.WaitForEvents(ctx)
}

// WaitForEvents waits for the spinner to go away and then for either the
// first event or the empty-list message.
func (l *LivePage) WaitForEvents(ctx context.Context) error {
	spinnerCtx, cancel := driver.WithTimeout(ctx, l.Timeouts.Short)
	if err := l.Page.Locate(loadingIndicator).First().WaitFor(spinnerCtx, driver.StateHidden); err != nil {
		l.Logger.Debugf("spinner still visible: %v", err)
	}
	cancel()

	err := l.until(ctx, func(ctx context.Context) (bool, error) {
		if ok, err := noEvents.Any(ctx, l.Page); err == nil && ok {
			return true, nil
		}
		ok, err := l.Page.Locate(eventSelector).First().IsVisible(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, errors.New("no live event is visible")
		}
		return true, nil
	}, l.Timeouts.Medium)
	if err != nil {
		return fmt.Errorf("live events did not load: %w", err)
	}
	return nil
}

// HasNoEvents reports whether the site says there is nothing live.
func (l *LivePage) HasNoEvents(ctx context.Context) (bool, error) {
	return noEvents.Any(ctx, l.Page)
}

// EventCount returns the number of event containers on the page.
func (l *LivePage) EventCount(ctx context.Context) (int, error) {
	return l.Page.Locate(eventSelector).Count(ctx)
}

// EventAt reads the i-th event. ok is false when it is not visible.
func (l *LivePage) EventAt(ctx context.Context, i int) (LiveEvent, bool, error) {
	container := l.Page.Locate(eventSelector).Nth(i)
	visible, err := container.IsVisible(ctx)
	if err != nil || !visible {
		return LiveEvent{}, false, err
	}

	id, _, err := container.Attribute(ctx, "data-role")
	if err != nil {
		return LiveEvent{}, false, fmt.Errorf("failed to read event %d: %w", i, err)
	}
	text, err := container.Text(ctx)
	if err != nil {
		l.Logger.Debugf("event %d has no readable text: %v", i, err)
	}

	ev := LiveEvent{ID: id, Title: Title(text, i)}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("event-%d", i)
		ev.Favorited = l.starFavorited(ctx, l.Page.Locate(starIconSelector).Nth(i))
	} else {
		ev.Favorited = l.starFavorited(ctx, l.Page.Locate(scoped(ev.ID, starIconSelector)).First())
	}
	return ev, true, nil
}

func (l *LivePage) starFavorited(ctx context.Context, star driver.Element) bool {
	style, _, err := star.Attribute(ctx, "style")
	if err != nil {
		return false
	}
	return strings.Contains(style, favoritedStyle)
}

// ToggleFavorite clicks the star inside the i-th event. It reports false
// when the event or its star is not visible.
func (l *LivePage) ToggleFavorite(ctx context.Context, i int) (bool, error) {
	ev, ok, err := l.EventAt(ctx, i)
	if err != nil || !ok {
		return false, err
	}
	return l.toggle(ctx, ev, i)
}

// toggle clicks ev's own star button. Rows without a data-role fall back to
// the i-th star on the page.
func (l *LivePage) toggle(ctx context.Context, ev LiveEvent, i int) (bool, error) {
	btn := l.Page.Locate(starButtonSelector).Nth(i)
	if ev.hasRole() {
		btn = l.Page.Locate(scoped(ev.ID, starButtonSelector)).First()
	}
	if ok, err := btn.IsVisible(ctx); err != nil || !ok {
		return false, err
	}
	if err := btn.Click(ctx); err != nil {
		return false, fmt.Errorf("failed to toggle favorite %s: %w", ev.ID, err)
	}
	return true, nil
}

// AddFavorites marks the first n events as favorites and returns their
// titles. Events that are already favorites are left alone and still
// reported, so calling it twice yields the same set.
func (l *LivePage) AddFavorites(ctx context.Context, n int) ([]string, error) {
	total, err := l.EventCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count live events: %w", err)
	}
	n = min(n, total)

	var titles []string
	for i := 0; i < n; i++ {
		ev, ok, err := l.EventAt(ctx, i)
		if err != nil {
			return titles, err
		}
		if !ok {
			continue
		}
		if ev.Favorited {
			l.Logger.Debugf("%q is already a favorite", ev.Title)
			titles = append(titles, ev.Title)
			continue
		}

		toggled, err := l.toggle(ctx, ev, i)
		if err != nil {
			return titles, err
		}
		if !toggled {
			continue
		}
		if err := l.waitFavorited(ctx, ev, i); err != nil {
			return titles, err
		}
		titles = append(titles, ev.Title)
	}
	l.Logger.Infof("favorited %d of %d requested events", len(titles), n)
	return titles, nil
}

func (l *LivePage) waitFavorited(ctx context.Context, ev LiveEvent, i int) error {
	star := l.Page.Locate(starIconSelector).Nth(i)
	if ev.hasRole() {
		star = l.Page.Locate(scoped(ev.ID, starIconSelector)).First()
	}
	err := l.until(ctx, func(ctx context.Context) (bool, error) {
		if !l.starFavorited(ctx, star) {
			return false, fmt.Errorf("%s is not marked as favorite", ev.ID)
		}
		return true, nil
	}, l.Timeouts.Short)
	if err != nil {
		return fmt.Errorf("favorite did not stick: %w", err)
	}
	return nil
}
