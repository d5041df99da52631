package pages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/locator"
	"github.com/entrhq/uisync/pkg/statesync"
)

const favoritesPathFragment = "/favorites"

var (
	favoritesLink  = locator.Selectors(`a[href*="/favorites"]`, `a:has-text("Обране")`, `a:has-text("Favorites")`)
	favoritesEmpty = locator.Selectors(`.empty-favorites`, `.no-favorites`, `*:has-text("Немає обраних")`, `*:has-text("No favorites")`)
)

// FavoritesPage is the account's favorites list. Every read goes to the
// rendered page; nothing is cached between calls.
type FavoritesPage struct {
	Surface
}

var _ statesync.FavoritesBoard = (*FavoritesPage)(nil)

// NewFavoritesPage returns a favorites page on s.
func NewFavoritesPage(s Surface) *FavoritesPage { return &FavoritesPage{Surface: s} }

// Open follows the favorites link in the header.
func (f *FavoritesPage) Open(ctx context.Context) error {
	if err := f.click(ctx, favoritesLink, f.Timeouts.Medium); err != nil {
		return fmt.Errorf("failed to open favorites: %w", err)
	}
	if err := f.WaitForLoad(ctx); err != nil {
		return err
	}
	f.waitReady(ctx)
	return nil
}

// Refresh reloads the list from the server, opening it first if needed.
func (f *FavoritesPage) Refresh(ctx context.Context) error {
	if !strings.Contains(f.Page.URL(), favoritesPathFragment) {
		return f.Open(ctx)
	}
	if err := f.Reload(ctx); err != nil {
		return err
	}
	f.waitReady(ctx)
	return nil
}

// waitReady waits for either an entry or the empty message. Neither showing
// up is not an error: the count checks that follow decide.
func (f *FavoritesPage) waitReady(ctx context.Context) {
	err := f.until(ctx, func(ctx context.Context) (bool, error) {
		if ok, err := favoritesEmpty.Any(ctx, f.Page); err == nil && ok {
			return true, nil
		}
		ok, err := f.Page.Locate(eventSelector).First().IsVisible(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, errors.New("favorites list is still empty")
		}
		return true, nil
	}, f.Timeouts.Medium)
	if err != nil {
		f.Logger.Debugf("favorites list not ready: %v", err)
	}
}

// Count returns the number of listed entries.
func (f *FavoritesPage) Count(ctx context.Context) (int, error) {
	return f.Page.Locate(eventSelector).Count(ctx)
}

// Entries reads every listed entry in page order.
func (f *FavoritesPage) Entries(ctx context.Context) ([]statesync.FavoriteEntry, error) {
	containers := f.Page.Locate(eventSelector)
	n, err := containers.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count favorites: %w", err)
	}

	entries := make([]statesync.FavoriteEntry, 0, n)
	for i := 0; i < n; i++ {
		c := containers.Nth(i)
		id, _, err := c.Attribute(ctx, "data-role")
		if errors.Is(err, driver.ErrNotFound) {
			// The list shrank while it was being read.
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read favorite %d: %w", i, err)
		}
		if id == "" {
			id = fmt.Sprintf("favorite-%d", i)
		}
		text, err := c.Text(ctx)
		if err != nil && !errors.Is(err, driver.ErrNotFound) {
			return nil, fmt.Errorf("failed to read favorite %d: %w", i, err)
		}
		entries = append(entries, statesync.FavoriteEntry{ID: id, Title: Title(text, i)})
	}
	return entries, nil
}

// Remove clicks the star of the entry with entry.ID. An entry that is no
// longer listed is reported as NotFound.
func (f *FavoritesPage) Remove(ctx context.Context, entry statesync.FavoriteEntry) (statesync.RemoveOutcome, error) {
	return f.removeStar(ctx, f.Page.Locate(scoped(entry.ID, starIconSelector)).First(), entry.Title)
}

// RemoveAt clicks the i-th star on the page. Indices shift as entries go
// away, so callers that remove several entries should use Remove.
func (f *FavoritesPage) RemoveAt(ctx context.Context, i int) (statesync.RemoveOutcome, error) {
	return f.removeStar(ctx, f.Page.Locate(starIconSelector).Nth(i), fmt.Sprintf("#%d", i))
}

func (f *FavoritesPage) removeStar(ctx context.Context, star driver.Element, what string) (statesync.RemoveOutcome, error) {
	ok, err := star.IsVisible(ctx)
	if err != nil {
		return statesync.NotFound, err
	}
	if !ok {
		f.Logger.Debugf("favorite %s is no longer listed", what)
		return statesync.NotFound, nil
	}
	// The icon sits under an overlay that swallows real clicks.
	if err := star.DispatchClick(ctx); err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			return statesync.NotFound, nil
		}
		return statesync.NotFound, fmt.Errorf("failed to remove favorite %s: %w", what, err)
	}
	return statesync.Removed, nil
}

// IsPresent reports whether some entry matches title.
func (f *FavoritesPage) IsPresent(ctx context.Context, title string) (bool, error) {
	entries, err := f.Entries(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if statesync.TitleMatches(e.Title, title) {
			return true, nil
		}
	}
	return false, nil
}
