package pages

import (
	"context"
	"fmt"
	"regexp"

	"github.com/entrhq/uisync/pkg/locator"
)

// Channel describes the site's video channel as linked from its footer.
type Channel struct {
	Link        string         `yaml:"link"`
	URLPattern  *regexp.Regexp `yaml:"-"`
	Title       *regexp.Regexp `yaml:"-"`
	Name        string         `yaml:"name"`
	Handle      string         `yaml:"handle"`
	Description string         `yaml:"description"`
}

// DefaultChannel is the official YouTube channel.
func DefaultChannel() Channel {
	return Channel{
		Link:        "https://www.youtube.com/@favbetua",
		URLPattern:  regexp.MustCompile(`youtube\.com/@favbetua`),
		Title:       regexp.MustCompile(`Favbet UA - YouTube`),
		Name:        "Favbet UA",
		Handle:      "@favbetua",
		Description: "Офіційний ютуб-канал компанії Favbet",
	}
}

var (
	videoSearchBox    = locator.Selectors(`input[name="search_query"]`, `input#search`, `input[placeholder="Search"]`, `input[aria-label="Search"]`)
	videoSearchButton = locator.Selectors(`button[aria-label="Search"]`, `#search-icon-legacy`, `button.ytSearchboxComponentSearchButton`)
)

// ChannelPage follows the footer link to the channel.
type ChannelPage struct {
	Surface
	Channel Channel
}

// NewChannelPage returns a channel page on s.
func NewChannelPage(s Surface, ch Channel) *ChannelPage {
	return &ChannelPage{Surface: s, Channel: ch}
}

// Follow clicks the footer link and returns the tab it opens.
func (c *ChannelPage) Follow(ctx context.Context) (*ChannelTab, error) {
	if err := c.ScrollToBottom(ctx); err != nil {
		c.Logger.Debugf("could not scroll to footer: %v", err)
	}

	link := c.Page.Locate(fmt.Sprintf(`a[href="%s"]`, c.Channel.Link)).First()
	if err := c.visible(ctx, link, "channel link", c.Timeouts.Medium); err != nil {
		return nil, err
	}

	popup, err := c.Page.ExpectPopup(ctx, func() error { return link.Click(ctx) })
	if err != nil {
		return nil, fmt.Errorf("channel did not open in a new tab: %w", err)
	}
	tab := &ChannelTab{Surface: c.on(popup), Channel: c.Channel}
	if err := tab.WaitForLoad(ctx); err != nil {
		return nil, err
	}
	return tab, nil
}

// ChannelTab is the channel opened in its own tab.
type ChannelTab struct {
	Surface
	Channel Channel
}

// Verify checks the tab shows the expected channel.
func (t *ChannelTab) Verify(ctx context.Context) error {
	err := t.until(ctx, func(ctx context.Context) (bool, error) {
		if u := t.Page.URL(); t.Channel.URLPattern != nil && !t.Channel.URLPattern.MatchString(u) {
			return false, fmt.Errorf("url %q does not match %s", u, t.Channel.URLPattern)
		}
		title, err := t.Page.Title(ctx)
		if err != nil {
			return false, err
		}
		if t.Channel.Title != nil && !t.Channel.Title.MatchString(title) {
			return false, fmt.Errorf("title %q does not match %s", title, t.Channel.Title)
		}
		return true, nil
	}, t.Timeouts.Medium)
	if err != nil {
		return fmt.Errorf("wrong channel: %w", err)
	}

	checks := []struct{ what, sel string }{
		{"channel name", fmt.Sprintf(`h1:has-text(%q)`, t.Channel.Name)},
		{"channel handle", fmt.Sprintf(`*:has-text(%q)`, t.Channel.Handle)},
		{"channel description", fmt.Sprintf(`*:has-text(%q)`, t.Channel.Description)},
	}
	for _, c := range checks {
		if err := t.visible(ctx, t.Page.Locate(c.sel).First(), c.what, t.Timeouts.Medium); err != nil {
			return err
		}
	}
	return nil
}

// FindVideo searches the channel for query and waits for a result link
// whose text contains want.
func (t *ChannelTab) FindVideo(ctx context.Context, query, want string) error {
	box, err := t.find(ctx, videoSearchBox, t.Timeouts.Medium)
	if err != nil {
		return fmt.Errorf("search box: %w", err)
	}
	if err := box.Fill(ctx, query); err != nil {
		return fmt.Errorf("failed to type search: %w", err)
	}
	if err := t.click(ctx, videoSearchButton, t.Timeouts.Short); err != nil {
		return fmt.Errorf("failed to run search: %w", err)
	}
	if err := t.WaitForLoad(ctx); err != nil {
		return err
	}

	result := t.Page.Locate(fmt.Sprintf(`a:has-text(%q)`, want)).First()
	return t.visible(ctx, result, fmt.Sprintf("video %q", want), t.Timeouts.Medium)
}

// Close closes the tab.
func (t *ChannelTab) Close() error { return t.Page.Close() }
