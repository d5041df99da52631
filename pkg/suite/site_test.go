package suite

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/entrhq/uisync/pkg/driver/drivertest"
	"github.com/entrhq/uisync/pkg/poll"
)

const (
	testBase     = "https://site.test"
	eventSel     = `[data-role^="event-id-"]`
	starButton   = `[data-role="event-favorite-star"]`
	starIcon     = `svg[data-role="event-favorite-star-icon"]`
	favoriteLink = `a[href*="/favorites"]`
	favorited    = "color: var(--state_favorite)"
)

// fakeSite serves a logged-in account with a live list and a favorites list
// backed by one server-side set.
type fakeSite struct {
	mu     sync.Mutex
	ids    []string
	titles map[string]string
	favs   map[string]bool
}

func newFakeSite(titles ...string) *fakeSite {
	s := &fakeSite{titles: map[string]string{}, favs: map[string]bool{}}
	for i, t := range titles {
		id := fmt.Sprintf("event-id-%d", 100+i)
		s.ids = append(s.ids, id)
		s.titles[id] = t
	}
	return s
}

func (s *fakeSite) favorite(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.favs[id] = true
	}
}

func (s *fakeSite) favorites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range s.ids {
		if s.favs[id] {
			out = append(out, s.titles[id])
		}
	}
	return out
}

func (s *fakeSite) setFav(id string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favs[id] = on
}

func (s *fakeSite) isFav(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favs[id]
}

// setup is a drivertest.Launcher hook.
func (s *fakeSite) setup(p *drivertest.Page) {
	p.Resolver = func(sel string) []*drivertest.Node { return s.resolve(p, sel) }
}

func (s *fakeSite) resolve(p *drivertest.Page, sel string) []*drivertest.Node {
	onFavorites := strings.Contains(p.URL(), "/favorites")
	var ids []string
	for _, id := range s.ids {
		if !onFavorites || s.isFav(id) {
			ids = append(ids, id)
		}
	}

	switch sel {
	case ".user-balance":
		return []*drivertest.Node{{Visible: true, Text: "100 ₴"}}
	case favoriteLink:
		return []*drivertest.Node{{Visible: true, OnClick: func() error {
			p.SetURL(testBase + "/uk/favorites/")
			return nil
		}}}
	case eventSel:
		nodes := make([]*drivertest.Node, 0, len(ids))
		for _, id := range ids {
			nodes = append(nodes, &drivertest.Node{
				Visible: true,
				Text:    s.titles[id] + "\n21:00",
				Attrs:   map[string]string{"data-role": id},
			})
		}
		return nodes
	case starButton:
		if onFavorites {
			return nil
		}
		nodes := make([]*drivertest.Node, 0, len(ids))
		for _, id := range ids {
			id := id
			nodes = append(nodes, &drivertest.Node{Visible: true, OnClick: func() error {
				s.setFav(id, !s.isFav(id))
				return nil
			}})
		}
		return nodes
	}

	for _, id := range ids {
		if sel == fmt.Sprintf(`[data-role="%s"] %s`, id, starButton) && !onFavorites {
			id := id
			return []*drivertest.Node{{Visible: true, OnClick: func() error {
				s.setFav(id, !s.isFav(id))
				return nil
			}}}
		}
		if sel != fmt.Sprintf(`[data-role="%s"] %s`, id, starIcon) {
			continue
		}
		style := "color: var(--text_secondary)"
		if s.isFav(id) {
			style = favorited
		}
		n := &drivertest.Node{Visible: true, Attrs: map[string]string{"style": style}}
		if onFavorites {
			id := id
			n.OnClick = func() error { s.setFav(id, false); return nil }
		}
		return []*drivertest.Node{n}
	}
	return nil
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = testBase
	d := 300 * time.Millisecond
	cfg.Timeouts.Short, cfg.Timeouts.Medium, cfg.Timeouts.Long = d, d, d
	cfg.Timeouts.Scenario = 5 * time.Second
	cfg.Favorites.RemoveInterval = time.Millisecond
	cfg.Favorites.CleanupTimeout = d
	cfg.Artifacts.OutputDir = t.TempDir()
	return cfg
}

var fastPoll = []poll.Option{poll.WithInterval(5 * time.Millisecond)}
