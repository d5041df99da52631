package pages

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/uisync/pkg/driver/drivertest"
	"github.com/entrhq/uisync/pkg/poll"
)

const testBase = "https://site.test"

// fakeSite renders the live list and the favorites list from one
// server-side favorites set.
type fakeSite struct {
	mu     sync.Mutex
	ids    []string
	titles map[string]string
	favs   map[string]bool

	// ignoreToggles makes star clicks do nothing.
	ignoreToggles bool

	// noStar lists events rendered without a star button.
	noStar map[string]bool
}

func newFakeSite(titles ...string) *fakeSite {
	s := &fakeSite{titles: map[string]string{}, favs: map[string]bool{}, noStar: map[string]bool{}}
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

func (s *fakeSite) favorited() []string {
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

func (s *fakeSite) toggle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ignoreToggles {
		s.favs[id] = !s.favs[id]
	}
}

func (s *fakeSite) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.favs, id)
}

func (s *fakeSite) page() *drivertest.Page {
	p := drivertest.NewContext().NewFakePage()
	p.SetURL(testBase + "/uk/")
	p.Resolver = func(sel string) []*drivertest.Node { return s.resolve(p, sel) }
	return p
}

func (s *fakeSite) listed(onFavorites bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range s.ids {
		if !onFavorites || s.favs[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *fakeSite) star(id string, onFavorites bool) *drivertest.Node {
	s.mu.Lock()
	style := "color: var(--text_secondary)"
	if s.favs[id] {
		style = "color: var(--state_favorite)"
	}
	s.mu.Unlock()

	n := &drivertest.Node{Visible: true, Attrs: map[string]string{"style": style}}
	if onFavorites {
		n.OnClick = func() error { s.remove(id); return nil }
	}
	return n
}

func (s *fakeSite) resolve(p *drivertest.Page, sel string) []*drivertest.Node {
	onFavorites := strings.Contains(p.URL(), "/favorites")
	ids := s.listed(onFavorites)

	switch sel {
	case eventSelector:
		nodes := make([]*drivertest.Node, 0, len(ids))
		for _, id := range ids {
			nodes = append(nodes, &drivertest.Node{
				Visible: true,
				Text:    "\n  " + s.titles[id] + "\n  21:00\n",
				Attrs:   map[string]string{"data-role": id},
			})
		}
		return nodes
	case starButtonSelector:
		if onFavorites {
			return nil
		}
		nodes := make([]*drivertest.Node, 0, len(ids))
		for _, id := range ids {
			if !s.noStar[id] {
				nodes = append(nodes, s.starButton(id))
			}
		}
		return nodes
	case starIconSelector:
		nodes := make([]*drivertest.Node, 0, len(ids))
		for _, id := range ids {
			nodes = append(nodes, s.star(id, onFavorites))
		}
		return nodes
	case `a[href*="/favorites"]`:
		return []*drivertest.Node{{Visible: true, OnClick: func() error {
			p.SetURL(testBase + "/uk/favorites/")
			return nil
		}}}
	}

	for _, id := range ids {
		if sel == scoped(id, starIconSelector) {
			return []*drivertest.Node{s.star(id, onFavorites)}
		}
		if sel == scoped(id, starButtonSelector) && !onFavorites && !s.noStar[id] {
			return []*drivertest.Node{s.starButton(id)}
		}
	}
	return nil
}

func (s *fakeSite) starButton(id string) *drivertest.Node {
	return &drivertest.Node{Visible: true, OnClick: func() error { s.toggle(id); return nil }}
}

func testSurface(p *drivertest.Page) Surface {
	d := 300 * time.Millisecond
	s := NewSurface(p, testBase, Timeouts{Short: d, Medium: d, Long: d}, nil)
	s.PollOptions = []poll.Option{poll.WithInterval(5 * time.Millisecond)}
	return s
}
