package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDBrowser is the identifier for the browser section.
	SectionIDBrowser = "browser"

	EnginePlaywright = "playwright"
	EngineRod        = "rod"
)

var browserNames = map[string]bool{"chromium": true, "firefox": true, "webkit": true}

// BrowserSection holds the user's preferred browser setup. Run files and
// flags override it.
type BrowserSection struct {
	Engine    string
	Browser   string
	Headless  bool
	SlowMo    time.Duration
	RemoteURL string
	mu        sync.RWMutex
}

// NewBrowserSection returns headless Chromium through Playwright.
func NewBrowserSection() *BrowserSection {
	s := &BrowserSection{}
	s.Reset()
	return s
}

func (s *BrowserSection) ID() string { return SectionIDBrowser }

func (s *BrowserSection) Title() string { return "Browser" }

func (s *BrowserSection) Description() string {
	return "Automation engine and browser used for scenario runs. remote_url attaches rod to a running browser."
}

func (s *BrowserSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"engine":     s.Engine,
		"browser":    s.Browser,
		"headless":   s.Headless,
		"slow_mo":    s.SlowMo.String(),
		"remote_url": s.RemoteURL,
	}
}

func (s *BrowserSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		switch key {
		case "engine", "browser", "remote_url":
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid value type for %s: expected string, got %T", key, value)
			}
			switch key {
			case "engine":
				s.Engine = v
			case "browser":
				s.Browser = v
			default:
				s.RemoteURL = v
			}
		case "headless":
			v, ok := value.(bool)
			if !ok {
				return fmt.Errorf("invalid value type for headless: expected bool, got %T", value)
			}
			s.Headless = v
		case "slow_mo":
			d, err := parseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid slow_mo: %w", err)
			}
			s.SlowMo = d
		}
	}
	return nil
}

func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Engine != EnginePlaywright && s.Engine != EngineRod {
		return fmt.Errorf("engine must be %q or %q, got %q", EnginePlaywright, EngineRod, s.Engine)
	}
	if !browserNames[s.Browser] {
		return fmt.Errorf("unknown browser %q", s.Browser)
	}
	if s.Engine == EngineRod && s.Browser != "chromium" {
		return fmt.Errorf("rod only drives chromium")
	}
	if s.SlowMo < 0 {
		return fmt.Errorf("slow_mo must not be negative")
	}
	return nil
}

func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Engine = EnginePlaywright
	s.Browser = "chromium"
	s.Headless = true
	s.SlowMo = 0
	s.RemoteURL = ""
}

// Snapshot returns a copy safe to read without locking.
func (s *BrowserSection) Snapshot() BrowserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return BrowserSettings{
		Engine:    s.Engine,
		Browser:   s.Browser,
		Headless:  s.Headless,
		SlowMo:    s.SlowMo,
		RemoteURL: s.RemoteURL,
	}
}

// BrowserSettings is a point-in-time copy of BrowserSection.
type BrowserSettings struct {
	Engine    string
	Browser   string
	Headless  bool
	SlowMo    time.Duration
	RemoteURL string
}

// parseDuration accepts "1.5s" strings and bare numbers of milliseconds.
func parseDuration(value any) (time.Duration, error) {
	switch v := value.(type) {
	case string:
		return time.ParseDuration(v)
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("expected duration string or milliseconds, got %T", value)
	}
}
