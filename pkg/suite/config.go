package suite

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/pages"
	"github.com/entrhq/uisync/pkg/session"
)

// Engines the runner can drive.
const (
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
)

// Session store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config represents the configuration for a suite run
type Config struct {
	// BaseURL is the site under test
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Browser settings
	Engine    string          `yaml:"engine" json:"engine"`
	Browser   string          `yaml:"browser" json:"browser"`
	Headless  bool            `yaml:"headless" json:"headless"`
	Locale    string          `yaml:"locale" json:"locale"`
	Timezone  string          `yaml:"timezone" json:"timezone"`
	Viewport  driver.Viewport `yaml:"viewport" json:"viewport"`
	UserAgent string          `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`

	Timeouts  TimeoutConfig   `yaml:"timeouts" json:"timeouts"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	Favorites FavoritesConfig `yaml:"favorites" json:"favorites"`
	Video     VideoConfig     `yaml:"video" json:"video"`

	// Include and Exclude are glob patterns over scenario names
	Include []string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`

	ScreenshotOnFailure bool `yaml:"screenshot_on_failure" json:"screenshot_on_failure"`
}

// TimeoutConfig holds driver and wait budgets
type TimeoutConfig struct {
	Action     time.Duration `yaml:"action" json:"action"`
	Navigation time.Duration `yaml:"navigation" json:"navigation"`
	Short      time.Duration `yaml:"short" json:"short"`
	Medium     time.Duration `yaml:"medium" json:"medium"`
	Long       time.Duration `yaml:"long" json:"long"`

	// Scenario bounds one whole scenario including setup
	Scenario time.Duration `yaml:"scenario" json:"scenario"`
}

// Pages returns the wait budgets for page surfaces.
func (t TimeoutConfig) Pages() pages.Timeouts {
	return pages.Timeouts{Short: t.Short, Medium: t.Medium, Long: t.Long}
}

// SessionConfig controls the session cache
type SessionConfig struct {
	// Backend is "file" or "sqlite"
	Backend string `yaml:"backend" json:"backend"`

	// Path is the session file or database
	Path string `yaml:"path" json:"path"`

	// Profile names the row in the sqlite store
	Profile string `yaml:"profile,omitempty" json:"profile,omitempty"`

	TTL             time.Duration `yaml:"ttl" json:"ttl"`
	CookieFragments []string      `yaml:"cookie_fragments,omitempty" json:"cookie_fragments,omitempty"`

	// Disabled forces a form login in every scenario
	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// FavoritesConfig tunes the favorites scenario and its cleanup
type FavoritesConfig struct {
	Count          int           `yaml:"count" json:"count"`
	RemoveInterval time.Duration `yaml:"remove_interval" json:"remove_interval"`
	CleanupTimeout time.Duration `yaml:"cleanup_timeout" json:"cleanup_timeout"`
}

// VideoConfig names the video the channel scenario searches for
type VideoConfig struct {
	Query string `yaml:"query" json:"query"`

	// Match is the text a result link must contain
	Match string `yaml:"match" json:"match"`
}

// ArtifactConfig defines artifact generation settings
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	JSON      bool   `yaml:"json" json:"json"`
	Markdown  bool   `yaml:"markdown" json:"markdown"`
}

// LoggingConfig defines console output settings
type LoggingConfig struct {
	// Verbosity: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	switch c.Engine {
	case EnginePlaywright, EngineRod:
	default:
		return fmt.Errorf("invalid engine: %s (must be %s or %s)", c.Engine, EnginePlaywright, EngineRod)
	}

	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height)
	}

	if c.Timeouts.Action <= 0 || c.Timeouts.Navigation <= 0 {
		return fmt.Errorf("action and navigation timeouts must be positive")
	}
	if c.Timeouts.Short <= 0 || c.Timeouts.Medium <= 0 || c.Timeouts.Long <= 0 {
		return fmt.Errorf("short, medium and long timeouts must be positive")
	}

	switch c.Session.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("invalid session backend: %s (must be %s or %s)", c.Session.Backend, BackendFile, BackendSQLite)
	}
	if c.Session.TTL < 0 {
		return fmt.Errorf("session ttl cannot be negative")
	}

	if c.Favorites.Count <= 0 {
		return fmt.Errorf("favorites count must be positive")
	}

	if _, err := NewPatternMatcher(c.Include, c.Exclude); err != nil {
		return err
	}

	if c.Artifacts.Enabled && c.Artifacts.OutputDir == "" {
		return fmt.Errorf("artifacts output_dir is required when artifacts are enabled")
	}

	if c.Logging.Verbosity != "" {
		switch c.Logging.Verbosity {
		case "quiet", "normal", "verbose", "debug":
		default:
			return fmt.Errorf("invalid logging verbosity: %s (must be quiet, normal, verbose, or debug)", c.Logging.Verbosity)
		}
	} else {
		c.Logging.Verbosity = "normal"
	}

	return nil
}

// ContextOptions returns the options for a fresh browsing context.
func (c *Config) ContextOptions() driver.ContextOptions {
	return driver.ContextOptions{
		BaseURL:           c.BaseURL,
		Locale:            c.Locale,
		TimezoneID:        c.Timezone,
		UserAgent:         c.UserAgent,
		Viewport:          c.Viewport,
		ActionTimeout:     c.Timeouts.Action,
		NavigationTimeout: c.Timeouts.Navigation,
	}
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  "https://favbet.ua",
		Engine:   EnginePlaywright,
		Browser:  "chromium",
		Headless: true,
		Locale:   "uk-UA",
		Timezone: "Europe/Kiev",
		Viewport: driver.Viewport{Width: 1280, Height: 720},
		Timeouts: TimeoutConfig{
			Action:     15 * time.Second,
			Navigation: 30 * time.Second,
			Short:      5 * time.Second,
			Medium:     10 * time.Second,
			Long:       30 * time.Second,
			Scenario:   2 * time.Minute,
		},
		Session: SessionConfig{
			Backend:         BackendFile,
			Path:            session.DefaultPath,
			Profile:         "default",
			TTL:             session.DefaultTTL,
			CookieFragments: session.DefaultCookieFragments,
		},
		Favorites: FavoritesConfig{
			Count:          3,
			RemoveInterval: 150 * time.Millisecond,
			CleanupTimeout: 10 * time.Second,
		},
		Video: VideoConfig{
			Query: "FAVBET | Support Those Who Support Us: ENGLAND | 2022 FIFA World Cup",
			Match: "FAVBET | Support Those Who Support Us: ENGLAND",
		},
		Artifacts: ArtifactConfig{
			Enabled:   true,
			OutputDir: "test-results",
			JSON:      true,
			Markdown:  true,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
		ScreenshotOnFailure: true,
	}
}

// LoadConfig reads a YAML run file on top of DefaultConfig. Keys missing
// from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := LoadConfigInto(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigInto decodes the YAML run file at path over cfg, so keys the
// file omits keep the values cfg already had, and validates the result.
func LoadConfigInto(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
