// Package main provides the uisync command, which runs the built-in UI
// scenarios against a site in a real browser and exits non-zero when any of
// them fails.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/uisync/pkg/config"
	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/driver/pwdriver"
	"github.com/entrhq/uisync/pkg/driver/roddriver"
	"github.com/entrhq/uisync/pkg/logging"
	"github.com/entrhq/uisync/pkg/session"
	"github.com/entrhq/uisync/pkg/statesync"
	"github.com/entrhq/uisync/pkg/suite"
)

const version = "0.1.0"

// CLIConfig holds command-line arguments
type CLIConfig struct {
	ConfigFile  string
	UserConfig  string
	BaseURL     string
	Engine      string
	Headless    string
	Run         string
	Skip        string
	OutputDir   string
	Timeout     time.Duration
	Verbosity   string
	ShowVersion bool
}

func main() {
	cliConfig := parseFlags()

	if cliConfig.ShowVersion {
		fmt.Printf("uisync version %s\n", version)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	failed, err := run(ctx, cliConfig)
	if err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(1)
	}
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigFile, "config", os.Getenv("UISYNC_CONFIG"), "Path to YAML run file")
	flag.StringVar(&cfg.UserConfig, "user-config", "", "Path to user settings (default ~/.uisync/config.json)")
	flag.StringVar(&cfg.BaseURL, "base-url", os.Getenv("UISYNC_BASE_URL"), "Site under test")
	flag.StringVar(&cfg.Engine, "engine", "", "Browser engine: playwright or rod")
	flag.StringVar(&cfg.Headless, "headless", "", "Run the browser headless: true or false")
	flag.StringVar(&cfg.Run, "run", "", "Comma-separated glob patterns of scenarios to run")
	flag.StringVar(&cfg.Skip, "skip", "", "Comma-separated glob patterns of scenarios to skip")
	flag.StringVar(&cfg.OutputDir, "output", "", "Directory for results.json, summary.md and screenshots")
	flag.DurationVar(&cfg.Timeout, "timeout", 0, "Per-scenario timeout (e.g., 2m)")
	flag.StringVar(&cfg.Verbosity, "v", "", "Console verbosity: quiet, normal, verbose or debug")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "uisync - browser scenarios for shared UI state\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  uisync [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  UISYNC_USERNAME, UISYNC_PASSWORD      test account (TEST_USER_EMAIL, TEST_USER_PASSWORD also accepted)\n")
		fmt.Fprintf(os.Stderr, "  UISYNC_CONFIG, UISYNC_BASE_URL         defaults for -config and -base-url\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run every scenario with the defaults\n")
		fmt.Fprintf(os.Stderr, "  uisync\n\n")
		fmt.Fprintf(os.Stderr, "  # Only the favorites scenario, watching the browser\n")
		fmt.Fprintf(os.Stderr, "  uisync -run 'favorites-*' -headless=false\n\n")
		fmt.Fprintf(os.Stderr, "  # Use a run file and the rod engine\n")
		fmt.Fprintf(os.Stderr, "  uisync -config uisync.yaml -engine rod\n\n")
	}

	flag.Parse()
	return cfg
}

func run(ctx context.Context, cliConfig *CLIConfig) (bool, error) {
	if err := config.Initialize(cliConfig.UserConfig); err != nil {
		// The user file is optional; built-in defaults still apply.
		log.Printf("Warning: failed to load user config: %v", err)
	}
	browser := userBrowser()

	runConfig, err := loadConfig(cliConfig, browser)
	if err != nil {
		return false, err
	}

	logging.SetLevel(logging.ParseLevel(runConfig.Logging.Verbosity))
	logger, logErr := logging.NewLogger("uisync")
	if logErr != nil {
		log.Printf("Warning: %v", logErr)
	}
	defer logger.Close()

	launcher, err := newLauncher(runConfig, browser, logger)
	if err != nil {
		return false, err
	}
	defer func() {
		if closeErr := launcher.Close(); closeErr != nil {
			logger.Warnf("failed to close browser: %v", closeErr)
		}
	}()

	cache, closeCache, err := newCache(runConfig, logger)
	if err != nil {
		return false, err
	}
	defer closeCache()

	runner, err := suite.NewRunner(runConfig, suite.Options{
		Launcher:    launcher,
		Cache:       cache,
		Credentials: credentials(os.Getenv, config.GetCredentials()),
		RunID:       logger.RunID(),
		Console:     suite.NewLogger(suite.ParseLogLevel(runConfig.Logging.Verbosity)),
		Logger:      logger,
	})
	if err != nil {
		return false, err
	}

	summary, err := runner.Run(ctx, suite.Builtin())
	if errors.Is(err, suite.ErrNoScenarios) {
		return false, fmt.Errorf("%w (run %q, skip %q)", err, cliConfig.Run, cliConfig.Skip)
	}
	if summary == nil {
		return false, err
	}
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	if path := logger.LogPath(); path != "" {
		fmt.Printf("Log: %s\n", path)
	}
	return summary.Failed(), nil
}

func userBrowser() config.BrowserSettings {
	if s := config.GetBrowser(); s != nil {
		return s.Snapshot()
	}
	return config.NewBrowserSection().Snapshot()
}

// loadConfig layers user settings, the run file and flags over the defaults,
// each overriding the one before.
func loadConfig(cliConfig *CLIConfig, browser config.BrowserSettings) (*suite.Config, error) {
	cfg := suite.DefaultConfig()
	cfg.Engine = browser.Engine
	cfg.Browser = browser.Browser
	cfg.Headless = browser.Headless

	if cliConfig.ConfigFile != "" {
		if err := suite.LoadConfigInto(cfg, cliConfig.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := applyFlags(cfg, cliConfig); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *suite.Config, cliConfig *CLIConfig) error {
	if cliConfig.BaseURL != "" {
		cfg.BaseURL = cliConfig.BaseURL
	}
	if cliConfig.Engine != "" {
		cfg.Engine = cliConfig.Engine
	}
	switch cliConfig.Headless {
	case "":
	case "true", "1":
		cfg.Headless = true
	case "false", "0":
		cfg.Headless = false
	default:
		return fmt.Errorf("invalid -headless value: %s (must be 'true' or 'false')", cliConfig.Headless)
	}
	if patterns := suite.SplitPatterns(cliConfig.Run); len(patterns) > 0 {
		cfg.Include = patterns
	}
	if patterns := suite.SplitPatterns(cliConfig.Skip); len(patterns) > 0 {
		cfg.Exclude = patterns
	}
	if cliConfig.OutputDir != "" {
		cfg.Artifacts.OutputDir = cliConfig.OutputDir
	}
	if cliConfig.Timeout > 0 {
		cfg.Timeouts.Scenario = cliConfig.Timeout
	}
	if cliConfig.Verbosity != "" {
		cfg.Logging.Verbosity = cliConfig.Verbosity
	}
	return nil
}

// credentials prefers the environment over the user settings file.
func credentials(getenv func(string) string, stored *config.CredentialsSection) statesync.Credentials {
	creds := statesync.Credentials{
		Username:   firstNonEmpty(getenv("UISYNC_USERNAME"), getenv("TEST_USER_EMAIL")),
		Password:   firstNonEmpty(getenv("UISYNC_PASSWORD"), getenv("TEST_USER_PASSWORD")),
		RememberMe: true,
	}
	if stored == nil || (creds.Username != "" && creds.Password != "") {
		return creds
	}

	username, password := stored.Get()
	if creds.Username == "" {
		creds.Username = username
	}
	if creds.Password == "" {
		creds.Password = password
	}
	if remember, ok := stored.Data()["remember_me"].(bool); ok && username != "" {
		creds.RememberMe = remember
	}
	return creds
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func newLauncher(cfg *suite.Config, browser config.BrowserSettings, logger *logging.Logger) (driver.Launcher, error) {
	switch cfg.Engine {
	case suite.EngineRod:
		l, err := roddriver.Launch(roddriver.Options{
			Headless:  cfg.Headless,
			RemoteURL: browser.RemoteURL,
			Logger:    logger.With("rod"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start rod: %w", err)
		}
		return l, nil
	default:
		l, err := pwdriver.Launch(pwdriver.Options{
			Headless: cfg.Headless,
			Browser:  cfg.Browser,
			SlowMo:   browser.SlowMo,
			Logger:   logger.With("playwright"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start playwright: %w", err)
		}
		return l, nil
	}
}

// newCache returns a nil cache when session reuse is disabled, which makes
// every scenario log in through the form.
func newCache(cfg *suite.Config, logger *logging.Logger) (*session.Cache, func(), error) {
	noop := func() {}
	if cfg.Session.Disabled {
		return nil, noop, nil
	}

	var (
		store   session.Store
		closeFn = noop
	)
	switch cfg.Session.Backend {
	case suite.BackendSQLite:
		s, err := session.OpenSQLiteStore(cfg.Session.Path, cfg.Session.Profile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session store: %w", err)
		}
		store = s
		closeFn = func() {
			if err := s.Close(); err != nil {
				logger.Warnf("failed to close session store: %v", err)
			}
		}
	default:
		store = session.NewFileStore(cfg.Session.Path)
	}

	opts := []session.Option{
		session.WithTTL(cfg.Session.TTL),
		session.WithLogger(logger.With("session")),
	}
	if len(cfg.Session.CookieFragments) > 0 {
		opts = append(opts, session.WithCookieFragments(cfg.Session.CookieFragments...))
	}
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Hostname() != "" {
		opts = append(opts, session.WithSite(u.Hostname()))
	}
	return session.NewCache(store, opts...), closeFn, nil
}
