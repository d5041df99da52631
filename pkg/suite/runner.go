package suite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/logging"
	"github.com/entrhq/uisync/pkg/pages"
	"github.com/entrhq/uisync/pkg/poll"
	"github.com/entrhq/uisync/pkg/session"
	"github.com/entrhq/uisync/pkg/statesync"
)

const screenshotTimeout = 10 * time.Second

// ErrNoScenarios is returned when the filters leave nothing to run.
var ErrNoScenarios = errors.New("no scenarios match the include/exclude patterns")

// Options are the collaborators a Runner needs besides its Config.
type Options struct {
	Launcher driver.Launcher

	// Cache is nil to log in through the form in every scenario.
	Cache       *session.Cache
	Credentials statesync.Credentials

	RunID   string
	Console *Logger
	Logger  *logging.Logger

	// PollOptions are passed to every convergence loop.
	PollOptions []poll.Option
}

// Runner executes scenarios one at a time. The favorites list is one
// mutable resource per account, so scenarios never overlap and are never
// retried.
type Runner struct {
	config    *Config
	opts      Options
	matcher   *PatternMatcher
	artifacts *ArtifactWriter
	now       func() time.Time
}

// NewRunner validates config and returns a runner.
func NewRunner(config *Config, opts Options) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Launcher == nil {
		return nil, errors.New("a browser launcher is required")
	}

	matcher, err := NewPatternMatcher(config.Include, config.Exclude)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		config:  config,
		opts:    opts,
		matcher: matcher,
		now:     time.Now,
	}
	if config.Artifacts.Enabled {
		r.artifacts = NewArtifactWriter(config.Artifacts)
	}
	return r, nil
}

// Run executes the scenarios that pass the include/exclude filters and
// returns their summary. The error is non-nil only when nothing matched or
// artifacts could not be written; scenario failures are in the summary.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*Summary, error) {
	selected := r.matcher.Filter(scenarios)
	if len(selected) == 0 {
		return nil, ErrNoScenarios
	}

	summary := &Summary{
		RunID:     r.opts.RunID,
		BaseURL:   r.config.BaseURL,
		Engine:    r.config.Engine,
		StartTime: r.now(),
	}

	r.opts.Console.Header(fmt.Sprintf("uisync: %d scenario(s) against %s", len(selected), r.config.BaseURL))
	r.opts.Logger.Infof("run %s: %d scenario(s), engine %s", r.opts.RunID, len(selected), r.config.Engine)

	for _, sc := range selected {
		var res Result
		if ctx.Err() != nil {
			res = Result{Name: sc.Name(), Status: StatusSkipped, Error: "run cancelled"}
		} else {
			res = r.runScenario(ctx, sc)
		}
		r.opts.Console.Result(res)
		summary.add(res)
	}

	summary.finish(r.now())
	r.opts.Console.Summary(summary)
	r.opts.Logger.Infof("run finished: %s (%d passed, %d failed, %d skipped)",
		summary.Status, summary.Metrics.Passed, summary.Metrics.Failed, summary.Metrics.Skipped)

	if r.artifacts != nil {
		if err := r.artifacts.WriteAll(summary); err != nil {
			return summary, fmt.Errorf("failed to write artifacts: %w", err)
		}
		r.opts.Console.Verbosef("artifacts written to %s", r.config.Artifacts.OutputDir)
	}
	return summary, nil
}

func (r *Runner) runScenario(ctx context.Context, sc Scenario) Result {
	res := Result{Name: sc.Name(), StartTime: r.now()}
	r.opts.Console.Section(sc.Name())
	logger := r.opts.Logger.With(sc.Name())

	sctx, cancel := driver.WithTimeout(ctx, r.config.Timeouts.Scenario)
	defer cancel()

	env, closeEnv, err := r.newEnv(sctx, logger)
	if err != nil {
		return r.finish(res, fmt.Errorf("failed to open browser context: %w", err))
	}
	defer closeEnv()

	err = r.execute(sctx, sc, env)
	res.Steps = env.Steps()
	res.Cleanup = env.Cleanup
	if err != nil && r.config.ScreenshotOnFailure {
		res.Screenshot = r.screenshot(ctx, env, sc.Name())
	}
	return r.finish(res, err)
}

func (r *Runner) execute(ctx context.Context, sc Scenario, env *Env) error {
	if err := env.Surface.Open(ctx, "/"); err != nil {
		return fmt.Errorf("failed to open home page: %w", err)
	}

	if sc.RequiresAuth() {
		if err := env.Sync.EnsureAuthenticated(ctx, env.Page); err != nil {
			return err
		}
	}

	if p, ok := sc.(Preparer); ok {
		if err := p.Prepare(ctx, env); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}

	return sc.Run(ctx, env)
}

// newEnv opens a fresh browsing context so no cookies, storage or tabs
// leak between scenarios.
func (r *Runner) newEnv(ctx context.Context, logger *logging.Logger) (*Env, func(), error) {
	bc, err := r.opts.Launcher.NewContext(ctx, r.config.ContextOptions())
	if err != nil {
		return nil, nil, err
	}
	page, err := bc.NewPage(ctx)
	if err != nil {
		_ = bc.Close()
		return nil, nil, err
	}

	surface := pages.NewSurface(page, r.config.BaseURL, r.config.Timeouts.Pages(), logger)
	surface.PollOptions = r.opts.PollOptions

	syncer := statesync.New(r.opts.Cache, pages.NewLoginPage(surface), statesync.Config{
		Indicators:       pages.LoggedInIndicators(),
		Credentials:      r.opts.Credentials,
		HomeURL:          surface.URL("/"),
		IndicatorTimeout: r.config.Timeouts.Short,
		CleanupTimeout:   r.config.Favorites.CleanupTimeout,
		RemoveInterval:   r.config.Favorites.RemoveInterval,
		PollOptions:      r.opts.PollOptions,
	}, logger.With("statesync"))

	env := &Env{
		Page:    page,
		Surface: surface,
		Sync:    syncer,
		Config:  r.config,
		Console: r.opts.Console,
		Logger:  logger,
	}
	closeEnv := func() {
		if err := bc.Close(); err != nil {
			logger.Warnf("failed to close browser context: %v", err)
		}
	}
	return env, closeEnv, nil
}

// screenshot captures the failing page. It runs on a context detached from
// the scenario deadline, which has usually expired by now.
func (r *Runner) screenshot(ctx context.Context, env *Env, name string) string {
	dir := filepath.Join(r.config.Artifacts.OutputDir, "screenshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		env.Logger.Warnf("failed to create screenshot directory: %v", err)
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-failure-%d.png", name, r.now().UnixMilli()))

	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()
	if err := env.Surface.Screenshot(shotCtx, path); err != nil {
		env.Logger.Warnf("%v", err)
		return ""
	}
	return path
}

func (r *Runner) finish(res Result, err error) Result {
	res.EndTime = r.now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	if err == nil {
		res.Status = StatusPassed
		return res
	}
	res.Status = StatusFailed
	res.Error = err.Error()
	r.opts.Logger.Errorf("%s failed: %v", res.Name, err)
	return res
}
