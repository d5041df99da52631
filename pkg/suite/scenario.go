package suite

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/logging"
	"github.com/entrhq/uisync/pkg/pages"
	"github.com/entrhq/uisync/pkg/statesync"
)

// Scenario is one end-to-end check against the site.
type Scenario interface {
	Name() string

	// RequiresAuth makes the runner log in before Run.
	RequiresAuth() bool
	Run(ctx context.Context, env *Env) error
}

// Preparer is implemented by scenarios that reset shared account state
// after login and before Run. A Prepare error fails the scenario.
type Preparer interface {
	Prepare(ctx context.Context, env *Env) error
}

// Env is what a scenario gets to work with. Each scenario receives a fresh
// browsing context, so nothing in Env outlives one Run.
type Env struct {
	Page    driver.Page
	Surface pages.Surface
	Sync    *statesync.Synchronizer
	Config  *Config
	Console *Logger
	Logger  *logging.Logger

	// Cleanup is set by scenarios that reset the favorites list.
	Cleanup *statesync.CleanupReport

	steps []StepResult
}

// StepResult records one named step.
type StepResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Step runs fn as a named step. A failing step's error is returned wrapped
// with the step name; scenarios stop at the first one.
func (e *Env) Step(name string, fn func() error) error {
	e.Console.Step(name)
	e.Logger.Infof("step: %s", name)

	start := time.Now()
	err := fn()
	res := StepResult{Name: name, Status: StatusPassed, Duration: time.Since(start)}
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		e.Logger.Errorf("step %q failed: %v", name, err)
		err = fmt.Errorf("%s: %w", name, err)
	} else {
		e.Console.Verbosef("%s (%s)", name, res.Duration.Round(time.Millisecond))
	}
	e.steps = append(e.steps, res)
	return err
}

// Steps returns the steps recorded so far.
func (e *Env) Steps() []StepResult {
	return append([]StepResult(nil), e.steps...)
}
