package suite

import (
	"time"

	"github.com/entrhq/uisync/pkg/statesync"
)

// Status is the outcome of a scenario or a whole run.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one scenario
type Result struct {
	Name       string                   `json:"name"`
	Status     Status                   `json:"status"`
	Error      string                   `json:"error,omitempty"`
	StartTime  time.Time                `json:"start_time"`
	EndTime    time.Time                `json:"end_time"`
	Duration   time.Duration            `json:"duration"`
	Steps      []StepResult             `json:"steps"`
	Cleanup    *statesync.CleanupReport `json:"cleanup,omitempty"`
	Screenshot string                   `json:"screenshot,omitempty"`
}

// Summary is the outcome of a run
type Summary struct {
	RunID     string        `json:"run_id"`
	BaseURL   string        `json:"base_url"`
	Engine    string        `json:"engine"`
	Status    Status        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Results   []Result      `json:"results"`
	Metrics   RunMetrics    `json:"metrics"`
}

// RunMetrics counts scenario outcomes
type RunMetrics struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Failed reports whether any scenario failed.
func (s *Summary) Failed() bool { return s.Metrics.Failed > 0 }

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	s.Metrics.Total++
	switch r.Status {
	case StatusPassed:
		s.Metrics.Passed++
	case StatusFailed:
		s.Metrics.Failed++
	default:
		s.Metrics.Skipped++
	}
}

func (s *Summary) finish(end time.Time) {
	s.EndTime = end
	s.Duration = end.Sub(s.StartTime)
	switch {
	case s.Metrics.Failed > 0:
		s.Status = StatusFailed
	case s.Metrics.Passed > 0:
		s.Status = StatusPassed
	default:
		s.Status = StatusSkipped
	}
}
