package suite

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// LogLevel represents the console verbosity level
type LogLevel int

const (
	// LogLevelQuiet shows only warnings, errors and the final summary
	LogLevelQuiet LogLevel = iota
	// LogLevelNormal shows scenario and step progress (default)
	LogLevelNormal
	// LogLevelVerbose adds step timings and scenario details
	LogLevelVerbose
	// LogLevelDebug shows everything
	LogLevelDebug
)

// ParseLogLevel maps a verbosity name to a level. Unknown names are normal.
func ParseLogLevel(name string) LogLevel {
	switch strings.ToLower(name) {
	case "quiet":
		return LogLevelQuiet
	case "verbose":
		return LogLevelVerbose
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelNormal
	}
}

// Logger prints run progress to the console. A nil *Logger prints nothing.
type Logger struct {
	level  LogLevel
	writer io.Writer

	header  lipgloss.Style
	section lipgloss.Style
	step    lipgloss.Style
	success lipgloss.Style
	info    lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style

	stepCount int
}

// NewLogger creates a console logger writing to stdout
func NewLogger(level LogLevel) *Logger {
	return NewLoggerTo(level, os.Stdout)
}

// NewLoggerTo creates a console logger writing to w. Colours are dropped
// when w is not a terminal.
func NewLoggerTo(level LogLevel, w io.Writer) *Logger {
	r := lipgloss.NewRenderer(w)
	return &Logger{
		level:   level,
		writer:  w,
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
		section: r.NewStyle().Foreground(lipgloss.Color("6")),
		step:    r.NewStyle().Foreground(lipgloss.Color("6")),
		success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		info:    r.NewStyle().Foreground(lipgloss.Color("217")),
		warning: r.NewStyle().Foreground(lipgloss.Color("3")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (l *Logger) enabled(level LogLevel) bool {
	return l != nil && l.level >= level
}

func (l *Logger) println(style lipgloss.Style, text string) {
	fmt.Fprintln(l.writer, style.Render(text))
}

// Header prints a prominent header message
func (l *Logger) Header(message string) {
	if !l.enabled(LogLevelNormal) {
		return
	}
	rule := strings.Repeat("=", 70)
	fmt.Fprintln(l.writer)
	l.println(l.header, rule)
	l.println(l.header, "  "+message)
	l.println(l.header, rule)
}

// Section prints a divider before a scenario
func (l *Logger) Section(title string) {
	if !l.enabled(LogLevelNormal) {
		return
	}
	l.stepCount = 0
	fmt.Fprintln(l.writer)
	l.println(l.section, "▶ "+title)
	l.println(l.muted, strings.Repeat("─", 50))
}

// Step prints a numbered step within the current scenario
func (l *Logger) Step(message string) {
	if !l.enabled(LogLevelNormal) {
		return
	}
	l.stepCount++
	l.println(l.step, fmt.Sprintf("[%d] %s", l.stepCount, message))
}

// Successf prints a success message with checkmark
func (l *Logger) Successf(format string, args ...any) {
	if l.enabled(LogLevelNormal) {
		l.println(l.success, "✓ "+fmt.Sprintf(format, args...))
	}
}

// Infof prints an informational message
func (l *Logger) Infof(format string, args ...any) {
	if l.enabled(LogLevelNormal) {
		l.println(l.info, "  "+fmt.Sprintf(format, args...))
	}
}

// Warningf prints a warning message
func (l *Logger) Warningf(format string, args ...any) {
	if l.enabled(LogLevelQuiet) {
		l.println(l.warning, "⚠ Warning: "+fmt.Sprintf(format, args...))
	}
}

// Errorf prints an error message
func (l *Logger) Errorf(format string, args ...any) {
	if l.enabled(LogLevelQuiet) {
		l.println(l.failure, "✗ Error: "+fmt.Sprintf(format, args...))
	}
}

// Verbosef prints detailed information (only in verbose mode)
func (l *Logger) Verbosef(format string, args ...any) {
	if l.enabled(LogLevelVerbose) {
		l.println(l.muted, "  → "+fmt.Sprintf(format, args...))
	}
}

// Debugf prints debug information (only in debug mode)
func (l *Logger) Debugf(format string, args ...any) {
	if l.enabled(LogLevelDebug) {
		l.println(l.muted, "  [DEBUG] "+fmt.Sprintf(format, args...))
	}
}

// Result prints the outcome of one scenario
func (l *Logger) Result(r Result) {
	switch r.Status {
	case StatusPassed:
		l.Successf("%s passed in %s", r.Name, r.Duration.Round(time.Millisecond))
	case StatusSkipped:
		if l.enabled(LogLevelNormal) {
			l.println(l.warning, fmt.Sprintf("- %s skipped: %s", r.Name, r.Error))
		}
	default:
		if l.enabled(LogLevelQuiet) {
			l.println(l.failure, fmt.Sprintf("✗ %s failed: %s", r.Name, r.Error))
			if r.Screenshot != "" {
				l.println(l.muted, "    screenshot: "+r.Screenshot)
			}
		}
	}
}

// Summary prints the final run summary. It is shown at every level.
func (l *Logger) Summary(s *Summary) {
	if l == nil || s == nil {
		return
	}

	rule := strings.Repeat("=", 70)
	fmt.Fprintln(l.writer)
	l.println(l.header, rule)
	l.println(l.header, "  RUN SUMMARY")
	l.println(l.header, rule)

	fmt.Fprint(l.writer, "  Status: ")
	switch s.Status {
	case StatusPassed:
		l.println(l.success, "✓ PASSED")
	case StatusSkipped:
		l.println(l.warning, "- NOTHING RAN")
	default:
		l.println(l.failure, "✗ FAILED")
	}
	fmt.Fprintf(l.writer, "  Run: %s\n", s.RunID)
	fmt.Fprintf(l.writer, "  Duration: %s\n", s.Duration.Round(time.Second))
	fmt.Fprintf(l.writer, "  Scenarios: %d passed, %d failed, %d skipped\n",
		s.Metrics.Passed, s.Metrics.Failed, s.Metrics.Skipped)

	for _, r := range s.Results {
		if r.Status != StatusFailed {
			continue
		}
		l.println(l.failure, fmt.Sprintf("    ✗ %s: %s", r.Name, r.Error))
	}
	l.println(l.header, rule)
}
