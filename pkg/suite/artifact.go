package suite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactWriter handles writing run artifacts
type ArtifactWriter struct {
	outputDir string
	json      bool
	markdown  bool
}

// NewArtifactWriter creates a new artifact writer
func NewArtifactWriter(cfg ArtifactConfig) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: cfg.OutputDir,
		json:      cfg.JSON,
		markdown:  cfg.Markdown,
	}
}

// WriteAll writes all configured artifact formats
func (w *ArtifactWriter) WriteAll(summary *Summary) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if w.json {
		if err := w.WriteResultsJSON(summary); err != nil {
			return err
		}
	}
	if w.markdown {
		if err := w.WriteSummaryMarkdown(summary); err != nil {
			return err
		}
	}
	return nil
}

// WriteResultsJSON writes the full run summary as JSON
func (w *ArtifactWriter) WriteResultsJSON(summary *Summary) error {
	path := filepath.Join(w.outputDir, "results.json")

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0600); writeErr != nil {
		return fmt.Errorf("failed to write results JSON: %w", writeErr)
	}
	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary
func (w *ArtifactWriter) WriteSummaryMarkdown(summary *Summary) error {
	path := filepath.Join(w.outputDir, "summary.md")

	var md strings.Builder

	md.WriteString("# uisync Run Summary\n\n")
	fmt.Fprintf(&md, "**Run:** %s\n\n", summary.RunID)
	fmt.Fprintf(&md, "**Site:** %s\n\n", summary.BaseURL)
	fmt.Fprintf(&md, "**Engine:** %s\n\n", summary.Engine)
	fmt.Fprintf(&md, "**Status:** %s\n\n", summary.Status)
	fmt.Fprintf(&md, "**Started:** %s\n\n", summary.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&md, "**Duration:** %s\n\n", summary.Duration.Round(time.Millisecond))

	md.WriteString("## Scenarios\n\n")
	md.WriteString("| Scenario | Status | Duration |\n")
	md.WriteString("|---|---|---|\n")
	for _, r := range summary.Results {
		fmt.Fprintf(&md, "| %s | %s %s | %s |\n", r.Name, statusIcon(r.Status), r.Status, r.Duration.Round(time.Millisecond))
	}
	md.WriteString("\n")

	for _, r := range summary.Results {
		if r.Status != StatusFailed {
			continue
		}
		fmt.Fprintf(&md, "### %s\n\n", r.Name)
		fmt.Fprintf(&md, "❌ **Error:** %s\n\n", r.Error)
		for _, s := range r.Steps {
			fmt.Fprintf(&md, "- %s %s\n", statusIcon(s.Status), s.Name)
		}
		if len(r.Steps) > 0 {
			md.WriteString("\n")
		}
		if r.Screenshot != "" {
			fmt.Fprintf(&md, "Screenshot: `%s`\n\n", r.Screenshot)
		}
	}

	for _, r := range summary.Results {
		if r.Cleanup == nil || r.Cleanup.Converged {
			continue
		}
		fmt.Fprintf(&md, "⚠️ **%s:** favorites cleanup left %d entries (%d found, %d removals issued)\n\n",
			r.Name, r.Cleanup.Remaining, r.Cleanup.Found, r.Cleanup.Issued)
	}

	md.WriteString("## Metrics\n\n")
	fmt.Fprintf(&md, "- **Total:** %d\n", summary.Metrics.Total)
	fmt.Fprintf(&md, "- **Passed:** %d\n", summary.Metrics.Passed)
	fmt.Fprintf(&md, "- **Failed:** %d\n", summary.Metrics.Failed)
	fmt.Fprintf(&md, "- **Skipped:** %d\n", summary.Metrics.Skipped)

	if writeErr := os.WriteFile(path, []byte(md.String()), 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}
	return nil
}

func statusIcon(s Status) string {
	switch s {
	case StatusPassed:
		return "✅"
	case StatusFailed:
		return "❌"
	default:
		return "⏭️"
	}
}
