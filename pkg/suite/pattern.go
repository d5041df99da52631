package suite

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// PatternMatcher selects scenarios by name. Exclusions win over inclusions;
// no inclusions means everything not excluded runs.
type PatternMatcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewPatternMatcher compiles include and exclude globs. Empty patterns are ignored.
func NewPatternMatcher(include, exclude []string) (*PatternMatcher, error) {
	pm := &PatternMatcher{}

	var err error
	if pm.include, err = compileAll("include", include); err != nil {
		return nil, err
	}
	if pm.exclude, err = compileAll("exclude", exclude); err != nil {
		return nil, err
	}
	return pm, nil
}

func compileAll(kind string, patterns []string) ([]glob.Glob, error) {
	var out []glob.Glob
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern '%s': %w", kind, pattern, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Matches reports whether the named scenario should run.
func (pm *PatternMatcher) Matches(name string) bool {
	for _, g := range pm.exclude {
		if g.Match(name) {
			return false
		}
	}
	if len(pm.include) == 0 {
		return true
	}
	for _, g := range pm.include {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Filter keeps the scenarios whose names match, in order.
func (pm *PatternMatcher) Filter(scenarios []Scenario) []Scenario {
	var out []Scenario
	for _, s := range scenarios {
		if pm.Matches(s.Name()) {
			out = append(out, s)
		}
	}
	return out
}

// SplitPatterns splits a comma-separated flag value.
func SplitPatterns(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
