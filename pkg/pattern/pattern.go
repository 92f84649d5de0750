// Package pattern implements the three matcher variants the dispatcher's
// workers apply to every line: exact whole-line equality, substring
// scanning, and regular expressions. Regex compilation happens here, one
// layer above THE CORE, which only ever consumes the resulting predicate.
package pattern

import (
	"fmt"
	"regexp"
)

// Matcher answers whether a line (without its trailing newline) matches
// the configured pattern.
type Matcher interface {
	Matches(line []byte) bool
}

// NewExact builds a whole-line-equality matcher.
func NewExact(value []byte) Matcher {
	return &exactMatcher{value: value, prefilter: newPrefilter(value)}
}

// NewSubstring builds a sliding-window substring matcher.
func NewSubstring(value []byte) Matcher {
	return &substringMatcher{exact: &exactMatcher{value: value, prefilter: newPrefilter(value)}}
}

// NewRegex compiles pattern as a byte-oriented regular expression. An
// invalid pattern is a fatal configuration error surfaced to the caller,
// not swallowed.
func NewRegex(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern as regex: %w", err)
	}

	return &regexMatcher{re: re}, nil
}

// prefilter holds the two 256-entry byte tables used to cheaply reject a
// line before falling back to a byte-for-byte comparison.
type prefilter struct {
	start  [256]bool
	second [256]bool
}

func newPrefilter(value []byte) prefilter {
	var p prefilter

	if len(value) > 0 {
		p.start[value[0]] = true
	}

	if len(value) > 1 {
		p.second[value[1]] = true
	}

	return p
}

type exactMatcher struct {
	value     []byte
	prefilter prefilter
}

func (m *exactMatcher) Matches(line []byte) bool {
	return m.matchesAt(line)
}

// matchesAt checks whether line itself (not a window into a larger
// buffer) equals value, using the prefilter to reject cheaply first.
func (m *exactMatcher) matchesAt(line []byte) bool {
	if len(line) == 0 {
		return len(m.value) == 0
	}

	if !m.prefilter.start[line[0]] {
		return false
	}

	if len(m.value) > 1 {
		if len(line) < 2 || !m.prefilter.second[line[1]] {
			return false
		}
	}

	return equalBytes(line, m.value)
}

type substringMatcher struct {
	exact *exactMatcher
}

func (m *substringMatcher) Matches(line []byte) bool {
	n := len(m.exact.value)
	if n == 0 {
		return true
	}

	if len(line) < n {
		return false
	}

	for i := 0; i+n <= len(line); i++ {
		if m.exact.matchesAt(line[i : i+n]) {
			return true
		}
	}

	return false
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m *regexMatcher) Matches(line []byte) bool {
	return m.re.Match(line)
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
