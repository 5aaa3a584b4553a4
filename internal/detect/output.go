package detect

import (
	"regexp"
	"strings"
)

// recentWindow bounds how much trailing output is scanned per capture.
const recentWindow = 2000

// recentLineCount is how many trailing non-empty lines marker matching
// considers.
const recentLineCount = 10

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\][^\x07]*\x07`)

// StripAnsi removes ANSI escape codes from text. It handles CSI
// sequences (ESC[...letter) and OSC sequences (ESC]...BEL).
func StripAnsi(text string) string {
	return ansiRegex.ReplaceAllString(text, "")
}

// MarkerScanner looks for a completion marker string in agent output.
// The marker only counts when it appears in the most recent lines:
// the task prompt itself mentions the marker, and the agent usually
// echoes the prompt early in the session, so older occurrences are
// ignored.
type MarkerScanner struct {
	marker string
}

// NewMarkerScanner creates a scanner for the given marker string.
func NewMarkerScanner(marker string) *MarkerScanner {
	return &MarkerScanner{marker: marker}
}

// Marker returns the marker string being scanned for.
func (s *MarkerScanner) Marker() string { return s.marker }

// Seen reports whether the marker appears in the trailing lines of the
// capture.
func (s *MarkerScanner) Seen(output string) bool {
	if s.marker == "" || output == "" {
		return false
	}

	if len(output) > recentWindow {
		output = output[len(output)-recentWindow:]
	}
	output = StripAnsi(output)

	recent := lastNonEmptyLines(strings.Split(output, "\n"), recentLineCount)
	for _, line := range recent {
		// The prompt quotes the marker; require it on a line of its
		// own (possibly with whitespace) so a quoted mention in the
		// agent's plan does not trigger early completion.
		if strings.TrimSpace(line) == s.marker {
			return true
		}
	}
	return false
}

// lastNonEmptyLines returns the last n non-empty lines in order.
func lastNonEmptyLines(lines []string, n int) []string {
	result := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(result) < n; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			result = append([]string{line}, result...)
		}
	}
	return result
}
