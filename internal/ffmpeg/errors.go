package ffmpeg

import (
	"regexp"
	"strings"
)

// Pre-compiled regexes for classifying ffmpeg stderr output. Checked by
// [RetryState.Advance] after a failed run; chunk-assembled recordings are
// prone to timestamp discontinuities that +genpts repairs.
var reTimestampIssue = regexp.MustCompile(
	`(?i)Non-monotonous DTS|non monotonically increasing dts|` +
		`invalid, non monotonically increasing dts|` +
		`DTS .*out of order|PTS .*out of order|` +
		`pts has no value|missing PTS|Timestamps are unset`)

// MatchTimestampIssue reports whether stderr contains a timestamp
// discontinuity.
func MatchTimestampIssue(stderr string) bool {
	return reTimestampIssue.MatchString(stderr)
}

// StderrTail returns the last maxLines lines of captured stderr. Filter
// graph failures print the useful diagnostic right before exiting, after
// pages of per-frame noise.
func StderrTail(stderr string, maxLines int) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return ""
	}
	lines := strings.Split(stderr, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}
