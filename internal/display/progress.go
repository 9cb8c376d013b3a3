package display

import (
	"fmt"
	"os"
	"strings"
)

const progressLineWidth = 80

// ProgressLine renders a single \r-overwritten progress bar. On a non-TTY it
// is a no-op so piped output stays clean (the caller's log lines already
// provide breadcrumbs there).
type ProgressLine struct {
	enabled bool
	barW    int
}

// NewProgressLine returns a progress line that only draws when enabled.
func NewProgressLine(enabled bool) *ProgressLine {
	return &ProgressLine{enabled: enabled, barW: 24}
}

// Update redraws the line: a phase label, a bar, the percentage, and a
// done/total clock. fraction is clamped to [0, 1].
func (p *ProgressLine) Update(phase string, fraction float64, doneMs, totalMs int64) {
	if !p.enabled {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	filled := int(fraction * float64(p.barW))
	bar := strings.Repeat("#", filled) + strings.Repeat("-", p.barW-filled)
	status := fmt.Sprintf("  %s [%s] %3.0f%%", phase, bar, fraction*100)
	if totalMs > 0 {
		status += fmt.Sprintf("  %s / %s", FormatDurationMs(doneMs), FormatDurationMs(totalMs))
	}

	// Pad to overwrite previous longer lines, then \r.
	if len(status) < progressLineWidth {
		status += strings.Repeat(" ", progressLineWidth-len(status))
	}
	fmt.Fprintf(os.Stdout, "\r%s", status)
}

// Clear erases the inline progress line.
func (p *ProgressLine) Clear() {
	if !p.enabled {
		return
	}
	fmt.Fprintf(os.Stdout, "\r%s\r", strings.Repeat(" ", progressLineWidth))
}
