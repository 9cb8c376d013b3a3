package ffmpeg

import (
	"strconv"
	"strings"
)

// ParseProgressLine extracts the current output position from one line of
// ffmpeg's -progress key=value stream. ok is false for lines that carry no
// usable position (other keys, N/A values, or the progress=continue/end
// markers).
//
// Both out_time_us and out_time_ms hold microseconds; out_time_ms predates
// the _us key and kept its misleading name for compatibility deep in
// ffmpeg, so both divide by 1000 here.
func ParseProgressLine(line string) (outMs int64, ok bool) {
	line = strings.TrimSpace(line)
	key, value, found := strings.Cut(line, "=")
	if !found {
		return 0, false
	}

	switch key {
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		return us / 1000, true
	case "out_time":
		return parseClock(strings.TrimSpace(value))
	}
	return 0, false
}

// parseClock parses ffmpeg's HH:MM:SS.micros clock format.
func parseClock(v string) (int64, bool) {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseInt(parts[0], 10, 64)
	m, err2 := strconv.ParseInt(parts[1], 10, 64)
	s, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || s < 0 {
		return 0, false
	}
	return (h*3600+m*60)*1000 + int64(s*1000), true
}
