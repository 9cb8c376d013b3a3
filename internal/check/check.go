// Package check provides system diagnostics (doctor mode) and pre-flight
// dependency validation for ffmpeg, ffprobe, and the encoders and filters
// the selected profile needs.
package check

import (
	"errors"
	"os/exec"
	"strings"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/config"
)

// Sentinel errors returned by CheckDeps when a required tool, encoder, or
// filter is missing.
var (
	ErrFfmpegNotFound  = errors.New("ffmpeg not found on PATH")
	ErrFfprobeNotFound = errors.New("ffprobe not found on PATH")
	ErrXfadeMissing    = errors.New("ffmpeg build lacks the xfade filter needed for transitions")
	ErrEncodeFailed    = errors.New("test encode for the selected profile failed")
)

// requiredFilters are the filters the compositor's graphs cannot do without
// and that older or stripped-down ffmpeg builds actually lack. The rest of
// the graph (trim, scale, pad, overlay sources) is universal.
var requiredFilters = []string{"xfade", "geq", "overlay"}

// Logger is the minimal logging interface needed by RunCheck. Defined here
// (rather than importing the logging package) so that check remains
// dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
}

// RunCheck runs the interactive doctor flow: prints availability of ffmpeg,
// ffprobe, the compositor's required filters, and a test encode per profile.
// Every probe runs regardless of earlier failures; the return value reports
// whether all of them passed.
func RunCheck(cfg *config.Config, log Logger) bool {
	log.Info("=== System Check ===")

	ok := checkFfmpeg(log)
	ok = checkFfprobe(log) && ok
	ok = checkFilters(log) && ok
	ok = checkProfile(config.ProfileCompat, log) && ok
	ok = checkProfile(config.ProfileFree, log) && ok
	return ok
}

// checkFfmpeg verifies ffmpeg is on PATH and logs its version string.
func checkFfmpeg(log Logger) bool {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		log.Error("ffmpeg not found")
		return false
	}
	out, err := exec.Command("ffmpeg", "-version").Output()
	if err != nil {
		log.Warn("ffmpeg found but -version failed: %v", err)
		return false
	}
	log.Success("ffmpeg: %s", firstLine(string(out)))
	return true
}

// checkFfprobe verifies ffprobe is on PATH and logs its version string.
func checkFfprobe(log Logger) bool {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		log.Error("ffprobe not found")
		return false
	}
	out, err := exec.Command("ffprobe", "-version").Output()
	if err != nil {
		log.Warn("ffprobe found but -version failed: %v", err)
		return false
	}
	log.Success("ffprobe: %s", firstLine(string(out)))
	return true
}

// checkFilters verifies the ffmpeg build carries every filter the
// compositor's graphs use that stripped builds omit.
func checkFilters(log Logger) bool {
	out, err := filterList()
	if err != nil {
		log.Warn("Could not list filters: %v", err)
		return false
	}
	ok := true
	for _, name := range requiredFilters {
		if hasFilter(out, name) {
			log.Success("filter %s available", name)
		} else {
			log.Error("filter %s missing", name)
			ok = false
		}
	}
	return ok
}

// checkProfile runs a minimal synthetic encode with the profile's video and
// audio codecs.
func checkProfile(p config.Profile, log Logger) bool {
	log.Info("Testing %s profile encoders...", p)
	if !runSilent("ffmpeg", encodeTestArgs(p)...) {
		log.Error("%s profile test encode failed", p)
		return false
	}
	log.Success("%s profile works", p)
	return true
}

// CheckDeps is the pre-flight validation run before recording or exporting:
// ffmpeg and ffprobe must be on PATH, the xfade filter must exist when
// transitions are enabled, and the selected profile's encoders must pass a
// quick synthetic encode. Returns a sentinel error on failure.
func CheckDeps(cfg *config.Config) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return ErrFfmpegNotFound
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return ErrFfprobeNotFound
	}
	if cfg.TransitionMs > 0 {
		if out, err := filterList(); err == nil && !hasFilter(out, "xfade") {
			return ErrXfadeMissing
		}
	}
	if !runSilent("ffmpeg", encodeTestArgs(cfg.Profile)...) {
		return ErrEncodeFailed
	}
	return nil
}

// --- internal helpers ---

// encodeTestArgs returns ffmpeg arguments for a minimal synthetic encode
// exercising the profile's video and audio codecs together.
func encodeTestArgs(p config.Profile) []string {
	video, audio := "libx264", "aac"
	if p == config.ProfileFree {
		video, audio = "libvpx-vp9", "libopus"
	}
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc2=size=256x256:rate=30:duration=0.1",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=0.1",
		"-c:v", video, "-c:a", audio,
		"-f", "null", "-",
	}
}

// filterList returns the raw output of ffmpeg -filters.
func filterList() (string, error) {
	out, err := exec.Command("ffmpeg", "-hide_banner", "-filters").Output()
	return string(out), err
}

// hasFilter scans ffmpeg -filters output for a filter name. Lines look like
// " ..C xfade             VV->V      Cross fade one video with another".
func hasFilter(filters, name string) bool {
	for _, line := range strings.Split(filters, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}

// firstLine trims output down to its first line.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx > 0 {
		s = s[:idx]
	}
	return s
}

// runSilent runs a command and returns true if it exits with status 0.
// Both stdout and stderr are discarded.
func runSilent(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
