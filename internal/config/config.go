// Package config holds runtime configuration: defaults, the optional TOML
// config file, environment overrides, and validation. Flag binding lives in
// the cli package; this package only defines the settings and their rules.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// --- Enum types for validated string fields ---

// Profile selects the export encoding profile.
type Profile string

const (
	ProfileCompat Profile = "compat" // H.264 + AAC in MP4 (default, plays everywhere).
	ProfileFree   Profile = "free"   // VP9 + Opus in WebM (royalty-free).
)

// Container returns the output file extension for the profile (no dot).
func (p Profile) Container() string {
	if p == ProfileFree {
		return "webm"
	}
	return "mp4"
}

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Config holds all runtime settings. It is populated by [DefaultConfig], then
// layered with the TOML file and env overrides by [Load], and finally mutated
// by cobra flag binding before being passed (by pointer) to packages that
// need it. Fields are grouped by concern with inline documentation of
// defaults and fixed values.
type Config struct {
	// Storage. Each session lives in its own directory under StorageRoot
	// (session.json, chunks/, assets/, exports/).
	StorageRoot string

	// Output canvas geometry.
	CanvasWidth  int // Default: 1280.
	CanvasHeight int // Default: 720.
	FrameRate    int // Default: 30. Every segment chain is normalized to this.

	// Picture-in-picture inset (screen-pip layout).
	PiPSize         int // Default: 320. Square edge length in pixels.
	PiPCornerRadius int // Default: 80. Squircle corner radius.
	PiPMargin       int // Default: 24. Offset from the bottom-right corner.

	// Segment transitions.
	TransitionMs    int64  // Default: 300. Cross-fade length between segments.
	BackgroundColor string // Default: "black". Letterbox pad and blank-segment fill.

	// Export encoding.
	Profile         Profile
	VideoCRF        int    // Default: 23 (libx264) / shared with VP9.
	AudioBitrate    string // Default: "128k".
	AudioSampleRate int    // Fixed: 48000 Hz.
	AudioChannels   int    // Fixed: 2 (stereo).

	// Capture and probing.
	ChunkBytes       int // Default: 262144. Capture chunk size in bytes.
	ProbeConcurrency int // Default: 4. Parallel ffprobe calls during export.

	// Session transport.
	RelayURL string // Optional ws:// relay; empty means solo recording.

	// Display and logging.
	Verbose   bool
	ColorMode ColorMode // Default: "auto".
	LogFile   string    // Optional log file path.

	// ffmpeg probe constants (not user-configurable). Chunked WebM inputs
	// underreport stream parameters with the stock values.
	FFmpegProbesize       string
	FFmpegAnalyzeDuration string
}

// DefaultConfig returns a Config with all defaults. Used as the base before
// [Load] applies the config file and env, and the CLI applies flag overrides.
func DefaultConfig() Config {
	return Config{
		StorageRoot:           defaultStorageRoot(),
		CanvasWidth:           1280,
		CanvasHeight:          720,
		FrameRate:             30,
		PiPSize:               320,
		PiPCornerRadius:       80,
		PiPMargin:             24,
		TransitionMs:          300,
		BackgroundColor:       "black",
		Profile:               ProfileCompat,
		VideoCRF:              23,
		AudioBitrate:          "128k",
		AudioSampleRate:       48000,
		AudioChannels:         2,
		ChunkBytes:            256 * 1024,
		ProbeConcurrency:      4,
		Verbose:               false,
		ColorMode:             ColorAuto,
		FFmpegProbesize:       "100M",
		FFmpegAnalyzeDuration: "100M",
	}
}

// defaultStorageRoot is ~/vdo-samurai, falling back to ./vdo-samurai when the
// home directory cannot be resolved.
func defaultStorageRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "vdo-samurai")
	}
	return filepath.Join(".", "vdo-samurai")
}

// Validate checks enum fields and geometry constraints. It also canonicalizes
// the audio bitrate in place.
func (c *Config) Validate() error {
	switch c.Profile {
	case ProfileCompat, ProfileFree:
		// valid
	default:
		return errors.New("invalid profile (use 'compat' or 'free')")
	}

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		return errors.New("canvas dimensions must be positive")
	}
	if c.CanvasWidth%2 != 0 || c.CanvasHeight%2 != 0 {
		return errors.New("canvas dimensions must be even (4:2:0 chroma subsampling)")
	}
	if c.FrameRate < 1 || c.FrameRate > 120 {
		return errors.New("frame rate must be between 1 and 120")
	}

	if c.PiPSize <= 0 {
		return errors.New("pip size must be positive")
	}
	shorter := c.CanvasWidth
	if c.CanvasHeight < shorter {
		shorter = c.CanvasHeight
	}
	if c.PiPSize+c.PiPMargin > shorter {
		return fmt.Errorf("pip size %d + margin %d does not fit a %dx%d canvas",
			c.PiPSize, c.PiPMargin, c.CanvasWidth, c.CanvasHeight)
	}
	if c.PiPCornerRadius < 0 || c.PiPCornerRadius > c.PiPSize/2 {
		return fmt.Errorf("pip corner radius must be between 0 and %d (half the pip edge)", c.PiPSize/2)
	}
	if c.PiPMargin < 0 {
		return errors.New("pip margin must not be negative")
	}

	if c.TransitionMs < 0 {
		return errors.New("transition must not be negative")
	}
	if c.VideoCRF < 0 || c.VideoCRF > 63 {
		return errors.New("video crf must be between 0 and 63")
	}
	if c.ChunkBytes <= 0 {
		return errors.New("chunk size must be positive")
	}
	if c.ProbeConcurrency < 1 {
		return errors.New("probe concurrency must be at least 1")
	}

	normalizedBitrate, err := normalizeAudioBitrate(c.AudioBitrate)
	if err != nil {
		return err
	}
	c.AudioBitrate = normalizedBitrate

	if c.StorageRoot == "" {
		return errors.New("storage root must not be empty")
	}
	return nil
}

// normalizeAudioBitrate validates and canonicalizes user bitrate input.
// Accepted forms: "128", "128k", "128K", "128kbps". Output is "<n>k".
func normalizeAudioBitrate(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", errors.New("audio bitrate must not be empty")
	}
	if strings.HasSuffix(s, "kbps") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "kbps"))
	} else if strings.HasSuffix(s, "k") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "k"))
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("invalid audio bitrate %q (use positive Kbps value, e.g. 128k)", raw)
	}
	return fmt.Sprintf("%dk", n), nil
}
