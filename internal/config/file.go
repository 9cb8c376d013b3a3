package config

// This file layers the optional TOML config file and SAMURAI_* environment
// overrides on top of DefaultConfig. Flags are bound later by the cli package
// and win over both.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the TOML file layout. Zero values mean "not set"; only
// set fields override the defaults.
type fileConfig struct {
	StorageRoot     string `toml:"storage_root"`
	CanvasWidth     int    `toml:"canvas_width"`
	CanvasHeight    int    `toml:"canvas_height"`
	FrameRate       int    `toml:"frame_rate"`
	PiPSize         int    `toml:"pip_size"`
	PiPCornerRadius int    `toml:"pip_corner_radius"`
	PiPMargin       int    `toml:"pip_margin"`
	TransitionMs    int64  `toml:"transition_ms"`
	BackgroundColor string `toml:"background_color"`
	Profile         string `toml:"profile"`
	VideoCRF        int    `toml:"video_crf"`
	AudioBitrate    string `toml:"audio_bitrate"`
	RelayURL        string `toml:"relay_url"`
	LogFile         string `toml:"log_file"`
	Color           string `toml:"color"`
}

// Load returns the effective configuration: defaults, then the TOML file at
// path (or the default location when path is empty), then env overrides.
// A missing default-location file is not an error; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			if explicit || !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file %s: %w", path, err)
			}
		} else {
			applyFile(&cfg, &fc)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.StorageRoot != "" {
		cfg.StorageRoot = expandTilde(fc.StorageRoot)
	}
	if fc.CanvasWidth > 0 {
		cfg.CanvasWidth = fc.CanvasWidth
	}
	if fc.CanvasHeight > 0 {
		cfg.CanvasHeight = fc.CanvasHeight
	}
	if fc.FrameRate > 0 {
		cfg.FrameRate = fc.FrameRate
	}
	if fc.PiPSize > 0 {
		cfg.PiPSize = fc.PiPSize
	}
	if fc.PiPCornerRadius > 0 {
		cfg.PiPCornerRadius = fc.PiPCornerRadius
	}
	if fc.PiPMargin > 0 {
		cfg.PiPMargin = fc.PiPMargin
	}
	if fc.TransitionMs > 0 {
		cfg.TransitionMs = fc.TransitionMs
	}
	if fc.BackgroundColor != "" {
		cfg.BackgroundColor = fc.BackgroundColor
	}
	if fc.Profile != "" {
		cfg.Profile = Profile(strings.ToLower(fc.Profile))
	}
	if fc.VideoCRF > 0 {
		cfg.VideoCRF = fc.VideoCRF
	}
	if fc.AudioBitrate != "" {
		cfg.AudioBitrate = fc.AudioBitrate
	}
	if fc.RelayURL != "" {
		cfg.RelayURL = fc.RelayURL
	}
	if fc.LogFile != "" {
		cfg.LogFile = expandTilde(fc.LogFile)
	}
	if fc.Color != "" {
		cfg.ColorMode = ColorMode(strings.ToLower(fc.Color))
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SAMURAI_STORAGE_ROOT"); v != "" {
		cfg.StorageRoot = expandTilde(v)
	}
	if v := os.Getenv("SAMURAI_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("SAMURAI_LOG_FILE"); v != "" {
		cfg.LogFile = expandTilde(v)
	}
}

// defaultConfigPath is $XDG_CONFIG_HOME/vdo-samurai/config.toml, falling back
// to ~/.config/vdo-samurai/config.toml. Empty when no home dir is resolvable
// or the file does not exist.
func defaultConfigPath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "vdo-samurai")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "vdo-samurai")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
