package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_Profile(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{"compat is valid", ProfileCompat, false},
		{"free is valid", ProfileFree, false},
		{"empty is invalid", "", true},
		{"unknown is invalid", "prores", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Profile = tt.profile
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ColorMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    ColorMode
		wantErr bool
	}{
		{"auto is valid", ColorAuto, false},
		{"always is valid", ColorAlways, false},
		{"never is valid", ColorNever, false},
		{"empty is invalid", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ColorMode = tt.mode
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Geometry(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"odd canvas width", func(c *Config) { c.CanvasWidth = 1281 }, true},
		{"zero canvas height", func(c *Config) { c.CanvasHeight = 0 }, true},
		{"pip larger than canvas", func(c *Config) { c.PiPSize = 800 }, true},
		{"pip plus margin overflows", func(c *Config) { c.PiPSize = 700; c.PiPMargin = 24 }, true},
		{"radius beyond half edge", func(c *Config) { c.PiPCornerRadius = 200 }, true},
		{"zero radius is a plain square", func(c *Config) { c.PiPCornerRadius = 0 }, false},
		{"negative transition", func(c *Config) { c.TransitionMs = -1 }, true},
		{"zero transition is a hard cut", func(c *Config) { c.TransitionMs = 0 }, false},
		{"frame rate too high", func(c *Config) { c.FrameRate = 240 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_NormalizesAudioBitrate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"128", "128k", false},
		{"128k", "128k", false},
		{"128K", "128k", false},
		{"192kbps", "192k", false},
		{" 96k ", "96k", false},
		{"", "", true},
		{"lots", "", true},
		{"-5k", "", true},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.AudioBitrate = tt.in
		err := cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate() with bitrate %q: error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && cfg.AudioBitrate != tt.want {
			t.Errorf("bitrate %q normalized to %q, want %q", tt.in, cfg.AudioBitrate, tt.want)
		}
	}
}

func TestDefaultConfig_SaneDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Profile != ProfileCompat {
		t.Errorf("default Profile = %q, want %q", cfg.Profile, ProfileCompat)
	}
	if cfg.CanvasWidth != 1280 || cfg.CanvasHeight != 720 {
		t.Errorf("default canvas = %dx%d, want 1280x720", cfg.CanvasWidth, cfg.CanvasHeight)
	}
	if cfg.TransitionMs != 300 {
		t.Errorf("default TransitionMs = %d, want 300", cfg.TransitionMs)
	}
	if cfg.PiPSize+cfg.PiPMargin > cfg.CanvasHeight {
		t.Error("default pip geometry should fit the default canvas")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should validate cleanly: %v", err)
	}
}

func TestProfileContainer(t *testing.T) {
	if got := ProfileCompat.Container(); got != "mp4" {
		t.Errorf("compat container = %q, want mp4", got)
	}
	if got := ProfileFree.Container(); got != "webm" {
		t.Errorf("free container = %q, want webm", got)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
storage_root = "` + filepath.Join(dir, "sessions") + `"
canvas_width = 1920
canvas_height = 1080
profile = "free"
transition_ms = 500
audio_bitrate = "192k"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CanvasWidth != 1920 || cfg.CanvasHeight != 1080 {
		t.Errorf("canvas = %dx%d, want 1920x1080", cfg.CanvasWidth, cfg.CanvasHeight)
	}
	if cfg.Profile != ProfileFree {
		t.Errorf("profile = %q, want free", cfg.Profile)
	}
	if cfg.TransitionMs != 500 {
		t.Errorf("transition = %d, want 500", cfg.TransitionMs)
	}
	// Unset fields keep defaults.
	if cfg.FrameRate != 30 {
		t.Errorf("frame rate = %d, want default 30", cfg.FrameRate)
	}

	t.Setenv("SAMURAI_RELAY_URL", "ws://relay.example:9777")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load with env: %v", err)
	}
	if cfg.RelayURL != "ws://relay.example:9777" {
		t.Errorf("relay url = %q, want env override", cfg.RelayURL)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Error("Load should fail for an explicit path that does not exist")
	}
}
