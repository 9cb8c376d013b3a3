package ffmpeg

import (
	"strings"
	"testing"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/config"
)

func testGraph() *Graph {
	return &Graph{Script: "[0:v]null[vout];[0:a]anull[aout]", VideoOut: "[vout]", AudioOut: "[aout]"}
}

func TestBuildArgs_CompatProfile(t *testing.T) {
	cfg := config.DefaultConfig()
	args := BuildArgs(cfg, []string{"/in/a.mkv", "/in/b.mkv"}, testGraph(), "/out/final.mp4", NewRetryState())
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"ffmpeg -hide_banner -nostdin -y",
		"-loglevel error",
		"-probesize 100M -analyzeduration 100M",
		"-i /in/a.mkv -i /in/b.mkv",
		"-filter_complex [0:v]null[vout];[0:a]anull[aout]",
		"-map [vout] -map [aout]",
		"-c:v libx264 -crf 23 -preset medium -pix_fmt yuv420p",
		"-c:a aac -b:a 128k",
		"-movflags +faststart",
		"-progress pipe:1 -nostats",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in:\n%s", want, joined)
		}
	}
	if args[len(args)-1] != "/out/final.mp4" {
		t.Errorf("output path must be last, got %q", args[len(args)-1])
	}
	if strings.Contains(joined, "genpts") {
		t.Errorf("timestamp fix applied without a retry:\n%s", joined)
	}
}

func TestBuildArgs_FreeProfile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Profile = config.ProfileFree
	args := BuildArgs(cfg, []string{"/in/a.webm"}, testGraph(), "/out/final.webm", NewRetryState())
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-c:v libvpx-vp9 -crf 23 -b:v 0 -row-mt 1",
		"-c:a libopus -b:a 128k",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in:\n%s", want, joined)
		}
	}
	if strings.Contains(joined, "faststart") {
		t.Errorf("faststart is an mp4 flag:\n%s", joined)
	}
}

func TestBuildArgs_TimestampFixBeforeEveryInput(t *testing.T) {
	cfg := config.DefaultConfig()
	rs := NewRetryState()
	rs.TimestampFix = true
	args := BuildArgs(cfg, []string{"/in/a.mkv", "/in/b.mkv", "/in/c.mkv"}, testGraph(), "/out/x.mp4", rs)

	// Input options bind to the following -i only, so each input needs its
	// own -fflags +genpts immediately ahead of it.
	inputs := 0
	for i, a := range args {
		if a != "-i" {
			continue
		}
		inputs++
		if i < 2 || args[i-2] != "-fflags" || args[i-1] != "+genpts" {
			t.Errorf("input %q at %d not preceded by -fflags +genpts: %v", args[i+1], i, args)
		}
	}
	if inputs != 3 {
		t.Fatalf("inputs: got %d, want 3: %v", inputs, args)
	}
}

func TestBuildArgs_Verbose(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Verbose = true
	args := BuildArgs(cfg, []string{"/in/a.mkv"}, testGraph(), "/out/x.mp4", NewRetryState())
	if !strings.Contains(strings.Join(args, " "), "-loglevel info") {
		t.Errorf("verbose should raise loglevel: %v", args)
	}
}
