package ffmpeg

import (
	"strconv"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/config"
)

// BuildArgs constructs the complete ffmpeg argument slice for one export:
// preamble, per-input flags, the compiled filter graph, the output codec
// section for the selected profile, and the machine-readable progress
// stream on stdout.
//
// The retry parameter supplies the current timestamp-fix state, which may
// differ from the initial value after a failed first attempt.
func BuildArgs(cfg config.Config, inputs []string, graph *Graph, outputPath string, rs *RetryState) []string {
	args := make([]string, 0, 64)

	// --- Preamble ---
	args = append(args, "ffmpeg", "-hide_banner", "-nostdin", "-y")

	// Loglevel: info when verbose, otherwise error.
	if cfg.Verbose {
		args = append(args, "-loglevel", "info")
	} else {
		args = append(args, "-loglevel", "error")
	}

	// Probe constants. Chunk-assembled recordings bury stream parameters
	// deep into the file, so the defaults are far too small.
	args = append(args,
		"-probesize", cfg.FFmpegProbesize,
		"-analyzeduration", cfg.FFmpegAnalyzeDuration,
	)

	// --- Inputs ---
	// Input options bind to the next -i only, so the timestamp fix repeats
	// ahead of each input: any chunk-assembled recording can carry the
	// broken timestamps that triggered the retry.
	for _, in := range inputs {
		if rs != nil && rs.TimestampFix {
			args = append(args, "-fflags", "+genpts")
		}
		args = append(args, "-i", in)
	}

	// --- Filter graph and output maps ---
	args = append(args, "-filter_complex", graph.Script)
	args = append(args, "-map", graph.VideoOut, "-map", graph.AudioOut)

	// --- Codec section per profile ---
	args = appendCodecs(args, cfg)

	// --- Progress stream ---
	args = append(args, "-progress", "pipe:1", "-nostats")

	// --- Output ---
	args = append(args, outputPath)

	return args
}

// appendCodecs adds the encoder arguments for the selected profile: H.264
// plus AAC in MP4 for broad compatibility, or VP9 plus Opus in WebM for the
// royalty-free pairing.
func appendCodecs(args []string, cfg config.Config) []string {
	switch cfg.Profile {
	case config.ProfileFree:
		args = append(args,
			"-c:v", "libvpx-vp9",
			"-crf", strconv.Itoa(cfg.VideoCRF),
			"-b:v", "0",
			"-row-mt", "1",
			"-c:a", "libopus",
			"-b:a", cfg.AudioBitrate,
		)
	default: // ProfileCompat
		args = append(args,
			"-c:v", "libx264",
			"-crf", strconv.Itoa(cfg.VideoCRF),
			"-preset", "medium",
			"-pix_fmt", "yuv420p",
			"-c:a", "aac",
			"-b:a", cfg.AudioBitrate,
			"-movflags", "+faststart",
		)
	}
	return args
}
