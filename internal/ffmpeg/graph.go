// Package ffmpeg compiles export plans into single-invocation ffmpeg
// commands and executes them with progress reporting and a unified retry
// step.
//
// The compiler emits one inlined processing chain per segment. Filter pads
// are single-use in ffmpeg's graph model, so two non-adjacent segments that
// read the same input file each get their own trim/scale chain; only the
// input stream labels ([0:v], [0:a]) may be referenced repeatedly. Sharing
// intermediate nodes across segments is not possible, by the encoder's
// design, and must not be attempted.
package ffmpeg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/config"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/timeline"
)

// Graph is a compiled filter program plus the labels and bookkeeping the
// executor needs.
type Graph struct {
	Script   string // the -filter_complex text
	VideoOut string // final video label, "[vout]"
	AudioOut string // final audio label, "[aout]"

	// DurationMs is the planned output file duration: the sum of segment
	// durations. Audio is concatenated un-faded, so the audio track (and the
	// muxed file) runs the full segment sum even though cross-fades shorten
	// the video track by the overlap total.
	DurationMs int64
}

// Compile turns an export plan into a filter graph. hasAudio must hold one
// entry per plan input, true when probing found an audio stream; segments
// whose audio source lacks a track fall back to synthesized silence of the
// segment's exact duration.
func Compile(cfg config.Config, plan *timeline.Plan, hasAudio []bool) (*Graph, error) {
	if plan == nil || len(plan.Segments) == 0 {
		return nil, errors.New("cannot compile an empty plan")
	}
	if len(hasAudio) != len(plan.Inputs) {
		return nil, fmt.Errorf("audio info for %d inputs, plan has %d", len(hasAudio), len(plan.Inputs))
	}

	c := &compiler{cfg: cfg, hasAudio: hasAudio}
	single := len(plan.Segments) == 1

	var stmts []string
	for i := range plan.Segments {
		seg := &plan.Segments[i]
		vOut, aOut := fmt.Sprintf("[v%d]", i), fmt.Sprintf("[a%d]", i)
		if single {
			vOut, aOut = "[vout]", "[aout]"
		}
		stmts = append(stmts, c.videoStmts(i, seg, vOut)...)
		stmts = append(stmts, c.audioStmt(seg, aOut))
	}
	if !single {
		stmts = append(stmts, c.assembleVideo(plan.Segments)...)
		stmts = append(stmts, c.assembleAudio(len(plan.Segments)))
	}

	return &Graph{
		Script:     strings.Join(stmts, ";"),
		VideoOut:   "[vout]",
		AudioOut:   "[aout]",
		DurationMs: plan.TotalMs(),
	}, nil
}

type compiler struct {
	cfg      config.Config
	hasAudio []bool
}

// videoStmts emits the video chain for one segment, ending in out. Every
// chain terminates with an explicit pixel format and frame-rate
// normalization: the cross-fade operator requires constant frame rate and
// identical formats on both of its inputs, and recorded sources promise
// neither.
func (c *compiler) videoStmts(i int, seg *timeline.Segment, out string) []string {
	switch seg.Layout {
	case timeline.LayoutScreenPiP:
		bg, pip := fmt.Sprintf("[bg%d]", i), fmt.Sprintf("[pip%d]", i)
		return []string{
			c.inputTrim(seg.Screen) + "," + c.letterbox() + bg,
			c.inputTrim(seg.Camera) + "," + c.pipSquare() + pip,
			fmt.Sprintf("%s%soverlay=%d:%d:format=auto,%s%s",
				bg, pip, c.pipX(), c.pipY(), c.normalize(), out),
		}
	case timeline.LayoutCameraOnly:
		return []string{c.inputTrim(seg.Camera) + "," + c.letterbox() + "," + c.normalize() + out}
	case timeline.LayoutScreenOnly:
		return []string{c.inputTrim(seg.Screen) + "," + c.letterbox() + "," + c.normalize() + out}
	default: // blank
		return []string{fmt.Sprintf("color=c=%s:size=%dx%d:rate=%d:duration=%s,%s%s",
			c.cfg.BackgroundColor, c.cfg.CanvasWidth, c.cfg.CanvasHeight, c.cfg.FrameRate,
			secs(seg.DurationMs()), c.normalize(), out)}
	}
}

// audioStmt emits the audio chain for one segment. A segment keeps its
// source audio only when the probed input actually has a track; everything
// else becomes silence clipped to the segment's exact duration so the final
// concat always sees matching segment counts.
func (c *compiler) audioStmt(seg *timeline.Segment, out string) string {
	if ref := seg.Audio; ref != nil && c.hasAudio[ref.Input] {
		return fmt.Sprintf("[%d:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS,%s%s",
			ref.Input, secs(ref.TrimStartMs), secs(ref.TrimEndMs), c.aformat(), out)
	}
	return fmt.Sprintf("anullsrc=r=%d:cl=%s,atrim=end=%s,asetpts=PTS-STARTPTS,%s%s",
		c.cfg.AudioSampleRate, channelLayout(c.cfg.AudioChannels), secs(seg.DurationMs()),
		c.aformat(), out)
}

// assembleVideo chains the per-segment video labels into [vout]. With a
// transition configured, consecutive segments are joined by cross-fades
// whose offsets track the cumulative assembled duration: each fade eats
// transition-length off the tail of everything assembled so far, so the
// next offset is (cumulative - transition), never the previous segment's
// own duration. A zero transition degrades to plain concatenation.
func (c *compiler) assembleVideo(segs []timeline.Segment) []string {
	n := len(segs)
	if c.cfg.TransitionMs <= 0 {
		var b strings.Builder
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "[v%d]", i)
		}
		fmt.Fprintf(&b, "concat=n=%d:v=1:a=0[vout]", n)
		return []string{b.String()}
	}

	stmts := make([]string, 0, n-1)
	prev := "[v0]"
	cumMs := segs[0].DurationMs()
	for i := 1; i < n; i++ {
		// The fade cannot outlast either side of the cut.
		t := c.cfg.TransitionMs
		if d := segs[i-1].DurationMs(); d < t {
			t = d
		}
		if d := segs[i].DurationMs(); d < t {
			t = d
		}

		out := fmt.Sprintf("[vx%d]", i)
		if i == n-1 {
			out = "[vout]"
		}
		stmts = append(stmts, fmt.Sprintf("%s[v%d]xfade=transition=fade:duration=%s:offset=%s%s",
			prev, i, secs(t), secs(cumMs-t), out))
		cumMs += segs[i].DurationMs() - t
		prev = out
	}
	return stmts
}

func (c *compiler) assembleAudio(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[a%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=0:a=1[aout]", n)
	return b.String()
}

// --- Chain fragments ---

func (c *compiler) inputTrim(ref *timeline.SourceRef) string {
	return fmt.Sprintf("[%d:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS",
		ref.Input, secs(ref.TrimStartMs), secs(ref.TrimEndMs))
}

// letterbox fits any source into the canvas, padding with the background
// color, and pins the sample aspect ratio so downstream fades see identical
// geometry.
func (c *compiler) letterbox() string {
	w, h := c.cfg.CanvasWidth, c.cfg.CanvasHeight
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=%s,setsar=1",
		w, h, w, h, c.cfg.BackgroundColor)
}

// pipSquare center-crops the camera to the overlay square and rounds its
// corners with the squircle alpha mask. With rounding disabled the square
// stays fully opaque and never leaves yuv420p.
func (c *compiler) pipSquare() string {
	s := c.cfg.PiPSize
	crop := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1", s, s, s, s)
	if c.cfg.PiPCornerRadius <= 0 {
		return crop
	}
	return crop + ",format=rgba,geq=r='r(X,Y)':g='g(X,Y)':b='b(X,Y)':a='" + SquircleAlpha(s, c.cfg.PiPCornerRadius) + "'"
}

func (c *compiler) pipX() int {
	return c.cfg.CanvasWidth - c.cfg.PiPSize - c.cfg.PiPMargin
}

func (c *compiler) pipY() int {
	return c.cfg.CanvasHeight - c.cfg.PiPSize - c.cfg.PiPMargin
}

func (c *compiler) normalize() string {
	return fmt.Sprintf("format=yuv420p,fps=%d", c.cfg.FrameRate)
}

func (c *compiler) aformat() string {
	return fmt.Sprintf("aformat=sample_fmts=fltp:sample_rates=%d:channel_layouts=%s",
		c.cfg.AudioSampleRate, channelLayout(c.cfg.AudioChannels))
}

func channelLayout(channels int) string {
	if channels == 1 {
		return "mono"
	}
	return "stereo"
}

// secs renders milliseconds as a seconds literal with fixed millisecond
// precision. Integer math keeps compiled graphs byte-identical across runs
// and platforms.
func secs(ms int64) string {
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}
