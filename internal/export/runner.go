package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/config"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/display"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/ffmpeg"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/logging"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/probe"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/store"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/timeline"
)

// conservativeDurationMs stands in when ffprobe reports no duration for an
// asset, which streamed WebM and Matroska files routinely omit. It only
// feeds the shorter-than-manifest warning, never a trim, so erring long
// keeps the warning quiet rather than spurious.
const conservativeDurationMs int64 = 24 * 60 * 60 * 1000

// durationSlackMs forgives container rounding before the short-asset
// warning fires.
const durationSlackMs int64 = 500

// stderrTailLines is how much encoder output a failure report keeps.
const stderrTailLines = 20

// Runner drives session exports.
type Runner struct {
	cfg config.Config
	log *logging.Logger
}

// NewRunner returns a Runner bound to the given configuration and logger.
func NewRunner(cfg config.Config, log *logging.Logger) *Runner {
	return &Runner{cfg: cfg, log: log}
}

// Run exports sess into its exports directory.
//
// Flow:
//  1. Derive the timeline plan from the manifest.
//  2. Resolve every input asset on disk and probe it (bounded concurrency).
//  3. Compile the filter graph and pick a collision-free output path.
//  4. Run the encoder with progress updates, retrying once on a known
//     timestamp discontinuity.
//
// An error return means a problem was detected before the encoder started;
// once it runs, the outcome lands in Result, and a cancelled context yields
// StatusCancelled rather than StatusFailed. Progress updates go to progress
// (may be nil) and never block.
func (r *Runner) Run(ctx context.Context, sess *session.Session, layout store.Layout, progress chan<- Progress) (*Result, error) {
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("session manifest: %w", err)
	}

	// --- Timeline ---

	plan, err := timeline.Build(sess)
	if err != nil {
		if errors.Is(err, timeline.ErrNoClips) {
			return nil, ErrNoSegments
		}
		return nil, err
	}
	for _, w := range plan.Warnings {
		r.log.Warn("%s", w)
	}
	if len(plan.Inputs) == 0 {
		if !allBlank(plan) {
			return nil, ErrNoInputFiles
		}
		// Degraded all the way down: the focused participants never
		// recorded. Render the background and silence rather than abort.
		r.log.Warn("Timeline references no media, rendering background and silence")
	}
	r.log.Info("Timeline: %d segments over %s, %d inputs",
		len(plan.Segments), display.FormatDurationMs(plan.TotalMs()), len(plan.Inputs))

	// --- Inputs ---

	paths := make([]string, len(plan.Inputs))
	for i, in := range plan.Inputs {
		p := filepath.Join(layout.Dir, filepath.FromSlash(in.Asset))
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("asset for clip %s: %w", in.ClipID, err)
		}
		paths[i] = p
	}

	hasAudio, err := r.probeInputs(ctx, plan, paths, progress)
	if err != nil {
		return nil, err
	}

	// --- Graph ---

	graph, err := ffmpeg.Compile(r.cfg, plan, hasAudio)
	if err != nil {
		return nil, fmt.Errorf("compiling filter graph: %w", err)
	}

	if err := os.MkdirAll(layout.ExportsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating exports directory: %w", err)
	}
	stem := fmt.Sprintf("%s-%s", shortID(sess.ID), r.cfg.Profile)
	outputPath, err := resolveOutputPath(layout.ExportsDir(), stem, r.cfg.Profile.Container())
	if err != nil {
		return nil, err
	}

	// --- Encode ---

	r.log.Info("Rendering %s", filepath.Base(outputPath))
	return r.encode(ctx, paths, graph, outputPath, progress), nil
}

// probeInputs inspects every input asset concurrently and reports, per
// input, whether the file actually carries an audio stream. The compiler
// substitutes silence where it does not, so a probe failure here is fatal:
// guessing wrong would make the encoder reference a stream that does not
// exist.
func (r *Runner) probeInputs(ctx context.Context, plan *timeline.Plan, paths []string, progress chan<- Progress) ([]bool, error) {
	maxEnds := maxTrimEnds(plan)
	hasAudio := make([]bool, len(paths))

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	limit := r.cfg.ProbeConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i := range paths {
		i := i
		g.Go(func() error {
			res, err := probe.Probe(gctx, paths[i])
			if err != nil {
				return fmt.Errorf("probing %s: %w", paths[i], err)
			}
			in := &plan.Inputs[i]
			hasAudio[i] = res.HasAudio()
			r.log.Debug("Probe %s: %s, audio=%v, %s",
				in.ClipID, res.Resolution(), res.HasAudio(), display.FormatDurationMs(res.DurationMs()))

			if in.Source.HasVideo() && !res.HasVideo() {
				r.log.Warn("Asset for clip %s has no video stream; the render will fail", in.ClipID)
			}
			durMs := res.DurationMs()
			if durMs == 0 {
				r.log.Debug("Probe %s: no duration reported, assuming %s", in.ClipID, display.FormatDurationMs(conservativeDurationMs))
				durMs = conservativeDurationMs
			}
			if durMs+durationSlackMs < maxEnds[i] {
				r.log.Warn("Asset for clip %s is shorter than its manifest window (%s < %s); the render may come out short",
					in.ClipID, display.FormatDurationMs(durMs), display.FormatDurationMs(maxEnds[i]))
			}

			send(progress, Progress{
				Phase:    "probing",
				Fraction: probeWeight * float64(done.Add(1)) / float64(len(paths)),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hasAudio, nil
}

// encode runs the encoder to completion, retrying once with regenerated
// timestamps when the failure matches a known DTS discontinuity. Partial
// output files are removed on every non-success outcome; exports are
// all-or-nothing.
func (r *Runner) encode(ctx context.Context, inputs []string, graph *ffmpeg.Graph, outputPath string, progress chan<- Progress) *Result {
	rs := ffmpeg.NewRetryState()
	for {
		args := ffmpeg.BuildArgs(r.cfg, inputs, graph, outputPath, rs)
		r.log.Debug("ffmpeg command: %s", strings.Join(args, " "))

		run := ffmpeg.Execute(ctx, r.cfg, args, func(outMs int64) {
			f := float64(outMs) / float64(graph.DurationMs)
			if f > 1 {
				f = 1
			}
			send(progress, Progress{
				Phase:    "encoding",
				Fraction: probeWeight + (1-probeWeight)*f,
				OutMs:    outMs,
				TotalMs:  graph.DurationMs,
			})
		})
		if run.Err == nil {
			send(progress, Progress{Phase: "encoding", Fraction: 1, OutMs: graph.DurationMs, TotalMs: graph.DurationMs})
			return &Result{
				Status:     StatusSuccess,
				OutputPath: outputPath,
				Message:    "export complete",
				Graph:      graph.Script,
			}
		}

		_ = os.Remove(outputPath)
		if ctx.Err() != nil {
			return &Result{Status: StatusCancelled, Message: "export cancelled", Graph: graph.Script}
		}
		if rs.Advance(run.Stderr) == ffmpeg.RetryNone {
			tail := ffmpeg.StderrTail(run.Stderr, stderrTailLines)
			r.logStderr(tail)
			return &Result{
				Status:      StatusFailed,
				Message:     fmt.Sprintf("ffmpeg failed: %v", run.Err),
				Graph:       graph.Script,
				Diagnostics: tail,
			}
		}
		r.log.Warn("Encoder hit a timestamp discontinuity, retrying with regenerated timestamps")
	}
}

// logStderr surfaces the tail of the encoder's stderr so failures are
// diagnosable without re-running verbose.
func (r *Runner) logStderr(tail string) {
	if tail == "" {
		return
	}
	r.log.Error("ffmpeg output (last %d lines):", stderrTailLines)
	for _, line := range strings.Split(tail, "\n") {
		r.log.Error("  %s", line)
	}
}

// allBlank reports whether every segment degraded to a silent background.
func allBlank(plan *timeline.Plan) bool {
	for i := range plan.Segments {
		seg := &plan.Segments[i]
		if seg.Layout != timeline.LayoutBlank || seg.Audio != nil {
			return false
		}
	}
	return true
}

// maxTrimEnds returns, per input, the furthest point any segment reads into
// that asset. Feeds the duration sanity warning only.
func maxTrimEnds(plan *timeline.Plan) []int64 {
	ends := make([]int64, len(plan.Inputs))
	for i := range plan.Segments {
		seg := &plan.Segments[i]
		for _, ref := range []*timeline.SourceRef{seg.Camera, seg.Screen, seg.Audio} {
			if ref != nil && ref.TrimEndMs > ends[ref.Input] {
				ends[ref.Input] = ref.TrimEndMs
			}
		}
	}
	return ends
}

// shortID keeps file names readable; session ids are UUIDs.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
