// Package timeline reconstructs the composition timeline of a session: it
// turns the finalized clips and the focus log into an ordered, gap-free list
// of segments, each naming the focused participant, the layout to render,
// and trimmed references into the input assets.
//
// Segments are derived data. They are recomputed from the manifest at export
// time, never persisted, and the same manifest always yields the same plan.
package timeline

import (
	"fmt"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
)

// Layout names the visual arrangement of one segment.
type Layout string

const (
	// LayoutScreenPiP shows the screen full-frame with the camera as a
	// rounded square overlay in the bottom-right corner.
	LayoutScreenPiP Layout = "screen-pip"
	// LayoutCameraOnly letterboxes the camera to the full canvas.
	LayoutCameraOnly Layout = "camera-only"
	// LayoutScreenOnly letterboxes the screen to the full canvas.
	LayoutScreenOnly Layout = "screen-only"
	// LayoutBlank renders a solid background. The segment may still carry
	// audio from a mic-only clip.
	LayoutBlank Layout = "blank"
)

// SourceRef points a segment at a time slice of one input asset. Trims are
// relative to the clip's own start, which is what the encoder's trim filters
// expect.
type SourceRef struct {
	Input       int // index into Plan.Inputs
	Source      session.SourceType
	TrimStartMs int64
	TrimEndMs   int64
}

// Segment is one slice of the reconstructed timeline. Camera and Screen are
// the video sources the layout composites; Audio is the single audio source,
// nil when the segment falls back to silence.
type Segment struct {
	StartMs int64
	EndMs   int64
	Focused session.ParticipantID
	Layout  Layout
	Camera  *SourceRef
	Screen  *SourceRef
	Audio   *SourceRef
}

// DurationMs returns the segment length.
func (s *Segment) DurationMs() int64 { return s.EndMs - s.StartMs }

// Input is one distinct asset file referenced by the plan, in first-use
// order. The index in Plan.Inputs is the encoder input index.
type Input struct {
	ClipID string
	Owner  session.ParticipantID
	Source session.SourceType
	Asset  string // relative to the session directory
}

// Plan is the full export plan: the segment list plus every input it
// references. It lives for a single export invocation.
type Plan struct {
	StartMs  int64
	EndMs    int64
	Segments []Segment
	Inputs   []Input
	Warnings []string
}

// TotalMs returns the planned output duration before transition overlap.
func (p *Plan) TotalMs() int64 { return p.EndMs - p.StartMs }

// Validate checks the structural invariants every well-formed plan holds:
// segments are contiguous, non-overlapping, cover exactly [StartMs, EndMs],
// and every source reference points at a real input with sane trims.
func (p *Plan) Validate() error {
	if len(p.Segments) == 0 {
		return fmt.Errorf("plan has no segments")
	}
	if p.Segments[0].StartMs != p.StartMs {
		return fmt.Errorf("first segment starts at %d, window starts at %d", p.Segments[0].StartMs, p.StartMs)
	}
	if last := p.Segments[len(p.Segments)-1]; last.EndMs != p.EndMs {
		return fmt.Errorf("last segment ends at %d, window ends at %d", last.EndMs, p.EndMs)
	}
	for i := range p.Segments {
		seg := &p.Segments[i]
		if seg.EndMs <= seg.StartMs {
			return fmt.Errorf("segment %d has non-positive duration [%d,%d)", i, seg.StartMs, seg.EndMs)
		}
		if i > 0 && seg.StartMs != p.Segments[i-1].EndMs {
			return fmt.Errorf("segment %d starts at %d, previous ends at %d", i, seg.StartMs, p.Segments[i-1].EndMs)
		}
		for _, ref := range []*SourceRef{seg.Camera, seg.Screen, seg.Audio} {
			if ref == nil {
				continue
			}
			if ref.Input < 0 || ref.Input >= len(p.Inputs) {
				return fmt.Errorf("segment %d references input %d of %d", i, ref.Input, len(p.Inputs))
			}
			if ref.TrimStartMs < 0 || ref.TrimEndMs <= ref.TrimStartMs {
				return fmt.Errorf("segment %d has invalid trim [%d,%d)", i, ref.TrimStartMs, ref.TrimEndMs)
			}
		}
	}
	return nil
}

// SelectLayout decides the visual arrangement from the video sources a
// segment actually resolved. A mic-backed camera slot contributes no video,
// so it never reaches here as a camera ref.
func SelectLayout(camera, screen *SourceRef) Layout {
	switch {
	case camera != nil && screen != nil:
		return LayoutScreenPiP
	case camera != nil:
		return LayoutCameraOnly
	case screen != nil:
		return LayoutScreenOnly
	default:
		return LayoutBlank
	}
}
