package timeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
)

// ErrNoClips means the session has no finalized clips to lay out.
var ErrNoClips = errors.New("session has no finalized clips")

// Build derives the export plan from a session manifest.
//
// Flow:
//  1. Collect the finalized clips and the recording window they span.
//  2. Union all cut points: every clip start and end, every focus change.
//  3. Walk the cut points and resolve, per interval, the focused
//     participant's active clip in each slot; merge intervals whose resolved
//     configuration is identical.
//  4. Materialize segments: trim refs relative to each clip's start, pick
//     the audio source, select the layout.
//
// The walk is deterministic: cut points are sorted, slot ties resolve to the
// last-started clip (then highest id), and inputs are numbered in first-use
// order.
func Build(sess *session.Session) (*Plan, error) {
	startMs, endMs, ok := sess.Window()
	if !ok {
		return nil, ErrNoClips
	}

	var warnings []string
	clips := make([]*session.Clip, 0, len(sess.Clips))
	for i := range sess.Clips {
		c := &sess.Clips[i]
		if !c.Finalized {
			warnings = append(warnings, fmt.Sprintf("clip %s is still open, excluded from the timeline", c.ID))
			continue
		}
		if c.EndMs <= c.StartMs {
			warnings = append(warnings, fmt.Sprintf("clip %s has no duration, excluded from the timeline", c.ID))
			continue
		}
		clips = append(clips, c)
	}
	if len(clips) == 0 {
		return nil, ErrNoClips
	}

	focus := session.NewFocusLog(sess.Creator, sess.Focus...)
	bounds := cutPoints(clips, sess.Focus, startMs, endMs)

	// Resolve each interval, merging neighbors with the same configuration.
	type interval struct {
		start, end int64
		focused    session.ParticipantID
		cam, scr   *session.Clip
	}
	var merged []interval
	seenOverlap := make(map[string]bool)
	for i := 0; i+1 < len(bounds); i++ {
		t0, t1 := bounds[i], bounds[i+1]
		focused := focus.FocusedAt(t0)

		cam, camN := activeInSlot(clips, focused, true, t0)
		scr, scrN := activeInSlot(clips, focused, false, t0)
		for _, overlap := range []struct {
			clip *session.Clip
			n    int
			slot string
		}{{cam, camN, "camera"}, {scr, scrN, "screen"}} {
			if overlap.n > 1 {
				key := fmt.Sprintf("%s/%s/%s", focused, overlap.slot, overlap.clip.ID)
				if !seenOverlap[key] {
					seenOverlap[key] = true
					warnings = append(warnings, fmt.Sprintf(
						"%s has %d overlapping %s clips at %dms, using last-started %s",
						focused, overlap.n, overlap.slot, t0, overlap.clip.ID))
				}
			}
		}

		if n := len(merged); n > 0 &&
			merged[n-1].focused == focused &&
			sameClip(merged[n-1].cam, cam) &&
			sameClip(merged[n-1].scr, scr) {
			merged[n-1].end = t1
			continue
		}
		merged = append(merged, interval{start: t0, end: t1, focused: focused, cam: cam, scr: scr})
	}

	plan := &Plan{StartMs: startMs, EndMs: endMs, Warnings: warnings}
	inputIdx := make(map[string]int)
	inputOf := func(c *session.Clip) int {
		if idx, ok := inputIdx[c.ID]; ok {
			return idx
		}
		idx := len(plan.Inputs)
		inputIdx[c.ID] = idx
		plan.Inputs = append(plan.Inputs, Input{
			ClipID: c.ID,
			Owner:  c.Owner,
			Source: c.Source,
			Asset:  c.Asset,
		})
		return idx
	}
	ref := func(c *session.Clip, start, end int64) *SourceRef {
		return &SourceRef{
			Input:       inputOf(c),
			Source:      c.Source,
			TrimStartMs: start - c.StartMs,
			TrimEndMs:   end - c.StartMs,
		}
	}

	for _, iv := range merged {
		seg := Segment{StartMs: iv.start, EndMs: iv.end, Focused: iv.focused}
		if iv.cam != nil && iv.cam.Source.HasVideo() {
			seg.Camera = ref(iv.cam, iv.start, iv.end)
		}
		if iv.scr != nil {
			seg.Screen = ref(iv.scr, iv.start, iv.end)
		}
		// Audio follows the camera slot: a mic take keeps the participant
		// audible even while their video is off. Screen audio is the
		// fallback; with neither, the compiler synthesizes silence.
		switch {
		case iv.cam != nil:
			seg.Audio = ref(iv.cam, iv.start, iv.end)
		case iv.scr != nil:
			seg.Audio = ref(iv.scr, iv.start, iv.end)
		}
		seg.Layout = SelectLayout(seg.Camera, seg.Screen)
		plan.Segments = append(plan.Segments, seg)
	}

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("segmenter produced an inconsistent plan: %w", err)
	}
	return plan, nil
}

// cutPoints returns the sorted, deduplicated union of all segment boundary
// candidates inside the recording window, always including both window ends.
func cutPoints(clips []*session.Clip, focus []session.FocusEvent, startMs, endMs int64) []int64 {
	set := map[int64]bool{startMs: true, endMs: true}
	for _, c := range clips {
		if c.StartMs > startMs && c.StartMs < endMs {
			set[c.StartMs] = true
		}
		if c.EndMs > startMs && c.EndMs < endMs {
			set[c.EndMs] = true
		}
	}
	for _, ev := range focus {
		if ev.AtMs > startMs && ev.AtMs < endMs {
			set[ev.AtMs] = true
		}
	}
	out := make([]int64, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// activeInSlot finds the focused participant's clip covering t in the given
// slot, plus how many candidates covered it. Overlapping candidates resolve
// to the last-started clip, ties to the highest id, so re-runs agree.
func activeInSlot(clips []*session.Clip, owner session.ParticipantID, cameraSlot bool, t int64) (*session.Clip, int) {
	var best *session.Clip
	n := 0
	for _, c := range clips {
		if c.Owner != owner || c.Source.CameraSlot() != cameraSlot || !c.Covers(t) {
			continue
		}
		n++
		if best == nil || c.StartMs > best.StartMs || (c.StartMs == best.StartMs && c.ID > best.ID) {
			best = c
		}
	}
	return best, n
}

func sameClip(a, b *session.Clip) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
