// Package recorder drives one participant's side of a live session: local
// capture through the clip manager, focus marking, and mirroring of clips
// and focus events over the peer link so every participant ends the session
// with a complete manifest and asset set.
//
// The recorder is both a peerlink.Handler (applying remote events to the
// local session) and a clip.Notifier (broadcasting local clip lifecycle to
// the peers). Hosting and joining differ only in who announces the session
// origin: the host establishes it at creation, a joiner records on
// provisional stamps until the announcement arrives and then rebases.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/capture"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/clip"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/config"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/display"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/logging"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/peerlink"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/store"
)

// Devices names the local capture hardware. Empty fields fall back to the
// platform defaults in the capture package.
type Devices struct {
	Camera  string
	Mic     string
	Display string
}

// Options configure a recorder for one session.
type Options struct {
	Self        session.ParticipantID
	JoinSession string // session id to join; empty hosts a new session
	Devices     Devices
	TestPattern bool // synthesize media instead of opening devices
}

// timeNow is the wall clock feeding the session clock; tests replace it.
var timeNow = func() int64 { return time.Now().UnixMilli() }

// Recorder owns the recording side of one session for one participant.
type Recorder struct {
	cfg     config.Config
	log     *logging.Logger
	opts    Options
	sess    *session.Session
	clock   *session.Clock
	focus   *session.FocusLog
	layout  store.Layout
	manager *clip.Manager

	// newSource builds the capture source for a kind; tests swap it out.
	newSource func(kind session.SourceType) capture.Source

	mu   sync.Mutex
	link *peerlink.Link
}

// New prepares a recorder and its session directory. Hosting creates a
// fresh session and establishes the clock origin immediately; joining
// adopts the given id as session and relay room and leaves the clock to
// the host's origin announcement.
func New(cfg config.Config, log *logging.Logger, opts Options) (*Recorder, error) {
	if opts.Self == "" {
		return nil, errors.New("participant name must not be empty")
	}

	clock := session.NewClockAt(timeNow)
	var sess *session.Session
	if opts.JoinSession == "" {
		sess = session.New(opts.Self)
		origin := timeNow()
		clock.Establish(origin)
		sess.OriginUnixMs = origin
	} else {
		if cfg.RelayURL == "" {
			return nil, errors.New("joining a session needs a relay URL")
		}
		sess = &session.Session{
			ID:        opts.JoinSession,
			CreatedAt: time.Now().UTC(),
		}
	}
	sess.AddParticipant(session.Participant{ID: opts.Self, JoinedMs: clock.Now()})

	layout := store.SessionLayout(cfg.StorageRoot, sess.ID)
	if err := layout.Ensure(); err != nil {
		return nil, err
	}
	st, err := store.NewFS(layout.ChunkRoot())
	if err != nil {
		return nil, err
	}
	if err := sess.Save(layout.ManifestPath()); err != nil {
		return nil, fmt.Errorf("write initial manifest: %w", err)
	}

	r := &Recorder{
		cfg:    cfg,
		log:    log,
		opts:   opts,
		sess:   sess,
		clock:  clock,
		focus:  session.NewFocusLog(sess.Creator),
		layout: layout,
	}
	r.newSource = r.captureSource
	r.manager = clip.NewManager(log, sess, clock, st, layout)
	r.manager.SetNotifier(r)
	return r, nil
}

// Hosting reports whether this recorder created the session.
func (r *Recorder) Hosting() bool { return r.opts.JoinSession == "" }

// SessionID returns the session (and relay room) identifier.
func (r *Recorder) SessionID() string { return r.sess.ID }

// Dir returns the session directory on disk.
func (r *Recorder) Dir() string { return r.layout.Dir }

// Snapshot returns a copy of the session manifest as it stands.
func (r *Recorder) Snapshot() session.Session { return r.manager.Snapshot() }

// Active returns the clips currently recording.
func (r *Recorder) Active() []session.Clip { return r.manager.Active() }

// Connect dials the relay room named by the session id and starts consuming
// peer traffic. Without a relay URL the session stays solo and Connect is a
// no-op.
func (r *Recorder) Connect(ctx context.Context) error {
	if r.cfg.RelayURL == "" {
		return nil
	}
	link, err := peerlink.Dial(ctx, r.cfg.RelayURL, r.sess.ID, r.opts.Self)
	if err != nil {
		return fmt.Errorf("connect relay: %w", err)
	}
	r.mu.Lock()
	r.link = link
	r.mu.Unlock()

	if r.Hosting() {
		if err := link.AnnounceOrigin(r.sess.ID, r.clock.OriginUnixMs()); err != nil {
			r.log.Warn("origin not announced: %v", err)
		}
	}
	go func() {
		if err := link.ReadLoop(ctx, r); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("peer link closed: %v", err)
		}
	}()
	r.log.Info("connected to relay %s (room %s)", r.cfg.RelayURL, r.sess.ID)
	return nil
}

// Close stops every local capture, then drops the peer link. Capture stops
// first so the final clip ends still reach the peers.
func (r *Recorder) Close() error {
	err := r.manager.StopAll()

	r.mu.Lock()
	link := r.link
	r.link = nil
	r.mu.Unlock()
	if link != nil {
		if cerr := link.Close(); cerr != nil {
			r.log.Debug("peer link close: %v", cerr)
		}
	}
	return err
}

// StartCamera begins the camera take for this participant.
func (r *Recorder) StartCamera(ctx context.Context) error {
	_, err := r.manager.Start(ctx, r.opts.Self, session.SourceCamera, r.newSource(session.SourceCamera))
	return err
}

// ToggleVideo flips the camera slot between camera and audio-only capture.
// With nothing active it starts the camera. The manager's implicit handoff
// keeps the slot gap-free across the switch.
func (r *Recorder) ToggleVideo(ctx context.Context) error {
	kind := session.SourceCamera
	if r.activeSlotSource() == session.SourceCamera {
		kind = session.SourceMic
	}
	_, err := r.manager.Start(ctx, r.opts.Self, kind, r.newSource(kind))
	return err
}

// ToggleScreen starts the screen share, or stops it when one is running.
func (r *Recorder) ToggleScreen(ctx context.Context) error {
	for _, c := range r.manager.Active() {
		if c.Owner == r.opts.Self && c.Source == session.SourceScreen {
			_, err := r.manager.Stop(c.ID)
			return err
		}
	}
	_, err := r.manager.Start(ctx, r.opts.Self, session.SourceScreen, r.newSource(session.SourceScreen))
	return err
}

// SetFocus marks peer as focused from now on and mirrors the change.
func (r *Recorder) SetFocus(peer session.ParticipantID) {
	at, provisional := r.clock.Stamp()
	ev := session.FocusEvent{AtMs: at, Peer: peer}
	if !r.applyFocus(ev, provisional) {
		return
	}
	if link := r.activeLink(); link != nil {
		if err := link.SendFocus(ev); err != nil {
			r.log.Warn("focus change not mirrored: %v", err)
		}
	}
	r.log.Info("focus on %s at %s", peer, display.FormatDurationMs(ev.AtMs))
}

// --- peerlink.Handler ---

// HandleOrigin adopts the announced session origin. The host re-announces
// before every clip begin, so repeats are the common case and are dropped.
// The first announcement rebases only locally issued provisional stamps:
// events and clips delivered by peers were stamped against the real origin
// on their side and keep their times.
func (r *Recorder) HandleOrigin(from session.ParticipantID, originUnixMs int64) error {
	if r.clock.Established() {
		return nil
	}
	shift, rebased := r.clock.Establish(originUnixMs)
	if rebased {
		r.focus.Shift(shift)
		r.manager.ShiftProvisional(shift)
	}
	r.manager.UpdateSession(func(s *session.Session) {
		s.OriginUnixMs = originUnixMs
		if s.Creator == "" {
			s.Creator = from
		}
		if rebased {
			s.Focus = r.focus.Events()
			// The local join stamp is the one participant entry issued on
			// the provisional clock.
			for i := range s.Participants {
				if s.Participants[i].ID == r.opts.Self {
					s.Participants[i].JoinedMs += shift
				}
			}
		}
	})
	if rebased {
		r.log.Info("session origin from %s, local stamps shifted by %dms", from, shift)
	} else {
		r.log.Info("session origin from %s", from)
	}
	return nil
}

// HandleFocus applies a peer's focus change. The peer stamped it on the
// shared clock already, so it lands settled. Redeliveries dedup in the log.
func (r *Recorder) HandleFocus(ev session.FocusEvent) error {
	r.applyFocus(ev, false)
	return nil
}

// HandleClipBegin opens the local mirror of a clip a peer started.
func (r *Recorder) HandleClipBegin(clipID string, owner session.ParticipantID, kind session.SourceType, startMs int64, container string) error {
	if err := r.manager.IntakeBegin(clipID, owner, kind, startMs, container); err != nil {
		r.log.Warn("peer clip %s not accepted: %v", clipID, err)
	}
	return nil
}

// HandleClipChunk persists one transferred chunk.
func (r *Recorder) HandleClipChunk(clipID string, index int, data []byte) error {
	if err := r.manager.IntakeChunk(clipID, index, data); err != nil {
		r.log.Warn("peer chunk %d of %s dropped: %v", index, clipID, err)
	}
	return nil
}

// HandleClipEnd finalizes the mirrored clip.
func (r *Recorder) HandleClipEnd(clipID string, endMs int64) error {
	if _, err := r.manager.IntakeEnd(clipID, endMs); err != nil {
		r.log.Warn("peer clip %s not finalized: %v", clipID, err)
	}
	return nil
}

// --- clip.Notifier ---

// ClipStarted mirrors a locally started clip. The host rides the origin
// announcement ahead of every begin so peers that joined late can anchor
// the stamps; receivers treat repeats as no-ops.
func (r *Recorder) ClipStarted(c session.Clip) {
	link := r.activeLink()
	if link == nil {
		return
	}
	if r.Hosting() {
		if err := link.AnnounceOrigin(r.sess.ID, r.clock.OriginUnixMs()); err != nil {
			r.log.Warn("origin not announced: %v", err)
		}
	}
	if err := link.SendClipBegin(c); err != nil {
		r.log.Warn("clip %s begin not mirrored: %v", c.ID, err)
	}
}

// ClipChunk mirrors one captured chunk.
func (r *Recorder) ClipChunk(clipID string, index int, data []byte) {
	link := r.activeLink()
	if link == nil {
		return
	}
	if err := link.SendClipChunk(clipID, index, data); err != nil {
		r.log.Warn("chunk %d of %s not mirrored: %v", index, clipID, err)
	}
}

// ClipEnded mirrors the end of a local clip.
func (r *Recorder) ClipEnded(c session.Clip) {
	link := r.activeLink()
	if link == nil {
		return
	}
	if err := link.SendClipEnd(c.ID, c.EndMs); err != nil {
		r.log.Warn("clip %s end not mirrored: %v", c.ID, err)
	}
}

// --- internals ---

// applyFocus records the event and keeps the manifest's focus list in sync
// with the log. Returns whether the log changed.
func (r *Recorder) applyFocus(ev session.FocusEvent, provisional bool) bool {
	var changed bool
	if provisional {
		changed = r.focus.AppendProvisional(ev)
	} else {
		changed = r.focus.Append(ev)
	}
	if !changed {
		return false
	}
	r.manager.UpdateSession(func(s *session.Session) {
		s.Focus = r.focus.Events()
	})
	return true
}

// activeSlotSource returns what currently occupies this participant's camera
// slot, or "" when the slot is idle.
func (r *Recorder) activeSlotSource() session.SourceType {
	for _, c := range r.manager.Active() {
		if c.Owner == r.opts.Self && c.Source.CameraSlot() {
			return c.Source
		}
	}
	return ""
}

func (r *Recorder) activeLink() *peerlink.Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.link
}

func (r *Recorder) captureSource(kind session.SourceType) capture.Source {
	if r.opts.TestPattern {
		return capture.NewTestPattern(r.cfg, string(kind))
	}
	switch kind {
	case session.SourceMic:
		return capture.NewMicrophone(r.cfg, r.opts.Devices.Mic)
	case session.SourceScreen:
		return capture.NewScreen(r.cfg, r.opts.Devices.Display)
	default:
		return capture.NewCamera(r.cfg, r.opts.Devices.Camera, r.opts.Devices.Mic)
	}
}
