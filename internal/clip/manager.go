// Package clip runs the recording lifecycle: it turns capture sources into
// persisted chunk streams, stamps start and end on the shared session clock,
// and finalizes each take into a single asset file referenced by the
// manifest.
//
// Every participant owns two independent slots. Camera and microphone share
// one (a mic take stands in for the camera), screen capture has its own, so
// starting a source implicitly ends whatever was active in its slot at the
// exact same timeline instant. That instant-handoff rule is what lets the
// segmenter treat clip boundaries as clean cuts.
package clip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/capture"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/logging"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/store"
)

var (
	// ErrClipNotFound means the clip id is not known to this manager.
	ErrClipNotFound = errors.New("clip not found")
	// ErrClipStopped means the clip already left the recording state.
	ErrClipStopped = errors.New("clip already stopped")
	// ErrUnknownParticipant means the owner never joined the session.
	ErrUnknownParticipant = errors.New("participant not in session")
)

type clipState int

const (
	stateRecording clipState = iota
	stateStopping
	stateFinalized
)

type slotKind int

const (
	slotCamera slotKind = iota
	slotScreen
)

func slotOf(s session.SourceType) slotKind {
	if s.CameraSlot() {
		return slotCamera
	}
	return slotScreen
}

type slotKey struct {
	owner session.ParticipantID
	slot  slotKind
}

// record is the manager's runtime view of one clip. Manifest data lives in
// the session's clip list; idx points at it and stays valid because only the
// manager mutates that list, always under mu.
type record struct {
	idx         int
	id          string
	owner       session.ParticipantID
	source      session.SourceType
	state       clipState
	provisional bool           // stamped before the origin announcement
	src         capture.Source // nil for clips delivered by a peer
	pump        chan struct{}  // closed when the pump loop exits
	written     int            // chunks persisted so far
}

// Notifier observes local clip lifecycle events so another component (the
// peer link) can mirror them without the manager knowing about transport.
// Calls arrive from manager goroutines; peer-delivered clips never notify.
type Notifier interface {
	ClipStarted(c session.Clip)
	ClipChunk(clipID string, index int, data []byte)
	ClipEnded(c session.Clip)
}

// Manager owns all clip state for one session.
type Manager struct {
	mu     sync.Mutex
	log    *logging.Logger
	clock  *session.Clock
	sess   *session.Session
	store  store.Store
	layout store.Layout
	notify Notifier

	clips []*record
	byID  map[string]*record
	slots map[slotKey]*record
}

// NewManager wires a manager over an open session.
func NewManager(log *logging.Logger, sess *session.Session, clock *session.Clock, st store.Store, layout store.Layout) *Manager {
	return &Manager{
		log:    log,
		clock:  clock,
		sess:   sess,
		store:  st,
		layout: layout,
		byID:   make(map[string]*record),
		slots:  make(map[slotKey]*record),
	}
}

// SetNotifier registers the lifecycle observer. Set it before the first
// clip starts.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = n
}

func (m *Manager) notifier() Notifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notify
}

// UpdateSession runs f under the manager's session lock and persists the
// manifest. The recorder uses it for the session-level fields it owns
// (focus log, origin, creator); clip state stays the manager's business.
func (m *Manager) UpdateSession(f func(*session.Session)) {
	m.mu.Lock()
	f(m.sess)
	m.mu.Unlock()
	m.saveManifest()
}

// ShiftProvisional rebases clips stamped before the origin announcement by
// deltaMs and settles them. Peer-delivered clips carry real global times
// and stay put. The caller persists the manifest afterwards.
func (m *Manager) ShiftProvisional(deltaMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.clips {
		if !rec.provisional {
			continue
		}
		rec.provisional = false
		m.sess.Clips[rec.idx].StartMs += deltaMs
		// An end stamped while recording continues does not exist yet; it
		// will be issued against the real origin.
		if rec.state != stateRecording {
			m.sess.Clips[rec.idx].EndMs += deltaMs
		}
	}
}

// Start begins recording src as a new clip owned by owner.
//
// Flow:
//  1. Spawn the source; a dead device fails here, before any bookkeeping.
//  2. Stamp the shared clock once. If the owner's slot is busy, the active
//     clip is stopped and finalized with that same stamp as its end.
//  3. Register the new clip (open, not yet finalized) and launch the pump
//     that streams chunks into the store.
func (m *Manager) Start(ctx context.Context, owner session.ParticipantID, kind session.SourceType, src capture.Source) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown source type %q", kind)
	}
	if !m.hasParticipant(owner) {
		return "", fmt.Errorf("%w: %s", ErrUnknownParticipant, owner)
	}

	if err := src.Start(ctx); err != nil {
		return "", fmt.Errorf("start %s: %w", kind, err)
	}
	now, provisional := m.clock.Stamp()

	if old := m.activeInSlot(owner, slotOf(kind)); old != nil {
		m.log.Warn("%s already recording for %s, stopping it", old.source, owner)
		if _, err := m.stopRecord(old, now); err != nil {
			m.log.Warn("implicit stop of clip %s: %v", shortID(old.id), err)
		}
	}

	m.mu.Lock()
	id := uuid.New().String()
	m.sess.Clips = append(m.sess.Clips, session.Clip{
		ID:        id,
		Owner:     owner,
		Source:    kind,
		StartMs:   now,
		Container: src.Container(),
	})
	rec := &record{
		idx:         len(m.sess.Clips) - 1,
		id:          id,
		owner:       owner,
		source:      kind,
		state:       stateRecording,
		provisional: provisional,
		src:         src,
		pump:        make(chan struct{}),
	}
	m.clips = append(m.clips, rec)
	m.byID[id] = rec
	m.slots[slotKey{owner, slotOf(kind)}] = rec
	started := m.sess.Clips[rec.idx]
	m.mu.Unlock()

	m.saveManifest()
	// Notify before the pump launches so observers always see the begin
	// ahead of the first chunk.
	if n := m.notifier(); n != nil {
		n.ClipStarted(started)
	}
	go m.pump(rec)

	m.log.Info("recording %s for %s (clip %s)", kind, owner, shortID(id))
	return id, nil
}

// Stop ends a recording clip at the current clock stamp and finalizes it.
func (m *Manager) Stop(clipID string) (session.Clip, error) {
	m.mu.Lock()
	rec, ok := m.byID[clipID]
	m.mu.Unlock()
	if !ok {
		return session.Clip{}, fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}
	return m.stopRecord(rec, m.clock.Now())
}

// StopAll ends every recording clip. Used at session teardown and on
// interrupt, so it keeps going past individual failures.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	active := make([]*record, 0, len(m.slots))
	for _, rec := range m.slots {
		active = append(active, rec)
	}
	m.mu.Unlock()

	var errs []error
	for _, rec := range active {
		if _, err := m.stopRecord(rec, m.clock.Now()); err != nil && !errors.Is(err, ErrClipStopped) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Snapshot returns a deep copy of the session as it stands, safe to read
// while recording continues.
func (m *Manager) Snapshot() session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *m.sess
	s.Participants = append([]session.Participant(nil), m.sess.Participants...)
	s.Clips = append([]session.Clip(nil), m.sess.Clips...)
	s.Focus = append([]session.FocusEvent(nil), m.sess.Focus...)
	return s
}

// Active returns copies of the clips still recording.
func (m *Manager) Active() []session.Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []session.Clip
	for _, rec := range m.clips {
		if rec.state == stateRecording {
			out = append(out, m.sess.Clips[rec.idx])
		}
	}
	return out
}

// stopRecord transitions a clip out of recording, waits for its writer to
// drain, and finalizes the asset. endMs is stamped before the source winds
// down so implicit handoffs share the successor's start instant.
func (m *Manager) stopRecord(rec *record, endMs int64) (session.Clip, error) {
	m.mu.Lock()
	if rec.state != stateRecording {
		m.mu.Unlock()
		return session.Clip{}, fmt.Errorf("%w: %s", ErrClipStopped, rec.id)
	}
	rec.state = stateStopping
	m.sess.Clips[rec.idx].EndMs = endMs
	key := slotKey{rec.owner, slotOf(rec.source)}
	if m.slots[key] == rec {
		delete(m.slots, key)
	}
	m.mu.Unlock()

	if rec.src != nil {
		if err := rec.src.Stop(); err != nil {
			m.log.Warn("stopping %s source: %v", rec.source, err)
		}
		<-rec.pump
	}
	return m.finalize(rec)
}

// pump streams source chunks into the store until the source ends. Write
// failures are logged and skipped; a hole in the chunk sequence costs a
// moment of media, not the take.
func (m *Manager) pump(rec *record) {
	defer close(rec.pump)
	for i := 0; ; i++ {
		chunk, err := rec.src.Next()
		if err != nil {
			if err != io.EOF {
				m.log.Warn("clip %s source ended early: %v", shortID(rec.id), err)
			}
			return
		}
		if err := m.store.Append(rec.id, i, chunk); err != nil {
			m.log.Warn("clip %s chunk %d not persisted: %v", shortID(rec.id), i, err)
			continue
		}
		rec.written++
		if n := m.notifier(); n != nil {
			n.ClipChunk(rec.id, i, chunk)
		}
	}
}

// finalize assembles the chunk stream into the clip's asset file, marks the
// clip finalized in the manifest, and releases the chunk namespace. A take
// that never produced data is removed from the session instead.
func (m *Manager) finalize(rec *record) (session.Clip, error) {
	data, err := m.store.ReadAll(rec.id)
	if err != nil {
		return session.Clip{}, fmt.Errorf("assemble clip %s: %w", shortID(rec.id), err)
	}

	if len(data) == 0 {
		m.log.Warn("clip %s produced no data, discarding", shortID(rec.id))
		m.mu.Lock()
		ghost := m.sess.Clips[rec.idx]
		m.removeClipLocked(rec)
		m.mu.Unlock()
		_ = m.store.Delete(rec.id)
		m.saveManifest()
		// Peers that saw the begin still need the end so their copy can
		// finalize (and discard) the same way.
		if rec.src != nil {
			if n := m.notifier(); n != nil {
				n.ClipEnded(ghost)
			}
		}
		return session.Clip{}, nil
	}

	m.mu.Lock()
	container := m.sess.Clips[rec.idx].Container
	m.mu.Unlock()

	assetPath := m.layout.AssetPath(rec.id, container)
	if err := os.MkdirAll(filepath.Dir(assetPath), 0o755); err != nil {
		return session.Clip{}, err
	}
	if err := os.WriteFile(assetPath, data, 0o644); err != nil {
		return session.Clip{}, fmt.Errorf("write asset for clip %s: %w", shortID(rec.id), err)
	}
	if err := m.store.Delete(rec.id); err != nil {
		m.log.Warn("clip %s chunks not cleaned up: %v", shortID(rec.id), err)
	}

	m.mu.Lock()
	rec.state = stateFinalized
	c := &m.sess.Clips[rec.idx]
	c.Finalized = true
	// Manifest paths are slash-separated regardless of OS.
	c.Asset = path.Join("assets", rec.id+"."+container)
	c.Chunks = rec.written
	done := *c
	m.mu.Unlock()

	m.saveManifest()
	m.log.Success("clip %s finalized: %s", shortID(rec.id), done.Asset)
	if rec.src != nil {
		if n := m.notifier(); n != nil {
			n.ClipEnded(done)
		}
	}
	return done, nil
}

// removeClipLocked drops a clip from the session list and repairs the
// indices of every record behind it. Caller holds mu.
func (m *Manager) removeClipLocked(rec *record) {
	m.sess.Clips = append(m.sess.Clips[:rec.idx], m.sess.Clips[rec.idx+1:]...)
	for _, other := range m.clips {
		if other.idx > rec.idx {
			other.idx--
		}
	}
	delete(m.byID, rec.id)
	for i, other := range m.clips {
		if other == rec {
			m.clips = append(m.clips[:i], m.clips[i+1:]...)
			break
		}
	}
	rec.state = stateFinalized
}

func (m *Manager) activeInSlot(owner session.ParticipantID, slot slotKind) *record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[slotKey{owner, slot}]
}

func (m *Manager) hasParticipant(id session.ParticipantID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.sess.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (m *Manager) saveManifest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sess.Save(m.layout.ManifestPath()); err != nil {
		m.log.Warn("manifest not saved: %v", err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
