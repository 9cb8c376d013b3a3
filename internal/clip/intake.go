package clip

import (
	"fmt"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
)

// Intake mirrors clips recorded on peers into the local session. The peer
// stamps start and end on the shared clock before sending, so timestamps
// pass through untouched; chunks are persisted exactly like local ones and
// finalization follows the same path.
//
// All three calls tolerate redelivery: begin for a known clip is a no-op,
// chunks overwrite by index, and end on a finalized clip returns the
// existing result.

// IntakeBegin registers a peer clip as recording.
func (m *Manager) IntakeBegin(clipID string, owner session.ParticipantID, kind session.SourceType, startMs int64, container string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown source type %q", kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[clipID]; exists {
		return nil
	}

	// Peers announce themselves before recording, but a clip arriving first
	// is still proof enough that the owner exists.
	m.sess.AddParticipant(session.Participant{ID: owner, JoinedMs: startMs})

	m.sess.Clips = append(m.sess.Clips, session.Clip{
		ID:        clipID,
		Owner:     owner,
		Source:    kind,
		StartMs:   startMs,
		Container: container,
	})
	rec := &record{
		idx:    len(m.sess.Clips) - 1,
		id:     clipID,
		owner:  owner,
		source: kind,
		state:  stateRecording,
	}
	m.clips = append(m.clips, rec)
	m.byID[clipID] = rec

	m.log.Info("receiving %s clip %s from %s", kind, shortID(clipID), owner)
	return nil
}

// IntakeChunk persists one chunk of a peer clip.
func (m *Manager) IntakeChunk(clipID string, index int, data []byte) error {
	m.mu.Lock()
	rec, ok := m.byID[clipID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}
	if rec.state == stateFinalized {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrClipStopped, clipID)
	}
	m.mu.Unlock()

	if err := m.store.Append(clipID, index, data); err != nil {
		return fmt.Errorf("persist peer chunk %d of %s: %w", index, shortID(clipID), err)
	}

	m.mu.Lock()
	if index+1 > rec.written {
		rec.written = index + 1
	}
	m.mu.Unlock()
	return nil
}

// IntakeEnd stamps the peer clip's end and finalizes it.
func (m *Manager) IntakeEnd(clipID string, endMs int64) (session.Clip, error) {
	m.mu.Lock()
	rec, ok := m.byID[clipID]
	if !ok {
		m.mu.Unlock()
		return session.Clip{}, fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}
	if rec.state == stateFinalized {
		done := m.sess.Clips[rec.idx]
		m.mu.Unlock()
		return done, nil
	}
	rec.state = stateStopping
	m.sess.Clips[rec.idx].EndMs = endMs
	m.mu.Unlock()

	return m.finalize(rec)
}
