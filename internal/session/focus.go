package session

import (
	"sort"
	"sync"
)

// FocusEvent marks a change of the focused participant at a global time.
type FocusEvent struct {
	AtMs int64         `json:"atMs"`
	Peer ParticipantID `json:"peer"`
}

// focusEntry pairs an event with how it was stamped. Provisional entries
// were timed against a self-adopted origin and move on Shift; settled
// entries (peer-delivered or loaded from a manifest) already carry real
// global times and never move.
type focusEntry struct {
	ev          FocusEvent
	provisional bool
}

// FocusLog is the ordered, append-only log of focus changes for a session.
// It tolerates at-least-once delivery: appending an event that is already
// present is a no-op. Safe for concurrent use (events arrive from the peer
// link while the recorder consults the log).
type FocusLog struct {
	mu      sync.Mutex
	creator ParticipantID
	events  []focusEntry
}

// NewFocusLog returns a log for a session created by creator, seeded with
// prior settled events (e.g. from a loaded manifest).
func NewFocusLog(creator ParticipantID, prior ...FocusEvent) *FocusLog {
	l := &FocusLog{creator: creator}
	for _, ev := range prior {
		l.Append(ev)
	}
	return l
}

// Append inserts a settled event in timestamp order. Duplicate events (same
// time and peer) are dropped; returns whether the log changed.
func (l *FocusLog) Append(ev FocusEvent) bool {
	return l.insert(ev, false)
}

// AppendProvisional inserts an event stamped before the session origin was
// announced. Shift rebases it once the real origin arrives.
func (l *FocusLog) AppendProvisional(ev FocusEvent) bool {
	return l.insert(ev, true)
}

func (l *FocusLog) insert(ev FocusEvent, provisional bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := sort.Search(len(l.events), func(i int) bool {
		return l.events[i].ev.AtMs >= ev.AtMs
	})
	for j := i; j < len(l.events) && l.events[j].ev.AtMs == ev.AtMs; j++ {
		if l.events[j].ev.Peer == ev.Peer {
			return false
		}
	}
	l.events = append(l.events, focusEntry{})
	copy(l.events[i+1:], l.events[i:])
	l.events[i] = focusEntry{ev: ev, provisional: provisional}
	return true
}

// FocusedAt returns the participant focused at time t: the peer of the last
// event at or before t, or the session creator before any event.
func (l *FocusLog) FocusedAt(t int64) ParticipantID {
	l.mu.Lock()
	defer l.mu.Unlock()

	focused := l.creator
	for _, e := range l.events {
		if e.ev.AtMs > t {
			break
		}
		focused = e.ev.Peer
	}
	return focused
}

// Events returns a copy of the ordered log.
func (l *FocusLog) Events() []FocusEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FocusEvent, len(l.events))
	for i, e := range l.events {
		out[i] = e.ev
	}
	return out
}

// Len returns the number of recorded events.
func (l *FocusLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Shift rebases the provisional entries by delta and settles them. Settled
// entries stay put, so a peer event delivered ahead of the origin
// announcement keeps its real global time.
func (l *FocusLog) Shift(deltaMs int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.events {
		if !l.events[i].provisional {
			continue
		}
		l.events[i].ev.AtMs += deltaMs
		l.events[i].provisional = false
	}
	sort.SliceStable(l.events, func(i, j int) bool {
		return l.events[i].ev.AtMs < l.events[j].ev.AtMs
	})
}
