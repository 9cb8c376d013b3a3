// Package session defines the recorded-session model: the shared clock, the
// focus log, clip metadata, and the session manifest persisted as
// session.json inside each session directory.
//
// All timeline values are global milliseconds: offsets from the session
// origin, which is announced once by the session creator. Integer
// milliseconds keep every downstream computation (segmenting, trims,
// transition offsets) deterministic.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ParticipantID identifies one participant across the session.
type ParticipantID string

// SourceType classifies what a clip captured.
type SourceType string

const (
	SourceCamera SourceType = "camera" // Camera with its microphone track.
	SourceMic    SourceType = "mic"    // Audio-only capture, no video.
	SourceScreen SourceType = "screen" // Screen share, possibly with system audio.
)

// HasVideo reports whether clips of this source type carry a video stream.
func (s SourceType) HasVideo() bool { return s != SourceMic }

// CameraSlot reports whether clips of this source type occupy a participant's
// camera slot. Audio-only clips do: they stand in for the camera while
// contributing no video, so starting a mic clip implicitly stops a camera
// clip and vice versa.
func (s SourceType) CameraSlot() bool { return s == SourceCamera || s == SourceMic }

// Valid reports whether s is one of the known source types.
func (s SourceType) Valid() bool {
	switch s {
	case SourceCamera, SourceMic, SourceScreen:
		return true
	}
	return false
}

// Clip is one continuous recording from a single source. Times are global
// milliseconds; EndMs is meaningful only once Finalized is set.
type Clip struct {
	ID        string        `json:"id"`
	Owner     ParticipantID `json:"owner"`
	Source    SourceType    `json:"source"`
	StartMs   int64         `json:"startMs"`
	EndMs     int64         `json:"endMs,omitempty"`
	Finalized bool          `json:"finalized"`
	Asset     string        `json:"asset,omitempty"`     // Relative to the session directory.
	Container string        `json:"container,omitempty"` // Asset extension without the dot, e.g. "webm".
	Chunks    int           `json:"chunks,omitempty"`    // Chunk count at finalization.
}

// DurationMs returns the clip length, or 0 for open clips.
func (c *Clip) DurationMs() int64 {
	if !c.Finalized || c.EndMs < c.StartMs {
		return 0
	}
	return c.EndMs - c.StartMs
}

// Covers reports whether t falls inside the clip's half-open interval
// [StartMs, EndMs).
func (c *Clip) Covers(t int64) bool {
	return c.Finalized && t >= c.StartMs && t < c.EndMs
}

// Participant is one session member as recorded in the manifest.
type Participant struct {
	ID       ParticipantID `json:"id"`
	Name     string        `json:"name,omitempty"`
	JoinedMs int64         `json:"joinedMs"`
}

// Session is the manifest for one recorded session. It is the single
// artifact the exporter needs besides the asset files themselves.
type Session struct {
	ID           string        `json:"id"`
	CreatedAt    time.Time     `json:"createdAt"`
	Creator      ParticipantID `json:"creator"`
	OriginUnixMs int64         `json:"originUnixMs"`
	Participants []Participant `json:"participants,omitempty"`
	Clips        []Clip        `json:"clips"`
	Focus        []FocusEvent  `json:"focus"`
}

// New creates an empty session manifest with a fresh id. The creator is
// implicitly focused until the first focus event.
func New(creator ParticipantID) *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Creator:   creator,
	}
}

// AddParticipant records a participant once; rejoining is a no-op.
func (s *Session) AddParticipant(p Participant) {
	for _, existing := range s.Participants {
		if existing.ID == p.ID {
			return
		}
	}
	s.Participants = append(s.Participants, p)
}

// FindClip returns the clip with the given id, or nil.
func (s *Session) FindClip(id string) *Clip {
	for i := range s.Clips {
		if s.Clips[i].ID == id {
			return &s.Clips[i]
		}
	}
	return nil
}

// Window returns the recording window derived from finalized clips: the
// earliest clip start and the latest clip end. ok is false when the session
// has no finalized clips.
func (s *Session) Window() (startMs, endMs int64, ok bool) {
	for i := range s.Clips {
		c := &s.Clips[i]
		if !c.Finalized || c.EndMs <= c.StartMs {
			continue
		}
		if !ok || c.StartMs < startMs {
			startMs = c.StartMs
		}
		if !ok || c.EndMs > endMs {
			endMs = c.EndMs
		}
		ok = true
	}
	return startMs, endMs, ok
}

// Validate checks manifest-level integrity before export.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session has no id")
	}
	if s.Creator == "" {
		return errors.New("session has no creator")
	}
	seen := make(map[string]bool, len(s.Clips))
	for i := range s.Clips {
		c := &s.Clips[i]
		if c.ID == "" {
			return fmt.Errorf("clip %d has no id", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate clip id %s", c.ID)
		}
		seen[c.ID] = true
		if !c.Source.Valid() {
			return fmt.Errorf("clip %s has unknown source %q", c.ID, c.Source)
		}
		if c.Finalized && c.EndMs < c.StartMs {
			return fmt.Errorf("clip %s ends before it starts", c.ID)
		}
	}
	return nil
}

// ManifestName is the manifest filename inside a session directory.
const ManifestName = "session.json"

// Load reads and decodes a session manifest.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the manifest atomically: encode to a temp file in the target
// directory, then rename over the destination. A crash mid-write leaves the
// previous manifest intact.
func (s *Session) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "manifest-*.tmp")
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
