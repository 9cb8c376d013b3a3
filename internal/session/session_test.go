package session

import (
	"path/filepath"
	"testing"
	"time"
)

// testClip builds a finalized clip for manifest and window tests.
func testClip(id string, owner ParticipantID, src SourceType, start, end int64) Clip {
	return Clip{
		ID: id, Owner: owner, Source: src,
		StartMs: start, EndMs: end, Finalized: true,
		Asset: "assets/" + id + ".webm", Container: "webm",
	}
}

func TestSession_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)

	s := New("alice")
	s.OriginUnixMs = 1_724_670_000_000
	s.AddParticipant(Participant{ID: "alice", Name: "Alice", JoinedMs: 0})
	s.AddParticipant(Participant{ID: "bob", Name: "Bob", JoinedMs: 2_000})
	s.Clips = append(s.Clips,
		testClip("c1", "alice", SourceCamera, 0, 8_000),
		testClip("c2", "bob", SourceScreen, 2_000, 6_000),
	)
	s.Focus = append(s.Focus, FocusEvent{AtMs: 3_000, Peer: "bob"})

	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.ID != s.ID || loaded.Creator != "alice" {
		t.Errorf("identity lost: got id=%s creator=%s", loaded.ID, loaded.Creator)
	}
	if loaded.OriginUnixMs != s.OriginUnixMs {
		t.Errorf("origin = %d, want %d", loaded.OriginUnixMs, s.OriginUnixMs)
	}
	if len(loaded.Clips) != 2 || len(loaded.Focus) != 1 || len(loaded.Participants) != 2 {
		t.Fatalf("counts: clips=%d focus=%d participants=%d",
			len(loaded.Clips), len(loaded.Focus), len(loaded.Participants))
	}
	if loaded.Clips[1].Source != SourceScreen || loaded.Clips[1].StartMs != 2_000 {
		t.Errorf("clip c2 mangled: %+v", loaded.Clips[1])
	}
}

func TestSession_SaveIsAtomicOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)

	s := New("alice")
	if err := s.Save(path); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	s.Clips = append(s.Clips, testClip("c1", "alice", SourceCamera, 0, 1_000))
	if err := s.Save(path); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Clips) != 1 {
		t.Errorf("clips = %d, want 1 after overwrite", len(loaded.Clips))
	}
}

func TestSession_Window(t *testing.T) {
	s := New("alice")

	if _, _, ok := s.Window(); ok {
		t.Error("Window on empty session should report not ok")
	}

	s.Clips = append(s.Clips,
		testClip("c1", "alice", SourceCamera, 2_000, 9_000),
		testClip("c2", "bob", SourceScreen, 500, 4_000),
		Clip{ID: "open", Owner: "bob", Source: SourceCamera, StartMs: 100}, // not finalized
	)

	start, end, ok := s.Window()
	if !ok {
		t.Fatal("Window should be ok with finalized clips present")
	}
	if start != 500 || end != 9_000 {
		t.Errorf("window = [%d, %d], want [500, 9000]", start, end)
	}
}

func TestSession_Validate(t *testing.T) {
	good := New("alice")
	good.Clips = append(good.Clips, testClip("c1", "alice", SourceCamera, 0, 1_000))
	if err := good.Validate(); err != nil {
		t.Errorf("valid session rejected: %v", err)
	}

	dup := New("alice")
	dup.Clips = append(dup.Clips,
		testClip("c1", "alice", SourceCamera, 0, 1_000),
		testClip("c1", "alice", SourceScreen, 0, 1_000),
	)
	if err := dup.Validate(); err == nil {
		t.Error("duplicate clip ids should fail validation")
	}

	bad := New("alice")
	bad.Clips = append(bad.Clips, Clip{ID: "x", Owner: "alice", Source: "hologram", Finalized: true})
	if err := bad.Validate(); err == nil {
		t.Error("unknown source type should fail validation")
	}

	inverted := New("alice")
	inverted.Clips = append(inverted.Clips, testClip("c1", "alice", SourceCamera, 5_000, 1_000))
	if err := inverted.Validate(); err == nil {
		t.Error("clip ending before start should fail validation")
	}
}

func TestClip_CoversAndDuration(t *testing.T) {
	c := testClip("c1", "alice", SourceCamera, 1_000, 4_000)

	if c.DurationMs() != 3_000 {
		t.Errorf("duration = %d, want 3000", c.DurationMs())
	}
	if !c.Covers(1_000) {
		t.Error("clip should cover its start instant")
	}
	if c.Covers(4_000) {
		t.Error("clip must not cover its end instant (half-open)")
	}

	open := Clip{ID: "o", StartMs: 1_000}
	if open.DurationMs() != 0 || open.Covers(1_500) {
		t.Error("open clip has no duration and covers nothing")
	}
}

func TestSourceType_Slots(t *testing.T) {
	if !SourceCamera.HasVideo() || !SourceScreen.HasVideo() {
		t.Error("camera and screen carry video")
	}
	if SourceMic.HasVideo() {
		t.Error("mic clips are audio-only")
	}
	if !SourceCamera.CameraSlot() || !SourceMic.CameraSlot() {
		t.Error("camera and mic share the camera slot")
	}
	if SourceScreen.CameraSlot() {
		t.Error("screen has its own slot")
	}
}

func TestNew_FreshIdentity(t *testing.T) {
	a := New("alice")
	b := New("alice")
	if a.ID == b.ID {
		t.Error("sessions should get unique ids")
	}
	if a.CreatedAt.IsZero() || a.CreatedAt.After(time.Now().Add(time.Minute)) {
		t.Errorf("CreatedAt looks wrong: %v", a.CreatedAt)
	}
}
