package recorder

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/capture"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/config"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/logging"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/peerlink"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
)

// fakeSource delivers its preloaded chunks, then blocks until Stop, then
// reports io.EOF.
type fakeSource struct {
	chunks chan []byte
	done   chan struct{}
	once   sync.Once
}

func newFakeSource(chunks ...string) *fakeSource {
	ch := make(chan []byte, len(chunks)+1)
	for _, c := range chunks {
		ch <- []byte(c)
	}
	return &fakeSource{chunks: ch, done: make(chan struct{})}
}

func (f *fakeSource) Label() string                 { return "fake" }
func (f *fakeSource) Container() string             { return "mkv" }
func (f *fakeSource) Start(_ context.Context) error { return nil }

func (f *fakeSource) Next() ([]byte, error) {
	select {
	case c := <-f.chunks:
		return c, nil
	case <-f.done:
		select {
		case c := <-f.chunks:
			return c, nil
		default:
			return nil, io.EOF
		}
	}
}

func (f *fakeSource) Stop() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

// setNow pins the recorder wall clock to *ms; tests advance it by writing.
func setNow(t *testing.T, ms *int64) {
	t.Helper()
	orig := timeNow
	timeNow = func() int64 { return *ms }
	t.Cleanup(func() { timeNow = orig })
}

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	cfg := config.DefaultConfig()
	log, err := logging.NewLogger(&cfg)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func newTestRecorder(t *testing.T, opts Options) *Recorder {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.StorageRoot = t.TempDir()
	return newTestRecorderCfg(t, cfg, opts)
}

func newTestRecorderCfg(t *testing.T, cfg config.Config, opts Options) *Recorder {
	t.Helper()
	r, err := New(cfg, newTestLogger(t), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.newSource = func(session.SourceType) capture.Source { return newFakeSource("data") }
	return r
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestNew_HostEstablishesOrigin(t *testing.T) {
	now := int64(1_700_000_000_000)
	setNow(t, &now)

	r := newTestRecorder(t, Options{Self: "alice"})
	if !r.Hosting() {
		t.Error("expected hosting recorder")
	}
	s := r.Snapshot()
	if s.Creator != "alice" || s.OriginUnixMs != 1_700_000_000_000 {
		t.Errorf("session: creator=%s origin=%d", s.Creator, s.OriginUnixMs)
	}
	if len(s.Participants) != 1 || s.Participants[0].ID != "alice" || s.Participants[0].JoinedMs != 0 {
		t.Errorf("participants: %+v", s.Participants)
	}
	if _, err := os.Stat(filepath.Join(r.Dir(), "session.json")); err != nil {
		t.Errorf("initial manifest: %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StorageRoot = t.TempDir()
	log := newTestLogger(t)

	if _, err := New(cfg, log, Options{}); err == nil {
		t.Error("expected error for empty participant name")
	}
	if _, err := New(cfg, log, Options{Self: "bob", JoinSession: "room-1"}); err == nil {
		t.Error("expected error when joining without a relay")
	}
}

func TestHandleOrigin_Rebase(t *testing.T) {
	now := int64(2_000_000)
	setNow(t, &now)

	cfg := config.DefaultConfig()
	cfg.StorageRoot = t.TempDir()
	cfg.RelayURL = "ws://relay.invalid"
	r := newTestRecorderCfg(t, cfg, Options{Self: "bob", JoinSession: "room-1"})

	now = 2_005_000
	r.SetFocus("bob") // stamped 5000 on the provisional clock

	if err := r.HandleOrigin("alice", 1_995_000); err != nil {
		t.Fatalf("HandleOrigin: %v", err)
	}
	s := r.Snapshot()
	if s.Creator != "alice" || s.OriginUnixMs != 1_995_000 {
		t.Errorf("session: creator=%s origin=%d", s.Creator, s.OriginUnixMs)
	}
	if len(s.Focus) != 1 || s.Focus[0].AtMs != 10_000 {
		t.Errorf("focus after rebase: %+v", s.Focus)
	}
	if s.Participants[0].JoinedMs != 5_000 {
		t.Errorf("join stamp after rebase: %+v", s.Participants)
	}

	// Late announcements lose.
	if err := r.HandleOrigin("mallory", 42); err != nil {
		t.Fatalf("HandleOrigin repeat: %v", err)
	}
	if s := r.Snapshot(); s.OriginUnixMs != 1_995_000 || s.Creator != "alice" {
		t.Errorf("repeat changed session: creator=%s origin=%d", s.Creator, s.OriginUnixMs)
	}
}

func TestHandleOrigin_PeerStampsKeepGlobalTimes(t *testing.T) {
	now := int64(2_000_000)
	setNow(t, &now)

	cfg := config.DefaultConfig()
	cfg.StorageRoot = t.TempDir()
	cfg.RelayURL = "ws://relay.invalid"
	r := newTestRecorderCfg(t, cfg, Options{Self: "bob", JoinSession: "room-1"})

	// A host focus change can land ahead of the origin announcement; the
	// host stamped it on the real clock already.
	if err := r.HandleFocus(session.FocusEvent{AtMs: 500, Peer: "bob"}); err != nil {
		t.Fatalf("HandleFocus: %v", err)
	}

	// A local take started meanwhile rides the provisional clock.
	now = 2_002_000
	if err := r.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}

	if err := r.HandleOrigin("alice", 1_999_000); err != nil {
		t.Fatalf("HandleOrigin: %v", err)
	}

	s := r.Snapshot()
	// Provisional zero was 2_000_000, so local stamps move by +1000.
	if len(s.Focus) != 1 || s.Focus[0].AtMs != 500 {
		t.Errorf("peer focus after rebase: %+v, want atMs 500", s.Focus)
	}
	if len(s.Participants) != 1 || s.Participants[0].JoinedMs != 1_000 {
		t.Errorf("join stamp after rebase: %+v", s.Participants)
	}
	if len(s.Clips) != 1 || s.Clips[0].StartMs != 3_000 {
		t.Errorf("local clip after rebase: %+v", s.Clips)
	}

	now = 2_004_000
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c := r.Snapshot().Clips[0]; !c.Finalized || c.EndMs != 5_000 {
		t.Errorf("finalized clip: %+v, want end 5000", c)
	}
}

func TestHandleClipIntake(t *testing.T) {
	now := int64(1_700_000_000_000)
	setNow(t, &now)
	r := newTestRecorder(t, Options{Self: "alice"})

	if err := r.HandleClipBegin("c1", "bob", session.SourceCamera, 1_000, "mkv"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := r.HandleClipChunk("c1", 0, []byte("xy")); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if err := r.HandleClipEnd("c1", 3_000); err != nil {
		t.Fatalf("end: %v", err)
	}

	s := r.Snapshot()
	c := s.FindClip("c1")
	if c == nil || !c.Finalized || c.Owner != "bob" || c.StartMs != 1_000 || c.EndMs != 3_000 {
		t.Fatalf("mirrored clip: %+v", c)
	}
	data, err := os.ReadFile(filepath.Join(r.Dir(), filepath.FromSlash(c.Asset)))
	if err != nil || string(data) != "xy" {
		t.Errorf("mirrored asset: %q, err %v", data, err)
	}

	// Redelivered frames must not disturb the finalized clip.
	if err := r.HandleClipBegin("c1", "bob", session.SourceCamera, 1_000, "mkv"); err != nil {
		t.Fatalf("begin repeat: %v", err)
	}
	if err := r.HandleClipEnd("c1", 3_000); err != nil {
		t.Fatalf("end repeat: %v", err)
	}
	if again := r.Snapshot(); len(again.Clips) != 1 {
		t.Errorf("clips after redelivery: %+v", again.Clips)
	}
}

func TestToggles(t *testing.T) {
	now := int64(1_700_000_000_000)
	setNow(t, &now)
	r := newTestRecorder(t, Options{Self: "alice"})
	ctx := context.Background()

	if err := r.StartCamera(ctx); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}
	if src := r.activeSlotSource(); src != session.SourceCamera {
		t.Fatalf("slot after start: %q", src)
	}

	now += 1_000
	if err := r.ToggleVideo(ctx); err != nil {
		t.Fatalf("ToggleVideo: %v", err)
	}
	if src := r.activeSlotSource(); src != session.SourceMic {
		t.Fatalf("slot after toggle: %q", src)
	}

	now += 1_000
	if err := r.ToggleScreen(ctx); err != nil {
		t.Fatalf("ToggleScreen on: %v", err)
	}
	if len(r.Active()) != 2 {
		t.Fatalf("active: %+v", r.Active())
	}

	now += 1_000
	if err := r.ToggleScreen(ctx); err != nil {
		t.Fatalf("ToggleScreen off: %v", err)
	}
	for _, c := range r.Active() {
		if c.Source == session.SourceScreen {
			t.Fatalf("screen still active: %+v", c)
		}
	}

	now += 1_000
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(r.Active()) != 0 {
		t.Errorf("active after close: %+v", r.Active())
	}

	s := r.Snapshot()
	if len(s.Clips) != 3 {
		t.Fatalf("clips: %+v", s.Clips)
	}
	cam, mic := s.Clips[0], s.Clips[1]
	if !cam.Finalized || cam.EndMs != mic.StartMs {
		t.Errorf("handoff: camera ends %d, mic starts %d", cam.EndMs, mic.StartMs)
	}
}

func TestPeerMirroring(t *testing.T) {
	now := int64(1_700_000_000_000)
	setNow(t, &now)

	relay := peerlink.NewRelay(newTestLogger(t))
	srv := httptest.NewServer(relay)
	defer srv.Close()

	hostCfg := config.DefaultConfig()
	hostCfg.StorageRoot = t.TempDir()
	hostCfg.RelayURL = srv.URL
	host := newTestRecorderCfg(t, hostCfg, Options{Self: "alice"})

	peerCfg := config.DefaultConfig()
	peerCfg.StorageRoot = t.TempDir()
	peerCfg.RelayURL = srv.URL
	peer := newTestRecorderCfg(t, peerCfg, Options{Self: "bob", JoinSession: host.SessionID()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := peer.Connect(ctx); err != nil {
		t.Fatalf("peer connect: %v", err)
	}
	waitUntil(t, func() bool { return relay.RoomSize(host.SessionID()) == 1 })
	if err := host.Connect(ctx); err != nil {
		t.Fatalf("host connect: %v", err)
	}

	// The host's origin announcement lands on the peer.
	waitUntil(t, func() bool { return peer.Snapshot().OriginUnixMs == 1_700_000_000_000 })
	if got := peer.Snapshot().Creator; got != "alice" {
		t.Errorf("peer creator: %q", got)
	}

	// One camera take on the host mirrors end to end.
	if err := host.StartCamera(ctx); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}
	now += 2_000
	host.SetFocus("bob")
	now += 2_000
	if err := host.Close(); err != nil {
		t.Fatalf("host close: %v", err)
	}

	waitUntil(t, func() bool {
		s := peer.Snapshot()
		return len(s.Clips) == 1 && s.Clips[0].Finalized
	})
	s := peer.Snapshot()
	c := s.Clips[0]
	if c.Owner != "alice" || c.Source != session.SourceCamera || c.StartMs != 0 || c.EndMs != 4_000 {
		t.Fatalf("mirrored clip: %+v", c)
	}
	data, err := os.ReadFile(filepath.Join(peer.Dir(), filepath.FromSlash(c.Asset)))
	if err != nil || string(data) != "data" {
		t.Errorf("mirrored asset: %q, err %v", data, err)
	}
	if len(s.Focus) != 1 || s.Focus[0].Peer != "bob" || s.Focus[0].AtMs != 2_000 {
		t.Errorf("mirrored focus: %+v", s.Focus)
	}
	if err := peer.Close(); err != nil {
		t.Fatalf("peer close: %v", err)
	}
}
