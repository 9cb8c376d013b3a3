package peerlink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
)

// handshakeTimeout bounds the initial dial; a relay that cannot be reached
// quickly should fail the join, not hang it.
const handshakeTimeout = 5 * time.Second

// Handler applies events received from peers. The relay delivers at least
// once, so every method must tolerate duplicate application. Returning a
// non-nil error stops the read loop; per-event failures a participant can
// live with (a chunk that failed to persist, say) should be logged by the
// implementation and swallowed.
type Handler interface {
	HandleOrigin(from session.ParticipantID, originUnixMs int64) error
	HandleFocus(ev session.FocusEvent) error
	HandleClipBegin(clipID string, owner session.ParticipantID, kind session.SourceType, startMs int64, container string) error
	HandleClipChunk(clipID string, index int, data []byte) error
	HandleClipEnd(clipID string, endMs int64) error
}

// Link is one participant's connection to a relay room. Writes are
// mutex-serialized because gorilla/websocket does not allow concurrent
// writers on one connection.
type Link struct {
	self session.ParticipantID
	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial joins the relay room for a session. relayURL accepts http, https,
// ws, or wss schemes; a bare host dials plaintext.
func Dial(ctx context.Context, relayURL, room string, self session.ParticipantID) (*Link, error) {
	u, err := RoomURL(relayURL, room)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", u, err)
	}
	return &Link{self: self, conn: conn}, nil
}

// RoomURL normalizes a relay URL and appends the room path.
func RoomURL(relayURL, room string) (string, error) {
	if relayURL == "" {
		return "", fmt.Errorf("no relay url configured")
	}
	if room == "" {
		return "", fmt.Errorf("no room name")
	}
	u := relayURL
	switch {
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "ws://"), strings.HasPrefix(u, "wss://"):
	default:
		u = "ws://" + u
	}
	return strings.TrimSuffix(u, "/") + "/ws/" + room, nil
}

// Close tears down the connection; a running ReadLoop returns.
func (l *Link) Close() error {
	return l.conn.Close()
}

// AnnounceOrigin broadcasts the session's wall-clock origin.
func (l *Link) AnnounceOrigin(sessionID string, originUnixMs int64) error {
	return l.send(MsgOrigin, OriginPayload{SessionID: sessionID, OriginUnixMs: originUnixMs})
}

// SendFocus broadcasts one focus change.
func (l *Link) SendFocus(ev session.FocusEvent) error {
	return l.send(MsgFocus, FocusPayload{AtMs: ev.AtMs, Peer: string(ev.Peer)})
}

// SendClipBegin announces a locally started clip.
func (l *Link) SendClipBegin(c session.Clip) error {
	return l.send(MsgClipBegin, ClipBeginPayload{
		ClipID:    c.ID,
		Owner:     string(c.Owner),
		Source:    string(c.Source),
		StartMs:   c.StartMs,
		Container: c.Container,
	})
}

// SendClipChunk forwards one chunk of a local clip.
func (l *Link) SendClipChunk(clipID string, index int, data []byte) error {
	return l.send(MsgClipChunk, ClipChunkPayload{ClipID: clipID, Index: index, Data: data})
}

// SendClipEnd stamps a local clip's end for the peers.
func (l *Link) SendClipEnd(clipID string, endMs int64) error {
	return l.send(MsgClipEnd, ClipEndPayload{ClipID: clipID, EndMs: endMs})
}

func (l *Link) send(t MsgType, payload interface{}) error {
	frame, err := Encode(t, l.self, payload)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, frame)
}

// ReadLoop receives and dispatches envelopes until the connection closes,
// ctx is cancelled, or a handler fails. Frames from self are skipped, and
// frames that do not parse are dropped; the room only ever carries this
// protocol, so a malformed frame is a peer bug, not something to die over.
func (l *Link) ReadLoop(ctx context.Context, h Handler) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("relay read: %w", err)
		}
		env, err := Decode(data)
		if err != nil || env.From == string(l.self) {
			continue
		}
		if err := l.dispatch(env, h); err != nil {
			return err
		}
	}
}

// dispatch decodes the payload for one envelope and applies it. Payloads
// that fail to decode are dropped like malformed frames.
func (l *Link) dispatch(env *Envelope, h Handler) error {
	switch env.Type {
	case MsgOrigin:
		var p OriginPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return nil
		}
		return h.HandleOrigin(session.ParticipantID(env.From), p.OriginUnixMs)
	case MsgFocus:
		var p FocusPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return nil
		}
		return h.HandleFocus(session.FocusEvent{AtMs: p.AtMs, Peer: session.ParticipantID(p.Peer)})
	case MsgClipBegin:
		var p ClipBeginPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return nil
		}
		return h.HandleClipBegin(p.ClipID, session.ParticipantID(p.Owner), session.SourceType(p.Source), p.StartMs, p.Container)
	case MsgClipChunk:
		var p ClipChunkPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return nil
		}
		return h.HandleClipChunk(p.ClipID, p.Index, p.Data)
	case MsgClipEnd:
		var p ClipEndPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return nil
		}
		return h.HandleClipEnd(p.ClipID, p.EndMs)
	}
	// Unknown types are skipped so older clients survive newer peers.
	return nil
}
