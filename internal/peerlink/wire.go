// Package peerlink implements the transport boundary between session
// participants: JSON envelopes over a WebSocket relay room. The relay
// forwards frames verbatim and delivery is at-least-once; every message is
// safe to apply twice (the focus log dedups, chunk writes are idempotent by
// index, and the clock establishes at most once), so no sequencing or ack
// machinery is needed.
package peerlink

import (
	"encoding/json"
	"fmt"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
)

// MsgType identifies what an envelope carries.
type MsgType string

const (
	// MsgOrigin announces the session's authoritative wall-clock origin.
	MsgOrigin MsgType = "origin"
	// MsgFocus broadcasts one focus change.
	MsgFocus MsgType = "focus"
	// MsgClipBegin announces a clip a peer started recording.
	MsgClipBegin MsgType = "clip-begin"
	// MsgClipChunk carries one chunk of a peer clip's media.
	MsgClipChunk MsgType = "clip-chunk"
	// MsgClipEnd stamps a peer clip's end so it can be finalized.
	MsgClipEnd MsgType = "clip-end"
)

// Envelope is the single wire frame. Payload decodes per Type.
type Envelope struct {
	Type    MsgType         `json:"type"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// OriginPayload is the body of MsgOrigin.
type OriginPayload struct {
	SessionID    string `json:"sessionId"`
	OriginUnixMs int64  `json:"originUnixMs"`
}

// FocusPayload is the body of MsgFocus.
type FocusPayload struct {
	AtMs int64  `json:"atMs"`
	Peer string `json:"peer"`
}

// ClipBeginPayload is the body of MsgClipBegin.
type ClipBeginPayload struct {
	ClipID    string `json:"clipId"`
	Owner     string `json:"owner"`
	Source    string `json:"source"`
	StartMs   int64  `json:"startMs"`
	Container string `json:"container"`
}

// ClipChunkPayload is the body of MsgClipChunk. Data rides as base64, the
// encoding json picks for byte slices.
type ClipChunkPayload struct {
	ClipID string `json:"clipId"`
	Index  int    `json:"index"`
	Data   []byte `json:"data"`
}

// ClipEndPayload is the body of MsgClipEnd.
type ClipEndPayload struct {
	ClipID string `json:"clipId"`
	EndMs  int64  `json:"endMs"`
}

// Encode builds one wire frame.
func Encode(t MsgType, from session.ParticipantID, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	frame, err := json.Marshal(Envelope{Type: t, From: string(from), Payload: body})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", t, err)
	}
	return frame, nil
}

// Decode parses one wire frame into its envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope has no type")
	}
	return &env, nil
}
