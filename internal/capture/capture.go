// Package capture acquires encoded media from local devices by running
// ffmpeg with its output on a pipe. Each source yields the container
// bytestream as fixed-size chunks so the recording layer can persist them
// incrementally instead of holding a whole take in memory.
package capture

import (
	"context"
	"fmt"
	"sync"
)

// Source is one recordable input: a camera, a microphone, or a screen. The
// chunk stream starts after Start and ends with io.EOF from Next once the
// underlying process has exited and the pipe is drained.
type Source interface {
	// Label names the source for logs and errors ("camera", "mic", "screen").
	Label() string
	// Container is the extension of the emitted container format.
	Container() string
	// Start spawns the capture. Failing to acquire the device fails here
	// with a *DeviceUnavailableError.
	Start(ctx context.Context) error
	// Next blocks for the next chunk. It returns io.EOF on clean end of
	// stream and a *DeviceUnavailableError if the source died before
	// producing any data.
	Next() ([]byte, error)
	// Stop asks the source to finish gracefully. Remaining buffered chunks
	// stay readable via Next until io.EOF.
	Stop() error
}

// DeviceUnavailableError reports a source that could not start or exited
// before delivering any media.
type DeviceUnavailableError struct {
	Label  string
	Detail string
	Err    error
}

func (e *DeviceUnavailableError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s unavailable: %s", e.Label, e.Detail)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Label, e.Err)
}

func (e *DeviceUnavailableError) Unwrap() error { return e.Err }

// CaptureError reports a source that produced data and then died without
// being stopped.
type CaptureError struct {
	Label  string
	Detail string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%s capture failed: %v (%s)", e.Label, e.Err, e.Detail)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// tailWriter keeps the most recent bytes written to it. Capture processes
// can run for hours, so full stderr retention is off the table; the tail is
// enough to explain a death.
type tailWriter struct {
	mu   sync.Mutex
	max  int
	data []byte
}

func newTailWriter(max int) *tailWriter {
	return &tailWriter{max: max}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	if len(w.data) > w.max {
		w.data = w.data[len(w.data)-w.max:]
	}
	return len(p), nil
}

func (w *tailWriter) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}
