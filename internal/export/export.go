// Package export orchestrates rendering a recorded session into a single
// output file: validate the manifest, derive the timeline plan, probe every
// input asset, compile the filter graph, and drive one encoder invocation
// with progress reporting and cancellation.
package export

import (
	"errors"
)

// Status is the terminal state of one export invocation.
type Status string

const (
	// StatusSuccess means the output file was written.
	StatusSuccess Status = "success"
	// StatusFailed means the encoder exited nonzero; Result carries the
	// compiled graph and diagnostic tail so the failure is reproducible.
	StatusFailed Status = "failed"
	// StatusCancelled means the caller cancelled; not a failure.
	StatusCancelled Status = "cancelled"
)

// Result is the outcome of an export that reached execution.
type Result struct {
	Status      Status
	OutputPath  string // set on success
	Message     string
	Graph       string // the compiled filter graph text
	Diagnostics string // encoder stderr tail on failure
}

var (
	// ErrNoSegments means the session produced no timeline to render.
	ErrNoSegments = errors.New("nothing to export: no segments")
	// ErrNoInputFiles means a timeline that needs media references no input
	// files. An all-blank timeline is exempt: it renders background and
	// silence without any input.
	ErrNoInputFiles = errors.New("nothing to export: no input files")
)

// Progress is one normalized progress update. Fraction runs 0..1 across the
// whole export, with a fixed leading share reserved for probing so the bar
// never jumps backward when encoding starts.
type Progress struct {
	Phase    string // "probing" or "encoding"
	Fraction float64
	OutMs    int64 // encoder output position, encoding phase only
	TotalMs  int64 // planned output duration
}

// probeWeight is the share of the progress range spent on the probe phase.
const probeWeight = 0.10

// send delivers a progress update without ever blocking: the encoder's
// reader goroutine calls this, and a stalled consumer must not stall the
// encoder. A slow consumer just misses intermediate updates.
func send(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}
