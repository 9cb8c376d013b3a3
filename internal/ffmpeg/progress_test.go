package ffmpeg

import (
	"errors"
	"strings"
	"testing"
)

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		line   string
		wantMs int64
		wantOk bool
	}{
		{"out_time_us=1234567", 1234, true},
		// out_time_ms is microseconds too, despite the name.
		{"out_time_ms=1234567", 1234, true},
		{"out_time=00:01:02.500000", 62500, true},
		{"out_time_us=N/A", 0, false},
		{"out_time=N/A", 0, false},
		{"frame=42", 0, false},
		{"progress=continue", 0, false},
		{"progress=end", 0, false},
		{"speed=1.02x", 0, false},
		{"", 0, false},
		{"out_time_us=-1", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseProgressLine(tt.line)
		if ok != tt.wantOk || got != tt.wantMs {
			t.Errorf("ParseProgressLine(%q): got (%d, %v), want (%d, %v)",
				tt.line, got, ok, tt.wantMs, tt.wantOk)
		}
	}
}

// brokenReader yields its preloaded data, then fails.
type brokenReader struct {
	data []byte
	err  error
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if len(b.data) > 0 {
		n := copy(p, b.data)
		b.data = b.data[n:]
		return n, nil
	}
	return 0, b.err
}

func TestReadProgress(t *testing.T) {
	var got []int64
	stream := "frame=10\nout_time_us=1500000\nprogress=continue\nout_time_us=3000000\nprogress=end\n"
	if err := readProgress(strings.NewReader(stream), func(ms int64) { got = append(got, ms) }); err != nil {
		t.Fatalf("readProgress: %v", err)
	}
	if len(got) != 2 || got[0] != 1_500 || got[1] != 3_000 {
		t.Errorf("progress updates = %v, want [1500 3000]", got)
	}
}

func TestReadProgress_SurfacesReadError(t *testing.T) {
	broken := errors.New("pipe gone")
	r := &brokenReader{data: []byte("out_time_us=1500000\n"), err: broken}

	var got []int64
	err := readProgress(r, func(ms int64) { got = append(got, ms) })
	if !errors.Is(err, broken) {
		t.Fatalf("readProgress: err = %v, want the read failure", err)
	}
	// Updates delivered before the failure still count.
	if len(got) != 1 || got[0] != 1_500 {
		t.Errorf("progress updates = %v, want [1500]", got)
	}
}

func TestRetryState_AdvanceOnTimestampIssue(t *testing.T) {
	rs := NewRetryState()

	stderr := "[matroska,webm @ 0x55] Non-monotonous DTS in output stream 0:1; previous: 4520, current: 4100"
	if got := rs.Advance(stderr); got != RetryFixTimestamps {
		t.Fatalf("first Advance: got %v, want RetryFixTimestamps", got)
	}
	if !rs.TimestampFix {
		t.Error("TimestampFix not set")
	}

	// One retry only: the same failure again is terminal.
	if got := rs.Advance(stderr); got != RetryNone {
		t.Errorf("second Advance: got %v, want RetryNone", got)
	}
}

func TestRetryState_AdvanceOnUnrelatedFailure(t *testing.T) {
	rs := NewRetryState()
	if got := rs.Advance("Error initializing complex filters: Invalid argument"); got != RetryNone {
		t.Errorf("Advance: got %v, want RetryNone", got)
	}
	if rs.TimestampFix {
		t.Error("TimestampFix set for unrelated failure")
	}
}

func TestMatchTimestampIssue(t *testing.T) {
	matching := []string{
		"Non-monotonous DTS in output stream",
		"pkt->pts has no value",
		"Timestamps are unset in a packet",
		"DTS 123 out of order",
	}
	for _, s := range matching {
		if !MatchTimestampIssue(s) {
			t.Errorf("MatchTimestampIssue(%q): got false, want true", s)
		}
	}
	if MatchTimestampIssue("Conversion failed!") {
		t.Error("MatchTimestampIssue matched unrelated text")
	}
}

func TestStderrTail(t *testing.T) {
	if got := StderrTail("a\nb\nc\nd", 2); got != "c\nd" {
		t.Errorf("StderrTail: got %q, want %q", got, "c\nd")
	}
	if got := StderrTail("only", 5); got != "only" {
		t.Errorf("StderrTail short input: got %q", got)
	}
	if got := StderrTail("  \n", 5); got != "" {
		t.Errorf("StderrTail blank input: got %q", got)
	}
}
