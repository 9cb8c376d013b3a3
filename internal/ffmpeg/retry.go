package ffmpeg

// RetryAction identifies which fix was applied (or none).
type RetryAction int

const (
	RetryNone          RetryAction = iota
	RetryFixTimestamps             // Enable +genpts.
)

const maxAttempts = 2

// RetryState tracks the fallback fix applied across export attempts for a
// single invocation. Exports get at most one retry: regenerating
// presentation timestamps when the first run tripped over a DTS
// discontinuity in a chunk-assembled input.
type RetryState struct {
	Attempt      int
	TimestampFix bool
}

// NewRetryState initializes the retry tracking for one export.
func NewRetryState() *RetryState {
	return &RetryState{}
}

// Advance inspects stderr from a failed run, applies the timestamp fix if
// it matches and has not been applied yet, and returns the action taken.
// RetryNone means the failure is not retryable.
func (s *RetryState) Advance(stderr string) RetryAction {
	s.Attempt++
	if s.Attempt >= maxAttempts {
		return RetryNone
	}
	if !s.TimestampFix && MatchTimestampIssue(stderr) {
		s.TimestampFix = true
		return RetryFixTimestamps
	}
	return RetryNone
}
