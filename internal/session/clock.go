package session

import (
	"sync"
	"time"
)

// Clock converts local wall time into global session milliseconds. It is an
// explicit object handed to the components that stamp times (clip manager,
// focus log plumbing), never package-level state, so tests can run many
// sessions with independent clocks.
//
// The origin is the unix-ms instant the creator announced as global zero.
// Exactly one origin wins: the first [Establish] call. If capture begins
// before any announcement arrives, the clock provisionally adopts the first
// stamped instant as zero; when the real origin shows up, [Establish]
// returns the constant shift the owner must apply to already-stamped times.
// The rebase happens at most once.
type Clock struct {
	mu           sync.Mutex
	now          func() int64 // unix ms source
	originUnixMs int64
	established  bool // a real origin was announced
	provisional  bool // origin was self-adopted at first stamp
}

// NewClock returns a clock backed by the system time.
func NewClock() *Clock {
	return NewClockAt(func() int64 { return time.Now().UnixMilli() })
}

// NewClockAt returns a clock with an injected unix-ms source for tests.
func NewClockAt(now func() int64) *Clock {
	return &Clock{now: now}
}

// Establish records the announced origin. The first announcement wins;
// repeats and late arrivals are no-ops. When the clock had provisionally
// adopted a local zero, Establish switches to the real origin and returns
// the shift (in ms) to add to every timestamp issued so far, with rebased
// true exactly once.
func (c *Clock) Establish(originUnixMs int64) (shiftMs int64, rebased bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.established {
		return 0, false
	}
	if c.provisional {
		// Stamps so far are offsets from the provisional origin. The same
		// instants expressed against the real origin differ by this constant.
		shiftMs = c.originUnixMs - originUnixMs
		c.originUnixMs = originUnixMs
		c.provisional = false
		c.established = true
		return shiftMs, true
	}
	c.originUnixMs = originUnixMs
	c.established = true
	return 0, false
}

// Established reports whether a real (announced) origin is active.
func (c *Clock) Established() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.established
}

// OriginUnixMs returns the active origin, provisional or real. Zero when no
// stamp or announcement has happened yet.
func (c *Clock) OriginUnixMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.originUnixMs
}

// Now returns the current global session time in milliseconds. When no
// origin is known yet, the current instant becomes the provisional origin
// and Now returns 0.
func (c *Clock) Now() int64 {
	ms, _ := c.Stamp()
	return ms
}

// Stamp returns the current global time like [Now], plus whether the stamp
// was measured against a provisional origin. Provisional stamps move by the
// shift [Establish] returns; stamps issued against the real origin never do,
// so callers record the flag alongside anything they timestamp.
func (c *Clock) Stamp() (ms int64, provisional bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	unix := c.now()
	if !c.established && !c.provisional {
		c.originUnixMs = unix
		c.provisional = true
		return 0, true
	}
	return unix - c.originUnixMs, c.provisional
}
