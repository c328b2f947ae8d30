package timer

import "time"

// State is the lifecycle state of an Engine.
type State int

const (
	// StateIdle means no session is in progress.
	StateIdle State = iota
	// StateRunning means the deadline is authoritative and frames are ticking.
	StateRunning
	// StatePaused means the remaining snapshot is authoritative.
	StatePaused
	// StateCompleted is entered when the countdown reaches zero. It accepts
	// the same operations as StateIdle.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Clock supplies wall-clock time to the engine.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }

// Handle is a pending frame request.
type Handle interface {
	// Cancel prevents the frame callback from running. Calling Cancel after
	// the callback ran, or more than once, has no effect.
	Cancel()
}

// FrameScheduler schedules a callback for the next frame. Callbacks must run
// on the goroutine that owns the Engine.
type FrameScheduler interface {
	RequestFrame(fn func()) Handle
}

// Chimer plays the completion tone. Chime reports whether sound was
// actually produced; it returns false while audio output is locked.
type Chimer interface {
	Chime() bool
}

// Tick is one rendered frame of the countdown.
type Tick struct {
	// Remaining is the time left, never negative.
	Remaining time.Duration
	// Total is the length of the session the tick belongs to.
	Total time.Duration
	// Text is Remaining formatted as mm:ss.
	Text string
	// Fraction is the elapsed share of Total in [0, 1].
	Fraction float64
	// Degrees is Fraction scaled to a full circle and floored.
	Degrees int
	State   State
}

// Completion describes a finished session.
type Completion struct {
	Duration time.Duration
	// Chimed is false when audio output was locked and the tone was skipped.
	Chimed bool
	At     time.Time
}

// Snapshot is a read-only view of the engine state.
type Snapshot struct {
	State     State
	Duration  time.Duration
	Remaining time.Duration
	Selected  time.Duration
	// Target is the deadline. It is the zero time unless State is StateRunning.
	Target time.Time
}
