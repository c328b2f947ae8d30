// Package timer implements the countdown engine behind a meditation session.
//
// The engine never accumulates per-frame deltas. While running it keeps an
// absolute deadline and derives the remaining time from the clock on every
// frame, so skipped or throttled frames (a suspended terminal, a backgrounded
// page) cannot make the display drift from wall-clock time. While paused the
// remaining duration is the only authoritative value.
//
// An Engine is not safe for concurrent use. It is meant to be owned by a
// single event-loop goroutine which also runs the frame callbacks it
// requests through its FrameScheduler.
package timer
