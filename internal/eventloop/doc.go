// Package eventloop provides the single goroutine that owns a timer engine.
//
// A Loop runs posted tasks and frame callbacks one at a time, in the style of
// a browser event loop. Frames are kept in a min-heap sorted by due time and
// the loop sleeps at most maxSleepCap between wakeups, so a wall-clock step
// (NTP adjustment, system sleep) is noticed within that bound. Frame requests
// return handles that remove the frame from the heap when canceled.
package eventloop
