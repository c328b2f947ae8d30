package eventloop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/meditate001/meditate/pkg/timer"
)

const (
	// DefaultFrameInterval approximates a 60 Hz display.
	DefaultFrameInterval = time.Second / 60

	maxSleepCap = time.Second
)

// ErrClosed is returned by Do once the loop has stopped.
var ErrClosed = errors.New("event loop closed")

// Loop is a single-goroutine task and frame runner.
type Loop struct {
	ctx      context.Context
	interval time.Duration
	tasks    chan func()
	wake     chan struct{}
	done     chan struct{}

	mu     sync.Mutex
	frames frameHeap
	firing map[uint64]struct{}
	nextID uint64
}

// New creates and starts a Loop. Frames requested through RequestFrame run
// interval after the request; a non-positive interval selects
// DefaultFrameInterval. The loop goroutine exits when ctx is canceled.
func New(ctx context.Context, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	l := &Loop{
		ctx:      ctx,
		interval: interval,
		tasks:    make(chan func(), 64),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		firing:   make(map[uint64]struct{}),
	}
	go l.run()
	return l
}

// Interval returns the frame interval.
func (l *Loop) Interval() time.Duration { return l.interval }

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Post queues fn to run on the loop goroutine. It drops fn if the loop has
// stopped.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.ctx.Done():
	}
}

// Do runs fn on the loop goroutine and waits for it to return. It must not
// be called from the loop goroutine itself.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	select {
	case l.tasks <- func() { fn(); close(finished) }:
	case <-l.ctx.Done():
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		// The task may have been queued after the last iteration.
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// RequestFrame schedules fn to run on the loop goroutine at the next frame.
func (l *Loop) RequestFrame(fn func()) timer.Handle {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	heapPush(&l.frames, frame{id: id, due: time.Now().Add(l.interval), fn: fn})
	l.mu.Unlock()
	l.notify()
	return &handle{loop: l, id: id}
}

// Pending returns the number of frames waiting to run.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames.Len()
}

func (l *Loop) cancel(id uint64) {
	l.mu.Lock()
	removed := heapRemoveByID(&l.frames, id)
	if !removed {
		// Popped for the current batch but not run yet.
		delete(l.firing, id)
	}
	l.mu.Unlock()
	if removed {
		l.notify()
	}
}

// take claims a popped frame for execution. It returns false if the frame
// was canceled after it was popped.
func (l *Loop) take(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.firing[id]; !ok {
		return false
	}
	delete(l.firing, id)
	return true
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// nextDue returns the due time of the earliest frame.
func (l *Loop) nextDue() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frames.Len() == 0 {
		return time.Time{}, false
	}
	return l.frames[0].due, true
}

// popDue removes every frame due at or before now and marks it as firing.
func (l *Loop) popDue(now time.Time) []frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	var due []frame
	for l.frames.Len() > 0 && !l.frames[0].due.After(now) {
		f := heapPop(&l.frames)
		l.firing[f.id] = struct{}{}
		due = append(due, f)
	}
	return due
}

func (l *Loop) run() {
	defer close(l.done)

	var t *time.Timer
	defer func() {
		if t != nil {
			t.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if t != nil {
			t.Stop()
		}
		next, ok := l.nextDue()
		if !ok {
			return nil
		}
		dur := time.Until(next)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		t = time.NewTimer(dur)
		return t.C
	}

	timerCh := resetTimer()
	for {
		select {
		case <-l.ctx.Done():
			return

		case fn := <-l.tasks:
			fn()
			timerCh = resetTimer()

		case <-l.wake:
			timerCh = resetTimer()

		case <-timerCh:
			for _, f := range l.popDue(time.Now()) {
				if l.take(f.id) {
					f.fn()
				}
			}
			timerCh = resetTimer()
		}
	}
}

type handle struct {
	loop *Loop
	id   uint64
	once sync.Once
}

// Cancel removes the frame from the loop.
func (h *handle) Cancel() {
	h.once.Do(func() { h.loop.cancel(h.id) })
}
