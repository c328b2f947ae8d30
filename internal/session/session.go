// Package session runs a timer engine on its own event loop so that the CLI
// and RPC handlers can drive it from any goroutine.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/meditate001/meditate/internal/eventloop"
	"github.com/meditate001/meditate/pkg/chime"
	"github.com/meditate001/meditate/pkg/logger"
	"github.com/meditate001/meditate/pkg/timer"
)

// Listener receives engine output. Methods are called on the loop goroutine
// and must not block or call back into the Session.
type Listener interface {
	OnTick(timer.Tick)
	OnComplete(timer.Completion)
}

// Funcs adapts plain functions to a Listener. Nil fields are skipped.
type Funcs struct {
	Tick     func(timer.Tick)
	Complete func(timer.Completion)
}

func (f Funcs) OnTick(t timer.Tick) {
	if f.Tick != nil {
		f.Tick(t)
	}
}

func (f Funcs) OnComplete(c timer.Completion) {
	if f.Complete != nil {
		f.Complete(c)
	}
}

// Options configures a Session.
type Options struct {
	Clock timer.Clock
	// FrameInterval defaults to eventloop.DefaultFrameInterval.
	FrameInterval time.Duration
	// Default is the initial selection; nil means timer.DefaultDuration.
	Default *time.Duration
	// Audio is optional; without it completions are silent.
	Audio  *chime.Gate
	Logger logger.Logger
}

// Session is a goroutine-safe handle on a timer engine.
type Session struct {
	loop *eventloop.Loop
	eng  *timer.Engine
	gate *chime.Gate
	log  logger.Logger

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// New starts the event loop and creates an idle engine on it. The loop stops
// when ctx is canceled; every later call returns eventloop.ErrClosed.
func New(ctx context.Context, opts Options) *Session {
	l := opts.Logger
	if l == nil {
		l = logger.NewNopLogger()
	}
	s := &Session{
		loop:      eventloop.New(ctx, opts.FrameInterval),
		gate:      opts.Audio,
		log:       l,
		listeners: make(map[int]Listener),
	}
	var ch timer.Chimer
	if opts.Audio != nil {
		ch = opts.Audio
	}
	s.eng = timer.New(timer.Options{
		Clock:      opts.Clock,
		Frames:     s.loop,
		Chime:      ch,
		Default:    opts.Default,
		OnTick:     s.dispatchTick,
		OnComplete: s.dispatchComplete,
	})
	return s
}

// Done is closed once the loop has stopped.
func (s *Session) Done() <-chan struct{} { return s.loop.Done() }

// Subscribe registers l and returns a function that removes it.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) snapshotListeners() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	return ls
}

func (s *Session) dispatchTick(t timer.Tick) {
	for _, l := range s.snapshotListeners() {
		l.OnTick(t)
	}
}

func (s *Session) dispatchComplete(c timer.Completion) {
	if c.Chimed {
		s.log.Info("session of %s complete", c.Duration)
	} else {
		s.log.Info("session of %s complete (muted)", c.Duration)
	}
	for _, l := range s.snapshotListeners() {
		l.OnComplete(c)
	}
}

// Start begins a session with the selected duration.
func (s *Session) Start() error {
	return s.loop.Do(func() {
		s.eng.Start()
		s.log.Debug("start: %s", s.eng.Selected())
	})
}

// StartWith selects d and starts a session with it.
func (s *Session) StartWith(d time.Duration) error {
	return s.loop.Do(func() {
		s.eng.StartWith(d)
		s.log.Debug("start with %s: state %s", d, s.eng.State())
	})
}

// Pause freezes the running countdown.
func (s *Session) Pause() error {
	return s.loop.Do(s.eng.Pause)
}

// Resume continues a paused countdown.
func (s *Session) Resume() error {
	return s.loop.Do(s.eng.Resume)
}

// Reset abandons any session.
func (s *Session) Reset() error {
	return s.loop.Do(s.eng.Reset)
}

// Select changes the duration used by the next Start.
func (s *Session) Select(d time.Duration) error {
	return s.loop.Do(func() { s.eng.SetSelectedDuration(d) })
}

// Refresh re-renders the running countdown from its deadline.
func (s *Session) Refresh() error {
	return s.loop.Do(s.eng.Refresh)
}

// Status returns a snapshot of the engine.
func (s *Session) Status() (timer.Snapshot, error) {
	var snap timer.Snapshot
	err := s.loop.Do(func() { snap = s.eng.Snapshot() })
	return snap, err
}

// TestTone plays the chime. It reports false while audio is locked.
func (s *Session) TestTone() (bool, error) {
	var ok bool
	err := s.loop.Do(func() { ok = s.eng.TestTone() })
	return ok, err
}

// UnlockAudio opens the audio output. Without an audio gate it returns
// chime.ErrAudioUnavailable.
func (s *Session) UnlockAudio(ctx context.Context) error {
	if s.gate == nil {
		return chime.ErrAudioUnavailable
	}
	if err := s.gate.Unlock(ctx); err != nil {
		s.log.Warning("audio unlock failed: %v", err)
		return err
	}
	return nil
}

// AudioUnlocked reports whether completions will be audible.
func (s *Session) AudioUnlocked() bool {
	return s.gate != nil && s.gate.Unlocked()
}

// Hint describes the audio state for display.
func (s *Session) Hint() string {
	if s.gate == nil {
		return chime.HintBlocked
	}
	return s.gate.Hint()
}
